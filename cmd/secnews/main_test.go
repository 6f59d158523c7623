package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/secnews/internal/config"
	"github.com/TobiSchelling/secnews/internal/database"
	"github.com/TobiSchelling/secnews/internal/news"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestLoadArchivedWithoutArchive(t *testing.T) {
	withConfig(t, &config.Config{Output: config.Output{DataDir: t.TempDir()}})

	st, closeDB, err := loadArchived(context.Background())
	if err != nil {
		t.Fatalf("loadArchived: %v", err)
	}
	defer closeDB()
	if st.Len() != 0 {
		t.Errorf("expected empty store, got %d items", st.Len())
	}
}

func TestLoadArchivedServesLatestSnapshot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	withConfig(t, &config.Config{
		Archive: config.Archive{Enabled: true},
		Output:  config.Output{DataDir: dir},
	})

	// A fresh data directory has no snapshot yet.
	st, closeDB, err := loadArchived(context.Background())
	if err != nil {
		t.Fatalf("loadArchived on empty archive: %v", err)
	}
	closeDB()
	if st.Len() != 0 {
		t.Errorf("expected empty store, got %d items", st.Len())
	}
	if _, err := os.Stat(filepath.Join(dir, database.FileName)); err != nil {
		t.Fatalf("expected archive file in data dir: %v", err)
	}

	db, err := database.OpenDir(dir)
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	report := &news.CycleReport{ID: "c1", Trigger: "manual", StartedAt: at, Succeeded: 1, ItemCount: 1, Published: true,
		Sources: []news.SourceStatus{{Name: "Alpha", OK: true, Published: 1, CheckedAt: at}}}
	items := []news.Item{{ID: "a1", Title: "Ransomware hits hospital", URL: "https://alpha.test/1", Source: "Alpha", Category: "Malware", PublishedAt: at}}
	if err := db.SaveCycle(context.Background(), report, items); err != nil {
		t.Fatalf("SaveCycle: %v", err)
	}
	db.Close()

	st, closeDB, err = loadArchived(context.Background())
	if err != nil {
		t.Fatalf("loadArchived: %v", err)
	}
	defer closeDB()
	if got, ok := st.Get("a1"); !ok || got.Title != "Ransomware hits hospital" {
		t.Errorf("expected archived item a1, got %+v (found %v)", got, ok)
	}
	if id := st.Snapshot().CycleID; id != "c1" {
		t.Errorf("cycle id = %q, want c1", id)
	}
}
