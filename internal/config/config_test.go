package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	if len(cfg.Sources) != 10 {
		t.Errorf("expected 10 default sources, got %d", len(cfg.Sources))
	}
	for _, s := range cfg.Sources {
		if s.Strategy != StrategyFeed {
			t.Errorf("source %q: expected feed strategy, got %q", s.Name, s.Strategy)
		}
	}

	if len(cfg.Categories) != 9 {
		t.Errorf("expected 9 categories, got %d", len(cfg.Categories))
	}
	if cfg.Categories[0].Name != "Malware" {
		t.Errorf("expected Malware first, got %q", cfg.Categories[0].Name)
	}
	if cfg.CatchAll != "Other" {
		t.Errorf("expected catch-all 'Other', got %q", cfg.CatchAll)
	}

	if cfg.Collection.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.Collection.Timeout)
	}
	if cfg.Collection.DedupWindow != 24*time.Hour {
		t.Errorf("expected 24h dedup window, got %v", cfg.Collection.DedupWindow)
	}
	if cfg.Enrich.Interval != 500*time.Millisecond {
		t.Errorf("expected 500ms enrich interval, got %v", cfg.Enrich.Interval)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
sources:
  - name: Example
    url: https://example.com/feed
categories:
  - name: Malware
    keywords: [malware]
server:
  port: 9000
collection:
  merge:
    enabled: true
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("failed to parse minimal config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("minimal config should validate: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Sources[0].Strategy != StrategyFeed {
		t.Errorf("expected strategy to default to feed, got %q", cfg.Sources[0].Strategy)
	}
	// Defaults should still be set for unspecified fields
	if cfg.Collection.MaxPerSource != 20 {
		t.Errorf("expected default max_per_source 20, got %d", cfg.Collection.MaxPerSource)
	}
	if !cfg.Collection.Merge.Enabled || cfg.Collection.Merge.MaxItems != 500 {
		t.Errorf("expected merge enabled with default max_items, got %+v", cfg.Collection.Merge)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no sources",
			yaml: "sources: []\ncategories: [{name: A, keywords: [a]}]",
			want: "at least one enabled source",
		},
		{
			name: "duplicate source",
			yaml: `
sources:
  - {name: A, url: "https://a.example/feed"}
  - {name: A, url: "https://b.example/feed"}
categories: [{name: X, keywords: [x]}]`,
			want: "duplicate name",
		},
		{
			name: "relative url",
			yaml: `
sources: [{name: A, url: "/feed"}]
categories: [{name: X, keywords: [x]}]`,
			want: "absolute http(s) URL",
		},
		{
			name: "unknown strategy",
			yaml: `
sources: [{name: A, url: "https://a.example", strategy: json}]
categories: [{name: X, keywords: [x]}]`,
			want: "unknown strategy",
		},
		{
			name: "scrape without selectors",
			yaml: `
sources: [{name: A, url: "https://a.example", strategy: scrape}]
categories: [{name: X, keywords: [x]}]`,
			want: "selectors.item",
		},
		{
			name: "category collides with catch-all",
			yaml: `
sources: [{name: A, url: "https://a.example/feed"}]
categories: [{name: Other, keywords: [x]}]`,
			want: "collides with catch_all",
		},
		{
			name: "empty keywords",
			yaml: `
sources: [{name: A, url: "https://a.example/feed"}]
categories: [{name: X, keywords: []}]`,
			want: "keywords must not be empty",
		},
		{
			name: "zero timeout",
			yaml: `
sources: [{name: A, url: "https://a.example/feed"}]
categories: [{name: X, keywords: [x]}]
collection: {timeout: 0s}`,
			want: "collection.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDisabledSourcesAreSkipped(t *testing.T) {
	cfg, err := parse([]byte(`
sources:
  - {name: A, url: "https://a.example/feed", enabled: false}
  - {name: B, url: "https://b.example/feed"}
categories: [{name: X, keywords: [x]}]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	enabled := cfg.EnabledSources()
	if len(enabled) != 1 || enabled[0].Name != "B" {
		t.Errorf("expected only B enabled, got %+v", enabled)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, DefaultConfigYAML, 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if len(cfg.Sources) == 0 {
		t.Error("expected sources to be populated from file")
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sources: []\n"), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	defaultDir := cfg.GetDataDir()
	if defaultDir == "" {
		t.Error("expected non-empty default data dir")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.GetDataDir() != "/custom/path" {
		t.Errorf("expected '/custom/path', got %q", cfg.GetDataDir())
	}
}
