package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/secnews/internal/news"
)

// keepSnapshots is how many cycles keep their full item list.
const keepSnapshots = 10

// timeLayout sorts lexically in chronological order for UTC values.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveCycle records a published cycle: its report, per-source statuses and
// the snapshot's items in order.
func (db *DB) SaveCycle(ctx context.Context, report *news.CycleReport, items []news.Item) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO cycles (id, trigger_name, started_at, duration_ms, succeeded, failed,
			candidates, dropped, duplicates, defaulted, enriched, evicted, item_count, empty)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.Trigger, report.StartedAt.UTC().Format(timeLayout), report.Duration.Milliseconds(),
		report.Succeeded, report.Failed, report.Candidates, report.Dropped, report.Duplicates,
		report.Defaulted, report.Enriched, report.Evicted, report.ItemCount, boolInt(report.Empty),
	)
	if err != nil {
		return fmt.Errorf("inserting cycle: %w", err)
	}

	for i, s := range report.Sources {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cycle_sources (cycle_id, position, name, strategy, ok, error_kind, error,
				fetched, items, dropped, published, duration_ms, checked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID, i, s.Name, s.Strategy, boolInt(s.OK), s.ErrorKind, s.Error,
			s.Fetched, s.Items, s.Dropped, s.Published, s.Duration.Milliseconds(), formatTime(s.CheckedAt),
		)
		if err != nil {
			return fmt.Errorf("inserting source status %s: %w", s.Name, err)
		}
	}

	now := time.Now().UTC().Format(timeLayout)
	for i, it := range items {
		keywords, err := json.Marshal(it.Keywords)
		if err != nil {
			return fmt.Errorf("encoding keywords: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO items (id, title, url, source, published_at, approximate, category, summary, keywords, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				source = excluded.source,
				published_at = excluded.published_at,
				approximate = excluded.approximate,
				category = excluded.category,
				summary = excluded.summary,
				keywords = excluded.keywords,
				last_seen = excluded.last_seen`,
			it.ID, it.Title, it.URL, it.Source, it.PublishedAt.UTC().Format(timeLayout), boolInt(it.Approximate),
			string(it.Category), it.Summary, string(keywords), now, now,
		)
		if err != nil {
			return fmt.Errorf("upserting item %s: %w", it.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO snapshot_items (cycle_id, item_id, position) VALUES (?, ?, ?)",
			report.ID, it.ID, i,
		); err != nil {
			return fmt.Errorf("linking item %s: %w", it.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshot_items WHERE cycle_id NOT IN (
			SELECT id FROM cycles ORDER BY started_at DESC LIMIT ?)`, keepSnapshots,
	); err != nil {
		return fmt.Errorf("pruning snapshots: %w", err)
	}

	return tx.Commit()
}

// LatestCycle returns the most recent cycle with its source statuses, or
// nil if none was recorded.
func (db *DB) LatestCycle(ctx context.Context) (*news.CycleReport, error) {
	cycles, err := db.RecentCycles(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, nil
	}
	r := cycles[0]
	if r.Sources, err = db.cycleSources(ctx, r.ID); err != nil {
		return nil, err
	}
	return &r, nil
}

// RecentCycles returns up to limit cycle reports, newest first, without
// source statuses.
func (db *DB) RecentCycles(ctx context.Context, limit int) ([]news.CycleReport, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, trigger_name, started_at, duration_ms, succeeded, failed, candidates, dropped,
			duplicates, defaulted, enriched, evicted, item_count, empty
		FROM cycles ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []news.CycleReport
	for rows.Next() {
		var (
			r         news.CycleReport
			started   string
			durMS     int64
			emptyFlag int
		)
		if err := rows.Scan(&r.ID, &r.Trigger, &started, &durMS, &r.Succeeded, &r.Failed, &r.Candidates,
			&r.Dropped, &r.Duplicates, &r.Defaulted, &r.Enriched, &r.Evicted, &r.ItemCount, &emptyFlag); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.Duration = time.Duration(durMS) * time.Millisecond
		r.Empty = emptyFlag != 0
		r.Published = true
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) cycleSources(ctx context.Context, cycleID string) ([]news.SourceStatus, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name, strategy, ok, error_kind, error, fetched, items, dropped, published, duration_ms, checked_at
		FROM cycle_sources WHERE cycle_id = ? ORDER BY position`, cycleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []news.SourceStatus
	for rows.Next() {
		var (
			s         news.SourceStatus
			strategy  sql.NullString
			errKind   sql.NullString
			errText   sql.NullString
			checkedAt sql.NullString
			ok        int
			durMS     int64
		)
		if err := rows.Scan(&s.Name, &strategy, &ok, &errKind, &errText, &s.Fetched, &s.Items,
			&s.Dropped, &s.Published, &durMS, &checkedAt); err != nil {
			return nil, err
		}
		s.Strategy = strategy.String
		s.OK = ok != 0
		s.ErrorKind = errKind.String
		s.Error = errText.String
		s.Duration = time.Duration(durMS) * time.Millisecond
		s.CheckedAt = parseTime(checkedAt.String)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestSnapshot returns the most recent cycle and its items in published
// order. It returns ErrNoSnapshot when nothing has been archived.
func (db *DB) LatestSnapshot(ctx context.Context) (*news.CycleReport, []news.Item, error) {
	report, err := db.LatestCycle(ctx)
	if err != nil {
		return nil, nil, err
	}
	if report == nil {
		return nil, nil, ErrNoSnapshot
	}
	items, err := db.SnapshotItems(ctx, report.ID)
	if err != nil {
		return nil, nil, err
	}
	return report, items, nil
}

// ErrNoSnapshot is returned when the archive holds no cycle yet.
var ErrNoSnapshot = errors.New("no archived snapshot")

// SnapshotItems returns the items published by one cycle, in order.
func (db *DB) SnapshotItems(ctx context.Context, cycleID string) ([]news.Item, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT i.id, i.title, i.url, i.source, i.published_at, i.approximate, i.category, i.summary, i.keywords
		FROM snapshot_items s JOIN items i ON i.id = s.item_id
		WHERE s.cycle_id = ? ORDER BY s.position`, cycleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// CountItems returns how many distinct items have ever been archived.
func (db *DB) CountItems(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n)
	return n, err
}

func scanItems(rows *sql.Rows) ([]news.Item, error) {
	var items []news.Item
	for rows.Next() {
		var (
			it        news.Item
			published string
			approx    int
			category  string
			summary   sql.NullString
			keywords  sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.Title, &it.URL, &it.Source, &published, &approx,
			&category, &summary, &keywords); err != nil {
			return nil, err
		}
		it.PublishedAt = parseTime(published)
		it.Approximate = approx != 0
		it.Category = news.Category(category)
		it.Summary = summary.String
		if keywords.Valid && keywords.String != "" && keywords.String != "null" {
			if err := json.Unmarshal([]byte(keywords.String), &it.Keywords); err != nil {
				return nil, fmt.Errorf("decoding keywords for %s: %w", it.ID, err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
