package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    source TEXT NOT NULL,
    published_at TEXT NOT NULL,
    approximate INTEGER DEFAULT 0,
    category TEXT NOT NULL,
    summary TEXT,
    keywords TEXT,
    first_seen TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
    last_seen TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS cycles (
    id TEXT PRIMARY KEY,
    trigger_name TEXT NOT NULL,
    started_at TEXT NOT NULL,
    duration_ms INTEGER DEFAULT 0,
    succeeded INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    candidates INTEGER DEFAULT 0,
    dropped INTEGER DEFAULT 0,
    duplicates INTEGER DEFAULT 0,
    defaulted INTEGER DEFAULT 0,
    enriched INTEGER DEFAULT 0,
    evicted INTEGER DEFAULT 0,
    item_count INTEGER DEFAULT 0,
    empty INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cycle_sources (
    cycle_id TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    strategy TEXT,
    ok INTEGER DEFAULT 0,
    error_kind TEXT,
    error TEXT,
    fetched INTEGER DEFAULT 0,
    items INTEGER DEFAULT 0,
    dropped INTEGER DEFAULT 0,
    published INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    checked_at TEXT,
    PRIMARY KEY (cycle_id, name)
);

CREATE TABLE IF NOT EXISTS snapshot_items (
    cycle_id TEXT NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
    item_id TEXT NOT NULL REFERENCES items(id),
    position INTEGER NOT NULL,
    PRIMARY KEY (cycle_id, item_id)
);

CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);
CREATE INDEX IF NOT EXISTS idx_snapshot_items_cycle ON snapshot_items(cycle_id, position);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "item lookup indexes",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_items_category ON items(category);
CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
CREATE INDEX IF NOT EXISTS idx_items_published ON items(published_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
