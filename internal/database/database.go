// Package database archives published snapshots and cycle reports in SQLite.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the archive file created inside the data directory.
const FileName = "secnews.db"

// busyTimeoutMS bounds how long a CLI reader waits on the serving
// process's write transaction.
const busyTimeoutMS = 5000

// DB is the snapshot archive. The collector is its only writer.
type DB struct {
	conn *sql.DB
	path string
}

// OpenDir opens the archive file inside dataDir, creating the directory.
func OpenDir(dataDir string) (*DB, error) {
	return Open(filepath.Join(dataDir, FileName))
}

// Open creates or opens the archive at dbPath and migrates its schema.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	// One connection serializes SaveCycle transactions and keeps the
	// pragmas below applied to every statement.
	conn.SetMaxOpenConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "setting journal mode"},
		{"PRAGMA foreign_keys=ON", "enabling foreign keys"},
		{fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS), "setting busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", p.what, err)
		}
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating archive schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the archive.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the archive file path.
func (db *DB) Path() string {
	return db.path
}
