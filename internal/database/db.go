package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DB wraps sql.DB with the sample store queries
type DB struct {
	*sql.DB
}

// New opens the SQLite database at path, creating the file and its directory
// if needed. WAL mode lets the dashboard read while the collector writes.
func New(path string, busyTimeout time.Duration) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "database directory creation failed")
		}
	}

	db, err := sql.Open("sqlite", dsn(path, busyTimeout))
	if err != nil {
		return nil, errors.Wrap(err, "database open failed")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database ping failed")
	}

	return &DB{db}, nil
}

// dsn applies pragmas per connection rather than once on whichever pooled
// connection happens to run the first Exec.
func dsn(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busyTimeout.Milliseconds())
}

// InitSchema creates the samples table if it does not exist and converts
// legacy timestamps to UTC. It is safe to call on every start.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS speedtests (
        timestamp TEXT,
        download REAL,
        upload REAL,
        ping REAL,
        error TEXT
    );

    CREATE INDEX IF NOT EXISTS idx_speedtests_timestamp ON speedtests(timestamp);
    `

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "schema creation failed")
	}

	return db.normalizeTimestamps(ctx)
}
