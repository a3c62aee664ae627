package config

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"droidagent/logger"
)

// schema is applied on every startup; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS steps (
	id TEXT PRIMARY KEY,
	device_id TEXT NOT NULL,
	text TEXT NOT NULL,
	kind TEXT NOT NULL,
	success INTEGER NOT NULL DEFAULT 0,
	finished INTEGER NOT NULL DEFAULT 0,
	cancelled INTEGER NOT NULL DEFAULT 0,
	message TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_steps_device_created ON steps(device_id, created_at DESC);
`

// InitDatabase opens the configured SQLite database and applies the schema
func InitDatabase() (*sql.DB, error) {
	return InitDatabaseAt(DatabasePath())
}

// InitDatabaseAt opens a SQLite database at an explicit path. Tests use
// this with ":memory:".
func InitDatabaseAt(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debugf("💾 Database ready at %s", path)
	return db, nil
}
