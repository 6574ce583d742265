// internal/common/database/sqlite.go
package database

import (
	"database/sql"
	"fmt"
	"strings"

	"crowd-monitor/internal/common/config"

	_ "modernc.org/sqlite"
)

// NewSQLite opens an embedded SQLite database at cfg.Path. ":memory:" keeps
// everything in one connection, since each new connection would otherwise
// see its own empty database.
func NewSQLite(cfg config.SQLiteConfig) (*SQLClient, error) {
	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	dsn := path
	if path != ":memory:" {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	return &SQLClient{DB: db, Driver: config.DriverSQLite}, nil
}
