package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/Napageneral/dailwatch/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Drivers registered by this package.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCgo     = "sqlite3" // github.com/mattn/go-sqlite3
)

// Init opens the configured database, creating the file and tables if needed.
func Init(cfg *config.Config) (*sql.DB, error) {
	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := OpenPath(cfg.Database.Driver, path)
	if err != nil {
		return nil, err
	}
	if err := ApplySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open opens a connection to the configured database. The schema is applied
// so older files pick up new tables.
func Open(cfg *config.Config) (*sql.DB, error) {
	return Init(cfg)
}

// OpenPath opens a sqlite file with the given driver name.
func OpenPath(driver, path string) (*sql.DB, error) {
	switch driver {
	case "", DriverModernc:
		driver = DriverModernc
	case DriverCgo:
	default:
		return nil, fmt.Errorf("unsupported database driver %q (want %q or %q)", driver, DriverModernc, DriverCgo)
	}
	if path == "" {
		return nil, fmt.Errorf("database path is not configured")
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas for performance + concurrency.
	// WAL allows concurrent readers while a writer is active.
	// busy_timeout reduces SQLITE_BUSY errors under contention.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	return db, nil
}

// ApplySchema executes the embedded schema.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetPath returns the path to the database file
func GetPath(cfg *config.Config) (string, error) {
	return cfg.DatabasePath()
}
