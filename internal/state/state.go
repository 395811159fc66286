package state

import (
	"database/sql"
	"fmt"
	"time"
)

// Keys used by the ingestion runner.
const (
	KeyLastIngestedDate = "last_ingested_date"
	KeyLastRunRange     = "last_run_range"
)

func Get(db *sql.DB, scope string, key string) (string, bool, error) {
	var v string
	err := db.QueryRow(`SELECT value FROM ingest_state WHERE scope = ? AND key = ?`, scope, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get ingest state: %w", err)
	}
	return v, true, nil
}

func Set(db *sql.DB, scope string, key string, value string) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO ingest_state (scope, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, scope, key, value, now)
	if err != nil {
		return fmt.Errorf("failed to set ingest state: %w", err)
	}
	return nil
}

// SetIfLater stores a YYYY-MM-DD value only when it sorts after the current one.
func SetIfLater(db *sql.DB, scope string, key string, value string) error {
	cur, ok, err := Get(db, scope, key)
	if err != nil {
		return err
	}
	if ok && cur >= value {
		return nil
	}
	return Set(db, scope, key, value)
}
