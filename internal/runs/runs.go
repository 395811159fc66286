// Package runs records the status of batch invocations (ingest, aggregate,
// summarize) so operators can see the last outcome and progress of each.
package runs

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type RunStatus struct {
	Name        string                 `json:"name"`
	Status      string                 `json:"status"`
	Phase       string                 `json:"phase"`
	Cursor      *string                `json:"cursor,omitempty"`
	StartedAt   *int64                 `json:"started_at,omitempty"`
	UpdatedAt   int64                  `json:"updated_at"`
	LastError   *string                `json:"last_error,omitempty"`
	Progress    map[string]interface{} `json:"progress,omitempty"`
	ProgressRaw *string                `json:"-"`
}

func marshalProgress(progress any) (*string, error) {
	if progress == nil {
		return nil, nil
	}
	b, err := json.Marshal(progress)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal progress json: %w", err)
	}
	s := string(b)
	return &s, nil
}

func Start(db *sql.DB, name string, phase string) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		INSERT INTO run_jobs (name, status, phase, cursor, started_at, updated_at, last_error, progress_json)
		VALUES (?, 'running', ?, NULL, ?, ?, NULL, NULL)
		ON CONFLICT(name) DO UPDATE SET
			status = 'running',
			phase = excluded.phase,
			cursor = NULL,
			started_at = excluded.started_at,
			updated_at = excluded.updated_at,
			last_error = NULL,
			progress_json = NULL
	`, name, phase, now, now)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

func Update(db *sql.DB, name string, phase string, cursor *string, progress any) error {
	return write(db, name, "running", phase, cursor, nil, progress)
}

func FinishSuccess(db *sql.DB, name string, phase string, cursor *string, progress any) error {
	return write(db, name, "success", phase, cursor, nil, progress)
}

func FinishError(db *sql.DB, name string, phase string, cursor *string, errMsg string, progress any) error {
	return write(db, name, "error", phase, cursor, &errMsg, progress)
}

func write(db *sql.DB, name, status, phase string, cursor *string, errMsg *string, progress any) error {
	progressJSON, err := marshalProgress(progress)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = db.Exec(`
		INSERT INTO run_jobs (name, status, phase, cursor, started_at, updated_at, last_error, progress_json)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			status = excluded.status,
			phase = excluded.phase,
			cursor = excluded.cursor,
			updated_at = excluded.updated_at,
			last_error = excluded.last_error,
			progress_json = excluded.progress_json
	`, name, status, phase, cursor, now, errMsg, progressJSON)
	if err != nil {
		return fmt.Errorf("failed to write run %s: %w", name, err)
	}
	return nil
}

func List(db *sql.DB) ([]RunStatus, error) {
	rows, err := db.Query(`
		SELECT name, status, phase, cursor, started_at, updated_at, last_error, progress_json
		FROM run_jobs
		ORDER BY updated_at DESC, name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunStatus
	for rows.Next() {
		var name, status, phase string
		var cursor sql.NullString
		var startedAt sql.NullInt64
		var updatedAt int64
		var lastErr sql.NullString
		var progressJSON sql.NullString
		if err := rows.Scan(&name, &status, &phase, &cursor, &startedAt, &updatedAt, &lastErr, &progressJSON); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		rs := RunStatus{
			Name:      name,
			Status:    status,
			Phase:     phase,
			UpdatedAt: updatedAt,
		}
		if cursor.Valid {
			rs.Cursor = &cursor.String
		}
		if startedAt.Valid {
			v := startedAt.Int64
			rs.StartedAt = &v
		}
		if lastErr.Valid {
			rs.LastError = &lastErr.String
		}
		if progressJSON.Valid && progressJSON.String != "" {
			raw := progressJSON.String
			rs.ProgressRaw = &raw
			var m map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &m); err == nil {
				rs.Progress = m
			}
		}

		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating run rows: %w", err)
	}
	return out, nil
}
