// Package tasks is the summary work queue. One row exists per
// (section, task type); a failed row is reset in place rather than duplicated.
package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TypeSectionSummary is the consensus-summary task enqueued by ingestion.
const TypeSectionSummary = "section_summary"

// Task statuses. Summaries share the same vocabulary.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusFailed     = "failed"
)

// lookupChunk bounds the IN (...) lists used for dedup queries.
const lookupChunk = 400

// Task is one queued unit of work.
type Task struct {
	ID        string         `json:"id"`
	SectionID string         `json:"section_id"`
	TaskType  string         `json:"task_type"`
	Status    string         `json:"status"`
	Attempts  int            `json:"attempts"`
	Priority  int            `json:"priority"`
	Payload   map[string]any `json:"payload,omitempty"`
	LastError *string        `json:"last_error,omitempty"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// Candidate is a section that may need a summary.
type Candidate struct {
	SectionID string
	Priority  int
	Payload   map[string]any
}

// EnsureStats counts what EnsureForSections did.
type EnsureStats struct {
	Enqueued      int `json:"enqueued"`
	Reset         int `json:"reset"`
	SkippedActive int `json:"skipped_active"`
	SkippedDone   int `json:"skipped_summarized"`
}

// EnsureForSections makes sure every candidate has exactly one live summary
// task. Sections with a complete summary or a pending/processing/complete task
// are skipped; failed tasks go back to pending with attempts cleared; anything
// else gets a new pending task.
func EnsureForSections(ctx context.Context, db *sql.DB, taskType string, candidates []Candidate) (EnsureStats, error) {
	var stats EnsureStats
	if len(candidates) == 0 {
		return stats, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.SectionID)
	}

	summarized, err := completeSummaries(ctx, db, ids)
	if err != nil {
		return stats, err
	}
	existing, err := taskStatuses(ctx, db, taskType, ids)
	if err != nil {
		return stats, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin task tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, c := range candidates {
		if summarized[c.SectionID] {
			stats.SkippedDone++
			continue
		}
		switch existing[c.SectionID] {
		case StatusPending, StatusProcessing, StatusComplete:
			stats.SkippedActive++
			continue
		case StatusFailed:
			if _, err := tx.ExecContext(ctx, `
				UPDATE summary_tasks
				SET status = ?, attempts = 0, last_error = NULL, updated_at = ?
				WHERE section_id = ? AND task_type = ?
			`, StatusPending, now, c.SectionID, taskType); err != nil {
				return stats, fmt.Errorf("reset failed task for %s: %w", c.SectionID, err)
			}
			stats.Reset++
			continue
		}

		payload, err := marshalPayload(c.Payload)
		if err != nil {
			return stats, err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO summary_tasks (id, section_id, task_type, status, attempts, priority, payload_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)
			ON CONFLICT(section_id, task_type) DO NOTHING
		`, uuid.New().String(), c.SectionID, taskType, StatusPending, c.Priority, payload, now, now)
		if err != nil {
			return stats, fmt.Errorf("enqueue task for %s: %w", c.SectionID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return stats, fmt.Errorf("enqueue task for %s: %w", c.SectionID, err)
		}
		if n == 0 {
			// Duplicate candidate in this batch, or a row written since the
			// status lookup.
			stats.SkippedActive++
			continue
		}
		stats.Enqueued++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit task tx: %w", err)
	}
	return stats, nil
}

func marshalPayload(p map[string]any) (*string, error) {
	if len(p) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	s := string(b)
	return &s, nil
}

func completeSummaries(ctx context.Context, db *sql.DB, sectionIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	err := forChunks(sectionIDs, func(chunk []string, args []any) error {
		rows, err := db.QueryContext(ctx, `
			SELECT section_id FROM section_summaries
			WHERE status = ? AND section_id IN (`+placeholders(len(chunk))+`)
		`, append([]any{StatusComplete}, args...)...)
		if err != nil {
			return fmt.Errorf("query summaries: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scan summary: %w", err)
			}
			out[id] = true
		}
		return rows.Err()
	})
	return out, err
}

func taskStatuses(ctx context.Context, db *sql.DB, taskType string, sectionIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	err := forChunks(sectionIDs, func(chunk []string, args []any) error {
		rows, err := db.QueryContext(ctx, `
			SELECT section_id, status FROM summary_tasks
			WHERE task_type = ? AND section_id IN (`+placeholders(len(chunk))+`)
		`, append([]any{taskType}, args...)...)
		if err != nil {
			return fmt.Errorf("query tasks: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id, status string
			if err := rows.Scan(&id, &status); err != nil {
				return fmt.Errorf("scan task: %w", err)
			}
			out[id] = status
		}
		return rows.Err()
	})
	return out, err
}

func forChunks(ids []string, fn func(chunk []string, args []any) error) error {
	for start := 0; start < len(ids); start += lookupChunk {
		end := start + lookupChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		if err := fn(chunk, args); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Claim moves up to limit pending tasks of taskType to processing, highest
// priority first, bumping their attempt count.
func Claim(ctx context.Context, db *sql.DB, taskType string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 1
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, section_id, task_type, status, attempts, priority, payload_json, last_error, created_at, updated_at
		FROM summary_tasks
		WHERE task_type = ? AND status = ?
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT ?
	`, taskType, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending tasks: %w", err)
	}
	claimed, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	for i := range claimed {
		if _, err := tx.ExecContext(ctx, `
			UPDATE summary_tasks SET status = ?, attempts = attempts + 1, updated_at = ?
			WHERE id = ?
		`, StatusProcessing, now, claimed[i].ID); err != nil {
			return nil, fmt.Errorf("claim task %s: %w", claimed[i].ID, err)
		}
		claimed[i].Status = StatusProcessing
		claimed[i].Attempts++
		claimed[i].UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return claimed, nil
}

// Complete marks a task complete.
func Complete(ctx context.Context, db *sql.DB, id string) error {
	return setStatus(ctx, db, id, StatusComplete, nil)
}

// Fail marks a task failed with errMsg. The next ingestion pass that touches
// the section resets it.
func Fail(ctx context.Context, db *sql.DB, id string, errMsg string) error {
	return setStatus(ctx, db, id, StatusFailed, &errMsg)
}

// Release returns a processing task to pending, e.g. on shutdown.
func Release(ctx context.Context, db *sql.DB, id string) error {
	return setStatus(ctx, db, id, StatusPending, nil)
}

func setStatus(ctx context.Context, db *sql.DB, id, status string, errMsg *string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE summary_tasks SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, status, errMsg, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set task %s to %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

// List returns tasks, optionally filtered by status, newest first.
func List(ctx context.Context, db *sql.DB, status string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, section_id, task_type, status, attempts, priority, payload_json, last_error, created_at, updated_at
		FROM summary_tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	return scanTasks(rows)
}

// Counts returns the number of tasks per status.
func Counts(ctx context.Context, db *sql.DB) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM summary_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan task count: %w", err)
		}
		out[status] = n
	}
	return out, rows.Err()
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	var out []Task
	for rows.Next() {
		var t Task
		var payload, lastErr sql.NullString
		if err := rows.Scan(&t.ID, &t.SectionID, &t.TaskType, &t.Status, &t.Attempts, &t.Priority,
			&payload, &lastErr, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		if payload.Valid && payload.String != "" {
			var m map[string]any
			if err := json.Unmarshal([]byte(payload.String), &m); err == nil {
				t.Payload = m
			}
		}
		if lastErr.Valid {
			t.LastError = &lastErr.String
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating task rows: %w", err)
	}
	return out, nil
}
