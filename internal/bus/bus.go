// Package bus is an append-only activity log. Pipeline stages emit an event
// after each durable change so API clients can follow along by sequence.
package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeDayIngested      = "day.ingested"
	TypeMetricsComputed  = "metrics.computed"
	TypeSummaryCompleted = "summary.completed"
	TypeSummaryFailed    = "summary.failed"
)

type Event struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Scope     *string         `json:"scope,omitempty"`
	Ref       *string         `json:"ref,omitempty"`
	CreatedAt int64           `json:"created_at"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Emit appends one event. scope is a chamber or period, ref the id of the
// row the event is about; either may be empty.
func Emit(ctx context.Context, db *sql.DB, typ, scope, ref string, payload any) error {
	if typ == "" {
		return fmt.Errorf("type is required")
	}

	var scopeVal, refVal, payloadVal any
	if scope != "" {
		scopeVal = scope
	}
	if ref != "" {
		refVal = ref
	}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		payloadVal = string(b)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO bus_events (id, type, scope, ref, created_at, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), typ, scopeVal, refVal, time.Now().Unix(), payloadVal)
	if err != nil {
		return fmt.Errorf("failed to insert bus event: %w", err)
	}
	return nil
}

// List returns events with seq > afterSeq, oldest first. An empty typ
// matches every type.
func List(ctx context.Context, db *sql.DB, afterSeq int64, typ string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT seq, id, type, scope, ref, created_at, payload_json
		FROM bus_events
		WHERE seq > ?`
	args := []any{afterSeq}
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, typ)
	}
	query += ` ORDER BY seq ASC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bus events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var scope, ref, payload sql.NullString
		if err := rows.Scan(&e.Seq, &e.ID, &e.Type, &scope, &ref, &e.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan bus event: %w", err)
		}
		if scope.Valid {
			e.Scope = &scope.String
		}
		if ref.Valid {
			e.Ref = &ref.String
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating bus events: %w", err)
	}
	return out, nil
}
