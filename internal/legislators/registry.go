// Package legislators loads the canonical legislator registry and resolves
// speaker labels against it.
package legislators

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Legislator is a canonical registry entry.
type Legislator struct {
	ID         int64  `json:"id"`
	FullName   string `json:"full_name"`
	MemberCode string `json:"member_code,omitempty"`
	MemberURI  string `json:"member_uri,omitempty"`
}

// Load returns the registry in insertion order.
func Load(ctx context.Context, db *sql.DB) ([]Legislator, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, full_name, member_code, member_uri
		FROM legislators
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query legislators: %w", err)
	}
	defer rows.Close()

	var out []Legislator
	for rows.Next() {
		var l Legislator
		var code, uri sql.NullString
		if err := rows.Scan(&l.ID, &l.FullName, &code, &uri); err != nil {
			return nil, fmt.Errorf("scan legislator: %w", err)
		}
		l.MemberCode = code.String
		l.MemberURI = uri.String
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating legislators: %w", err)
	}
	return out, nil
}

// UpsertStats counts the outcome of an Upsert.
type UpsertStats struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
}

// Upsert writes legislators keyed on member code. Entries without a member
// code cannot be matched on re-import and are skipped. Existing ids are kept.
func Upsert(ctx context.Context, db *sql.DB, entries []Legislator) (UpsertStats, error) {
	var stats UpsertStats

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin legislator upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO legislators (full_name, member_code, member_uri, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(member_code) DO UPDATE SET
			full_name = excluded.full_name,
			member_uri = excluded.member_uri,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return stats, fmt.Errorf("prepare legislator upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, l := range entries {
		code := strings.TrimSpace(l.MemberCode)
		name := strings.TrimSpace(l.FullName)
		if code == "" || name == "" {
			stats.Skipped++
			continue
		}
		var uri any
		if l.MemberURI != "" {
			uri = l.MemberURI
		}
		if _, err := stmt.ExecContext(ctx, name, code, uri, now); err != nil {
			return stats, fmt.Errorf("upsert legislator %s: %w", code, err)
		}
		stats.Written++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit legislator upsert: %w", err)
	}
	return stats, nil
}
