package ingest

import (
	"context"
	"database/sql"
	"fmt"
)

// Day is a stored chamber-day row.
type Day struct {
	ID           string `json:"id"`
	Chamber      string `json:"chamber"`
	Date         string `json:"date"`
	Title        string `json:"title"`
	SourceURI    string `json:"source_uri"`
	SectionCount int    `json:"section_count"`
	SpeechCount  int    `json:"speech_count"`
	WordCount    int    `json:"word_count"`
	UpdatedAt    int64  `json:"updated_at"`
}

// ListDays returns stored chamber-days with date in [start, end], oldest
// first. An empty chamber matches all chambers.
func ListDays(ctx context.Context, db *sql.DB, chamber, start, end string) ([]Day, error) {
	query := `
		SELECT id, chamber, date, title, source_uri, section_count, speech_count, word_count, updated_at
		FROM debate_days
		WHERE date BETWEEN ? AND ?`
	args := []any{start, end}
	if chamber != "" {
		query += ` AND chamber = ?`
		args = append(args, chamber)
	}
	query += ` ORDER BY date ASC, chamber ASC, source_uri ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer rows.Close()

	var out []Day
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.ID, &d.Chamber, &d.Date, &d.Title, &d.SourceURI,
			&d.SectionCount, &d.SpeechCount, &d.WordCount, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
