package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
)

// Snapshot is a stored metrics row joined with the legislator's name.
type Snapshot struct {
	LegislatorID       int64            `json:"legislator_id"`
	FullName           string           `json:"full_name"`
	PeriodStart        string           `json:"period_start"`
	PeriodEnd          string           `json:"period_end"`
	Speeches           int              `json:"speeches"`
	Words              int              `json:"words_spoken"`
	UniqueTopics       int              `json:"unique_topics"`
	EngagementScore    float64          `json:"engagement_score"`
	LeadershipScore    float64          `json:"leadership_score"`
	SentimentScore     *float64         `json:"sentiment_score"`
	InfluenceScore     float64          `json:"influence_score"`
	EffectivenessScore float64          `json:"effectiveness_score"`
	Minutes            float64          `json:"minutes"`
	Outcomes           OutcomeTally     `json:"outcomes"`
	Metadata           *json.RawMessage `json:"metadata,omitempty"`
	ComputedAt         int64            `json:"computed_at"`
}

// LoadSnapshots returns the stored snapshots for exactly [start, end].
func LoadSnapshots(ctx context.Context, db *sql.DB, start, end string) ([]Snapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.legislator_id, COALESCE(l.full_name, ''), m.period_start, m.period_end,
			m.speeches, m.words_spoken, m.unique_topics, m.engagement_score, m.leadership_score,
			m.sentiment_score, m.influence_score, m.effectiveness_score, m.metadata_json, m.computed_at
		FROM td_metrics_snapshots m
		LEFT JOIN legislators l ON l.id = m.legislator_id
		WHERE m.period_start = ? AND m.period_end = ?
		ORDER BY m.legislator_id
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var sentiment sql.NullFloat64
		var meta sql.NullString
		if err := rows.Scan(&s.LegislatorID, &s.FullName, &s.PeriodStart, &s.PeriodEnd,
			&s.Speeches, &s.Words, &s.UniqueTopics, &s.EngagementScore, &s.LeadershipScore,
			&sentiment, &s.InfluenceScore, &s.EffectivenessScore, &meta, &s.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if sentiment.Valid {
			v := sentiment.Float64
			s.SentimentScore = &v
		}
		if meta.Valid && meta.String != "" {
			raw := json.RawMessage(meta.String)
			s.Metadata = &raw
			var m snapshotMetadata
			if err := json.Unmarshal(raw, &m); err == nil {
				s.Minutes = round(m.Minutes, 2)
				s.Outcomes = m.Outcomes
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadIssueFocus returns a legislator's topics for [start, end], largest first.
func LoadIssueFocus(ctx context.Context, db *sql.DB, legislatorID int64, start, end string) ([]IssueFocus, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT topic, minutes, percentage FROM issue_focus
		WHERE legislator_id = ? AND period_start = ? AND period_end = ?
		ORDER BY minutes DESC, topic ASC
	`, legislatorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query issue focus: %w", err)
	}
	defer rows.Close()

	var out []IssueFocus
	for rows.Next() {
		var f IssueFocus
		if err := rows.Scan(&f.Topic, &f.Minutes, &f.Percentage); err != nil {
			return nil, fmt.Errorf("scan issue focus: %w", err)
		}
		f.Minutes = round(f.Minutes, 2)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Period is a computed reporting window.
type Period struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	Snapshots  int    `json:"snapshots"`
	ComputedAt int64  `json:"computed_at"`
}

// ListPeriods returns the windows that have snapshots, newest first.
func ListPeriods(ctx context.Context, db *sql.DB) ([]Period, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT period_start, period_end, COUNT(*), MAX(computed_at)
		FROM td_metrics_snapshots
		GROUP BY period_start, period_end
		ORDER BY period_end DESC, period_start DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query periods: %w", err)
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		var p Period
		if err := rows.Scan(&p.Start, &p.End, &p.Snapshots, &p.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan period: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Ranked is a snapshot with its 1-based position.
type Ranked struct {
	Rank int `json:"rank"`
	Snapshot
}

// Rank orders snapshots by effectiveness, then influence, then words, then
// legislator id, and numbers them 1..n.
func Rank(snapshots []Snapshot) []Ranked {
	sorted := append([]Snapshot(nil), snapshots...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.EffectivenessScore != b.EffectivenessScore {
			return a.EffectivenessScore > b.EffectivenessScore
		}
		if a.InfluenceScore != b.InfluenceScore {
			return a.InfluenceScore > b.InfluenceScore
		}
		if a.Words != b.Words {
			return a.Words > b.Words
		}
		return a.LegislatorID < b.LegislatorID
	})
	out := make([]Ranked, len(sorted))
	for i, s := range sorted {
		out[i] = Ranked{Rank: i + 1, Snapshot: s}
	}
	return out
}

// Highlight is a section eligible for narrative generation: it has a
// complete summary and a recorded outcome.
type Highlight struct {
	SectionID    string   `json:"section_id"`
	Date         string   `json:"date"`
	Chamber      string   `json:"chamber"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary"`
	Verdict      string   `json:"verdict"`
	WinnerID     *int64   `json:"winner_id,omitempty"`
	WinnerName   string   `json:"winner_name,omitempty"`
	RunnerUpID   *int64   `json:"runner_up_id,omitempty"`
	RunnerUpName string   `json:"runner_up_name,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Narrative    string   `json:"narrative,omitempty"`
}

// HighlightCandidates lists sections in [start, end] that pass the highlight
// gate, in date and document order.
func HighlightCandidates(ctx context.Context, db *sql.DB, start, end string) ([]Highlight, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, d.date, d.chamber, s.title, sm.summary, o.verdict,
			o.winner_legislator_id, COALESCE(w.full_name, ''),
			o.runner_up_legislator_id, COALESCE(r.full_name, ''),
			o.confidence, COALESCE(o.narrative, '')
		FROM debate_sections s
		JOIN debate_days d ON d.id = s.day_id
		JOIN section_summaries sm ON sm.section_id = s.id AND sm.status = 'complete'
		JOIN section_outcomes o ON o.section_id = s.id
		LEFT JOIN legislators w ON w.id = o.winner_legislator_id
		LEFT JOIN legislators r ON r.id = o.runner_up_legislator_id
		WHERE d.date BETWEEN ? AND ?
		ORDER BY d.date, s.order_index
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query highlights: %w", err)
	}
	defer rows.Close()

	var out []Highlight
	for rows.Next() {
		var h Highlight
		var winner, runnerUp sql.NullInt64
		var confidence sql.NullFloat64
		if err := rows.Scan(&h.SectionID, &h.Date, &h.Chamber, &h.Title, &h.Summary, &h.Verdict,
			&winner, &h.WinnerName, &runnerUp, &h.RunnerUpName, &confidence, &h.Narrative); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		if winner.Valid {
			v := winner.Int64
			h.WinnerID = &v
		}
		if runnerUp.Valid {
			v := runnerUp.Int64
			h.RunnerUpID = &v
		}
		if confidence.Valid {
			v := confidence.Float64
			h.Confidence = &v
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
