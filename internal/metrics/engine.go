package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Napageneral/dailwatch/internal/bus"
	"github.com/Napageneral/dailwatch/internal/legislators"
	"github.com/Napageneral/dailwatch/internal/runs"
	"github.com/Napageneral/dailwatch/internal/topics"
)

const dateLayout = "2006-01-02"

// Engine recomputes a period's snapshots from stored rows.
type Engine struct {
	DB         *sql.DB
	Weights    Weights
	Classifier *topics.Classifier
	Logf       func(format string, args ...any)
}

func NewEngine(db *sql.DB, w Weights) *Engine {
	return &Engine{DB: db, Weights: w, Classifier: topics.Default(), Logf: log.Printf}
}

func (e *Engine) logf(format string, args ...any) {
	if e.Logf != nil {
		e.Logf(format, args...)
	}
}

// RunResult summarizes one aggregation.
type RunResult struct {
	PeriodStart  string `json:"period_start"`
	PeriodEnd    string `json:"period_end"`
	Days         int    `json:"days"`
	Sections     int    `json:"sections"`
	Speeches     int    `json:"speeches"`
	Unattributed int    `json:"unattributed_speeches"`
	Legislators  int    `json:"legislators"`
	Snapshots    int    `json:"snapshots"`
	IssueRows    int    `json:"issue_rows"`
	Collisions   int    `json:"collisions"`
	Duration     string `json:"duration"`
}

// ValidatePeriod checks both bounds are YYYY-MM-DD and start <= end.
func ValidatePeriod(start, end string) error {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return fmt.Errorf("invalid period start %q: %w", start, err)
	}
	en, err := time.Parse(dateLayout, end)
	if err != nil {
		return fmt.Errorf("invalid period end %q: %w", end, err)
	}
	if en.Before(s) {
		return fmt.Errorf("period end %s is before start %s", end, start)
	}
	return nil
}

// RunName is the run_jobs key for a period.
func RunName(start, end string) string {
	return "aggregate:" + start + ".." + end
}

// Run loads the period, computes every legislator's metrics and replaces the
// period's snapshot and issue-focus rows in one transaction. Runs for the same
// period must be serialized by the caller.
func (e *Engine) Run(ctx context.Context, start, end string) (*RunResult, error) {
	if err := ValidatePeriod(start, end); err != nil {
		return nil, err
	}
	started := time.Now()
	name := RunName(start, end)
	if err := runs.Start(e.DB, name, "load"); err != nil {
		return nil, err
	}

	res, err := e.run(ctx, start, end)
	if err != nil {
		if ferr := runs.FinishError(e.DB, name, "aborted", nil, err.Error(), nil); ferr != nil {
			e.logf("[aggregate] failed to record run error: %v", ferr)
		}
		return nil, err
	}
	res.Duration = time.Since(started).Round(time.Millisecond).String()
	if err := runs.FinishSuccess(e.DB, name, "done", nil, res); err != nil {
		return res, err
	}
	e.logf("[aggregate] %s..%s: %d legislators, %d speeches (%d unattributed), %d issue rows in %s",
		start, end, res.Legislators, res.Speeches, res.Unattributed, res.IssueRows, res.Duration)
	return res, nil
}

func (e *Engine) run(ctx context.Context, start, end string) (*RunResult, error) {
	in, days, err := e.load(ctx, start, end)
	if err != nil {
		return nil, err
	}
	computed := Compute(in, e.Weights)
	for _, c := range computed.Collisions {
		e.logf("[aggregate] key %q claimed by legislators %d and %d; keeping %d", c.Key, c.Kept, c.Dropped, c.Kept)
	}

	res := &RunResult{
		PeriodStart:  start,
		PeriodEnd:    end,
		Days:         days,
		Sections:     len(in.Sections),
		Speeches:     computed.Speeches,
		Unattributed: computed.Unattributed,
		Legislators:  len(computed.Legislators),
		Collisions:   len(computed.Collisions),
	}
	snapshots, issues, err := e.persist(ctx, start, end, computed.Legislators)
	if err != nil {
		return nil, err
	}
	res.Snapshots = snapshots
	res.IssueRows = issues

	if err := bus.Emit(ctx, e.DB, bus.TypeMetricsComputed, start+".."+end, "", map[string]int{
		"legislators": res.Legislators,
		"snapshots":   res.Snapshots,
		"issue_rows":  res.IssueRows,
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) load(ctx context.Context, start, end string) (Input, int, error) {
	in := Input{Classifier: e.Classifier}

	reg, err := legislators.Load(ctx, e.DB)
	if err != nil {
		return in, 0, err
	}
	in.Legislators = reg

	var days int
	if err := e.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM debate_days WHERE date BETWEEN ? AND ?
	`, start, end).Scan(&days); err != nil {
		return in, 0, fmt.Errorf("count days: %w", err)
	}

	if in.Sections, err = loadSections(ctx, e.DB, start, end); err != nil {
		return in, 0, err
	}
	if in.Speeches, err = loadSpeeches(ctx, e.DB, start, end); err != nil {
		return in, 0, err
	}
	if in.Outcomes, err = loadOutcomes(ctx, e.DB, start, end); err != nil {
		return in, 0, err
	}
	return in, days, nil
}

func loadSections(ctx context.Context, db *sql.DB, start, end string) ([]Section, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, d.chamber, s.title, s.debate_type, COALESCE(sm.summary, ''), COALESCE(sm.status, '')
		FROM debate_sections s
		JOIN debate_days d ON d.id = s.day_id
		LEFT JOIN section_summaries sm ON sm.section_id = s.id
		WHERE d.date BETWEEN ? AND ?
		ORDER BY d.date, s.order_index
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	defer rows.Close()

	var out []Section
	for rows.Next() {
		var s Section
		var status string
		if err := rows.Scan(&s.ID, &s.Chamber, &s.Title, &s.DebateType, &s.Summary, &status); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		s.SummaryComplete = status == "complete"
		out = append(out, s)
	}
	return out, rows.Err()
}

func loadSpeeches(ctx context.Context, db *sql.DB, start, end string) ([]Speech, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sp.id, sp.section_id, COALESCE(sp.speaker_ref, ''), COALESCE(sp.speaker_name, ''),
			COALESCE(sp.speaker_role, ''), sp.word_count, sp.metadata_json,
			st.speech_id, st.topic, st.sentiment, st.certainty
		FROM speeches sp
		JOIN debate_sections s ON s.id = sp.section_id
		JOIN debate_days d ON d.id = s.day_id
		LEFT JOIN speech_stances st ON st.speech_id = sp.id
		WHERE d.date BETWEEN ? AND ?
		ORDER BY d.date, s.order_index, sp.order_index
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("load speeches: %w", err)
	}
	defer rows.Close()

	var out []Speech
	for rows.Next() {
		var sp Speech
		var meta, stanceID, topic, sentiment sql.NullString
		var certainty sql.NullFloat64
		if err := rows.Scan(&sp.ID, &sp.SectionID, &sp.SpeakerRef, &sp.SpeakerName, &sp.SpeakerRole,
			&sp.WordCount, &meta, &stanceID, &topic, &sentiment, &certainty); err != nil {
			return nil, fmt.Errorf("scan speech: %w", err)
		}
		if meta.Valid && meta.String != "" {
			var m struct {
				SpeakerURI string `json:"speaker_uri"`
			}
			if err := json.Unmarshal([]byte(meta.String), &m); err == nil {
				sp.SpeakerURI = m.SpeakerURI
			}
		}
		if stanceID.Valid {
			sp.Stance = &Stance{Topic: topic.String, Sentiment: sentiment.String, Certainty: certainty.Float64}
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func loadOutcomes(ctx context.Context, db *sql.DB, start, end string) ([]Outcome, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT o.section_id, o.winner_legislator_id, o.runner_up_legislator_id, o.verdict
		FROM section_outcomes o
		JOIN debate_sections s ON s.id = o.section_id
		JOIN debate_days d ON d.id = s.day_id
		WHERE d.date BETWEEN ? AND ?
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var winner, runnerUp sql.NullInt64
		if err := rows.Scan(&o.SectionID, &winner, &runnerUp, &o.Verdict); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.WinnerID = winner.Int64
		o.RunnerUpID = runnerUp.Int64
		out = append(out, o)
	}
	return out, rows.Err()
}

type snapshotMetadata struct {
	Minutes         float64            `json:"minutes"`
	SectionsTouched int                `json:"sections_touched"`
	ChamberMinutes  map[string]float64 `json:"chamber_minutes"`
	Sentiment       SentimentTotals    `json:"sentiment_totals"`
	Outcomes        OutcomeTally       `json:"outcomes"`
}

func (e *Engine) persist(ctx context.Context, start, end string, computed []LegislatorMetrics) (int, int, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin aggregate tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM td_metrics_snapshots WHERE period_start = ? AND period_end = ?`, start, end); err != nil {
		return 0, 0, fmt.Errorf("clear snapshots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM issue_focus WHERE period_start = ? AND period_end = ?`, start, end); err != nil {
		return 0, 0, fmt.Errorf("clear issue focus: %w", err)
	}

	snapStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO td_metrics_snapshots (
			legislator_id, period_start, period_end, speeches, words_spoken, unique_topics,
			engagement_score, leadership_score, sentiment_score, influence_score, effectiveness_score,
			metadata_json, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(legislator_id, period_start, period_end) DO UPDATE SET
			speeches = excluded.speeches,
			words_spoken = excluded.words_spoken,
			unique_topics = excluded.unique_topics,
			engagement_score = excluded.engagement_score,
			leadership_score = excluded.leadership_score,
			sentiment_score = excluded.sentiment_score,
			influence_score = excluded.influence_score,
			effectiveness_score = excluded.effectiveness_score,
			metadata_json = excluded.metadata_json,
			computed_at = excluded.computed_at
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer snapStmt.Close()

	issueStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issue_focus (legislator_id, topic, period_start, period_end, minutes, percentage, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(legislator_id, topic, period_start, period_end) DO UPDATE SET
			minutes = excluded.minutes,
			percentage = excluded.percentage,
			computed_at = excluded.computed_at
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("prepare issue insert: %w", err)
	}
	defer issueStmt.Close()

	now := time.Now().Unix()
	var snapshots, issues int
	for _, m := range computed {
		meta, err := json.Marshal(snapshotMetadata{
			Minutes:         m.Minutes,
			SectionsTouched: m.SectionsTouched,
			ChamberMinutes:  m.ChamberMinutes,
			Sentiment:       m.Sentiment,
			Outcomes:        m.Outcomes,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("marshal snapshot metadata: %w", err)
		}
		var sentiment any
		if m.SentimentScore != nil {
			sentiment = *m.SentimentScore
		}
		if _, err := snapStmt.ExecContext(ctx,
			m.LegislatorID, start, end, m.Speeches, m.Words, m.UniqueTopics(),
			m.EngagementScore, m.LeadershipScore, sentiment, m.InfluenceScore, m.EffectivenessScore,
			string(meta), now,
		); err != nil {
			return 0, 0, fmt.Errorf("write snapshot for legislator %d: %w", m.LegislatorID, err)
		}
		snapshots++

		for _, f := range m.IssueBreakdown() {
			if _, err := issueStmt.ExecContext(ctx, m.LegislatorID, f.Topic, start, end, f.Minutes, f.Percentage, now); err != nil {
				return 0, 0, fmt.Errorf("write issue focus for legislator %d: %w", m.LegislatorID, err)
			}
			issues++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit aggregate tx: %w", err)
	}
	return snapshots, issues, nil
}
