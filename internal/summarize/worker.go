// Package summarize drains the section summary queue through an LLM and
// stores the resulting consensus summaries.
package summarize

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Napageneral/dailwatch/internal/bus"
	"github.com/Napageneral/dailwatch/internal/tasks"
)

// SpeechText is one utterance as it is shown to the model.
type SpeechText struct {
	Speaker string
	Role    string
	Text    string
}

// SectionText is the prompt material for one section.
type SectionText struct {
	SectionID  string
	Chamber    string
	Date       string
	Title      string
	DebateType string
	Question   string
	Speeches   []SpeechText
}

// Summarizer produces a summary for one section.
type Summarizer interface {
	Summarize(ctx context.Context, section SectionText) (string, error)
}

// BuildPrompt renders a section as plain text, truncated to maxChars when
// maxChars > 0.
func BuildPrompt(s SectionText, maxChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Chamber: %s\nDate: %s\nSection: %s\n", s.Chamber, s.Date, s.Title)
	if s.DebateType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", s.DebateType)
	}
	if s.Question != "" {
		fmt.Fprintf(&sb, "\nQuestion:\n%s\n", s.Question)
	}
	sb.WriteString("\nTranscript:\n")
	for _, sp := range s.Speeches {
		speaker := sp.Speaker
		if speaker == "" {
			speaker = "Unknown speaker"
		}
		if sp.Role != "" {
			speaker += " (" + sp.Role + ")"
		}
		fmt.Fprintf(&sb, "\n%s:\n%s\n", speaker, sp.Text)
	}
	out := sb.String()
	if maxChars > 0 && len(out) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(out[cut]) {
			cut--
		}
		out = out[:cut] + "\n[transcript truncated]"
	}
	return out
}

// LoadSection reads a stored section and its speeches in order.
func LoadSection(ctx context.Context, db *sql.DB, sectionID string) (SectionText, error) {
	s := SectionText{SectionID: sectionID}
	var meta sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT d.chamber, d.date, s.title, s.debate_type, s.metadata_json
		FROM debate_sections s JOIN debate_days d ON d.id = s.day_id
		WHERE s.id = ?
	`, sectionID).Scan(&s.Chamber, &s.Date, &s.Title, &s.DebateType, &meta)
	if err != nil {
		return s, fmt.Errorf("load section %s: %w", sectionID, err)
	}
	if meta.Valid && meta.String != "" {
		var m struct {
			Question *struct {
				Text string `json:"text"`
			} `json:"question"`
		}
		if err := json.Unmarshal([]byte(meta.String), &m); err == nil && m.Question != nil {
			s.Question = m.Question.Text
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT COALESCE(speaker_name, ''), COALESCE(speaker_role, ''), paragraphs_json
		FROM speeches WHERE section_id = ?
		ORDER BY order_index
	`, sectionID)
	if err != nil {
		return s, fmt.Errorf("load speeches for %s: %w", sectionID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sp SpeechText
		var pj string
		if err := rows.Scan(&sp.Speaker, &sp.Role, &pj); err != nil {
			return s, fmt.Errorf("scan speech: %w", err)
		}
		var paragraphs []string
		if err := json.Unmarshal([]byte(pj), &paragraphs); err != nil {
			return s, fmt.Errorf("decode paragraphs: %w", err)
		}
		sp.Text = strings.Join(paragraphs, "\n")
		s.Speeches = append(s.Speeches, sp)
	}
	return s, rows.Err()
}

// Worker claims summary tasks and writes section_summaries.
type Worker struct {
	DB          *sql.DB
	Summarizer  Summarizer
	Model       string
	MaxAttempts int
	Logf        func(format string, args ...any)
}

func NewWorker(db *sql.DB, s Summarizer, model string, maxAttempts int) *Worker {
	return &Worker{DB: db, Summarizer: s, Model: model, MaxAttempts: maxAttempts, Logf: log.Printf}
}

func (w *Worker) logf(format string, args ...any) {
	if w.Logf != nil {
		w.Logf(format, args...)
	}
}

// WorkerResult counts one RunOnce pass.
type WorkerResult struct {
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retrying  int `json:"retrying"`
}

// RunOnce processes up to limit pending tasks sequentially. A task that
// errors goes back to pending until it has used MaxAttempts, then fails.
func (w *Worker) RunOnce(ctx context.Context, limit int) (*WorkerResult, error) {
	if w.Summarizer == nil {
		return nil, errors.New("no summarizer configured")
	}
	claimed, err := tasks.Claim(ctx, w.DB, tasks.TypeSectionSummary, limit)
	if err != nil {
		return nil, err
	}
	res := &WorkerResult{Claimed: len(claimed)}

	for i, t := range claimed {
		if ctx.Err() != nil {
			w.releaseAll(claimed[i:])
			return res, ctx.Err()
		}
		if err := w.setSummary(ctx, t.SectionID, "", tasks.StatusProcessing); err != nil {
			return res, err
		}

		text, err := w.summarize(ctx, t.SectionID)
		if err != nil {
			if ctx.Err() != nil {
				w.releaseAll(claimed[i:])
				return res, ctx.Err()
			}
			if w.MaxAttempts > 0 && t.Attempts < w.MaxAttempts {
				w.logf("[summarize] section %s attempt %d failed, will retry: %v", t.SectionID, t.Attempts, err)
				if rerr := tasks.Release(ctx, w.DB, t.ID); rerr != nil {
					return res, rerr
				}
				if serr := w.setSummary(ctx, t.SectionID, "", tasks.StatusPending); serr != nil {
					return res, serr
				}
				res.Retrying++
				continue
			}
			w.logf("[summarize] section %s failed: %v", t.SectionID, err)
			if ferr := tasks.Fail(ctx, w.DB, t.ID, err.Error()); ferr != nil {
				return res, ferr
			}
			if serr := w.setSummary(ctx, t.SectionID, "", tasks.StatusFailed); serr != nil {
				return res, serr
			}
			if berr := bus.Emit(ctx, w.DB, bus.TypeSummaryFailed, "", t.SectionID, map[string]any{"attempts": t.Attempts, "error": err.Error()}); berr != nil {
				return res, berr
			}
			res.Failed++
			continue
		}

		if err := w.setSummary(ctx, t.SectionID, text, tasks.StatusComplete); err != nil {
			return res, err
		}
		if err := tasks.Complete(ctx, w.DB, t.ID); err != nil {
			return res, err
		}
		if err := bus.Emit(ctx, w.DB, bus.TypeSummaryCompleted, "", t.SectionID, map[string]string{"model": w.Model}); err != nil {
			return res, err
		}
		res.Completed++
	}

	w.logf("[summarize] claimed %d: %d complete, %d retrying, %d failed", res.Claimed, res.Completed, res.Retrying, res.Failed)
	return res, nil
}

func (w *Worker) summarize(ctx context.Context, sectionID string) (string, error) {
	section, err := LoadSection(ctx, w.DB, sectionID)
	if err != nil {
		return "", err
	}
	if len(section.Speeches) == 0 {
		return "", errors.New("section has no speeches")
	}
	return w.Summarizer.Summarize(ctx, section)
}

func (w *Worker) setSummary(ctx context.Context, sectionID, summary, status string) error {
	var model any
	if w.Model != "" {
		model = w.Model
	}
	_, err := w.DB.ExecContext(ctx, `
		INSERT INTO section_summaries (section_id, summary, status, model, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(section_id) DO UPDATE SET
			summary = CASE WHEN excluded.status = 'complete' THEN excluded.summary ELSE section_summaries.summary END,
			status = excluded.status,
			model = excluded.model,
			updated_at = excluded.updated_at
	`, sectionID, summary, status, model, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write summary for %s: %w", sectionID, err)
	}
	return nil
}

// releaseAll returns unprocessed tasks to pending on shutdown.
func (w *Worker) releaseAll(ts []tasks.Task) {
	ctx := context.Background()
	for _, t := range ts {
		if err := tasks.Release(ctx, w.DB, t.ID); err != nil {
			w.logf("[summarize] release %s: %v", t.ID, err)
		}
		if err := w.setSummary(ctx, t.SectionID, "", tasks.StatusPending); err != nil {
			w.logf("[summarize] reset summary %s: %v", t.SectionID, err)
		}
	}
}
