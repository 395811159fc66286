package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/Napageneral/dailwatch/internal/oireachtas"
	"github.com/Napageneral/dailwatch/internal/runs"
	"github.com/Napageneral/dailwatch/internal/state"
	"github.com/Napageneral/dailwatch/internal/transcript"
)

// Source lists chamber-days and fetches their transcripts.
type Source interface {
	ListDebates(ctx context.Context, q oireachtas.Query) ([]oireachtas.DebateRecord, error)
	FetchDocument(ctx context.Context, uri string) ([]byte, error)
}

// Options scopes one ingestion run. Dates are YYYY-MM-DD, inclusive.
type Options struct {
	Chamber     string
	ChamberType string
	Start       string
	End         string
	Persist     bool
}

// DayOutcome is the per-day line of a run summary.
type DayOutcome struct {
	Date      string `json:"date"`
	Title     string `json:"title"`
	SourceURI string `json:"source_uri"`
	Sections  int    `json:"sections"`
	Speeches  int    `json:"speeches"`
	Words     int    `json:"words"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RunSummary totals an ingestion run.
type RunSummary struct {
	Chamber       string       `json:"chamber"`
	Start         string       `json:"start"`
	End           string       `json:"end"`
	Persisted     bool         `json:"persisted"`
	DaysListed    int          `json:"days_listed"`
	DaysProcessed int          `json:"days_processed"`
	DaysFailed    int          `json:"days_failed"`
	Sections      int          `json:"sections"`
	Speeches      int          `json:"speeches"`
	Words         int          `json:"words"`
	TasksEnqueued int          `json:"tasks_enqueued"`
	TasksReset    int          `json:"tasks_reset"`
	ListError     string       `json:"list_error,omitempty"`
	Duration      string       `json:"duration"`
	Days          []DayOutcome `json:"days"`
}

// Runner ingests a date range one chamber-day at a time.
type Runner struct {
	DB     *sql.DB
	Source Source
	Syncer *Syncer
	Logf   func(format string, args ...any)
}

func NewRunner(db *sql.DB, source Source) *Runner {
	return &Runner{
		DB:     db,
		Source: source,
		Syncer: NewSyncer(db),
		Logf:   log.Printf,
	}
}

func (r *Runner) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// RunName is the run_jobs key for a chamber's ingestion.
func RunName(chamber string) string {
	return "ingest:" + chamber
}

// Run lists the range and ingests each day in listing order. A failed fetch
// skips that day. A storage error stops the run and is returned together with
// the summary so far.
func (r *Runner) Run(ctx context.Context, opts Options) (*RunSummary, error) {
	if opts.Chamber == "" {
		return nil, fmt.Errorf("chamber is required")
	}
	if opts.Persist && r.DB == nil {
		return nil, fmt.Errorf("persistence requested but no database is configured")
	}
	if r.Source == nil {
		return nil, fmt.Errorf("no debate source configured")
	}
	if r.Syncer == nil {
		r.Syncer = NewSyncer(r.DB)
	}

	started := time.Now()
	sum := &RunSummary{
		Chamber:   opts.Chamber,
		Start:     opts.Start,
		End:       opts.End,
		Persisted: opts.Persist,
	}
	name := RunName(opts.Chamber)
	if opts.Persist {
		if err := runs.Start(r.DB, name, "list"); err != nil {
			return nil, err
		}
	}

	records, err := r.Source.ListDebates(ctx, oireachtas.Query{
		Chamber:     opts.Chamber,
		ChamberType: opts.ChamberType,
		Start:       opts.Start,
		End:         opts.End,
	})
	if err != nil {
		if ctx.Err() != nil {
			return r.abort(sum, name, started, ctx.Err())
		}
		// Keep whatever pages arrived before the failure.
		r.logf("[ingest] listing %s %s..%s failed after %d records: %v", opts.Chamber, opts.Start, opts.End, len(records), err)
		sum.ListError = err.Error()
	}
	sum.DaysListed = len(records)
	r.logf("[ingest] %s %s..%s: %d chamber-days listed", opts.Chamber, opts.Start, opts.End, len(records))

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return r.abort(sum, name, started, err)
		}

		outcome, dayRes, err := r.ingestRecord(ctx, opts, rec)
		if err != nil {
			sum.Days = append(sum.Days, outcome)
			return r.abort(sum, name, started, err)
		}
		sum.Days = append(sum.Days, outcome)
		if outcome.Error != "" {
			sum.DaysFailed++
			continue
		}
		if outcome.Skipped {
			continue
		}

		sum.DaysProcessed++
		sum.Sections += outcome.Sections
		sum.Speeches += outcome.Speeches
		sum.Words += outcome.Words
		if dayRes != nil {
			sum.TasksEnqueued += dayRes.Tasks.Enqueued
			sum.TasksReset += dayRes.Tasks.Reset
		}

		if opts.Persist {
			if err := state.SetIfLater(r.DB, opts.Chamber, state.KeyLastIngestedDate, rec.Date); err != nil {
				return r.abort(sum, name, started, err)
			}
			cursor := rec.Date
			if err := runs.Update(r.DB, name, "sync", &cursor, progress(sum)); err != nil {
				return r.abort(sum, name, started, err)
			}
		}
	}

	sum.Duration = time.Since(started).Round(time.Millisecond).String()
	r.logf("[ingest] done: %d/%d days, %d failed, %d sections, %d speeches, %d words in %s",
		sum.DaysProcessed, sum.DaysListed, sum.DaysFailed, sum.Sections, sum.Speeches, sum.Words, sum.Duration)

	if opts.Persist {
		if err := state.Set(r.DB, opts.Chamber, state.KeyLastRunRange, opts.Start+".."+opts.End); err != nil {
			return sum, err
		}
		if err := runs.FinishSuccess(r.DB, name, "done", nil, progress(sum)); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// ingestRecord returns an error only for failures that must stop the run.
// Fetch problems are reported through DayOutcome.Error.
func (r *Runner) ingestRecord(ctx context.Context, opts Options, rec oireachtas.DebateRecord) (DayOutcome, *DayResult, error) {
	out := DayOutcome{Date: rec.Date, Title: rec.Title(), SourceURI: rec.XMLURI()}
	if out.SourceURI == "" {
		r.logf("[ingest] %s %s: no transcript document, skipping", opts.Chamber, rec.Date)
		out.Skipped = true
		return out, nil, nil
	}

	raw, err := r.Source.FetchDocument(ctx, out.SourceURI)
	if err != nil {
		if ctx.Err() != nil {
			return out, nil, ctx.Err()
		}
		r.logf("[ingest] %s %s: fetch failed, skipping: %v", opts.Chamber, rec.Date, err)
		out.Error = err.Error()
		return out, nil, nil
	}

	doc, err := transcript.Parse(raw, rec.SectionMeta())
	if err != nil {
		r.logf("[ingest] %s %s: unreadable transcript, treating as empty: %v", opts.Chamber, rec.Date, err)
		doc = &transcript.Document{}
	}
	st := doc.Stats()
	out.Sections, out.Speeches, out.Words = st.Sections, st.Speeches, st.Words

	if !opts.Persist {
		r.logf("[ingest] %s %s: parsed %d sections, %d speeches (not persisted)", opts.Chamber, rec.Date, st.Sections, st.Speeches)
		return out, nil, nil
	}

	res, err := r.Syncer.SyncDay(ctx, DayInput{
		Chamber:   opts.Chamber,
		Date:      rec.Date,
		Title:     out.Title,
		SourceURI: out.SourceURI,
		Document:  doc,
	})
	if err != nil {
		out.Error = err.Error()
		return out, nil, fmt.Errorf("persist %s %s: %w", opts.Chamber, rec.Date, err)
	}
	out.Sections, out.Speeches, out.Words = res.Sections, res.Speeches, res.Words
	r.logf("[ingest] %s %s: %d sections (%d reused), %d speeches (%d reused), %d tasks enqueued",
		opts.Chamber, rec.Date, res.Sections, res.SectionsReused, res.Speeches, res.SpeechesReused, res.Tasks.Enqueued)
	return out, res, nil
}

func (r *Runner) abort(sum *RunSummary, name string, started time.Time, cause error) (*RunSummary, error) {
	sum.Duration = time.Since(started).Round(time.Millisecond).String()
	r.logf("[ingest] aborted after %d days: %v", sum.DaysProcessed, cause)
	if sum.Persisted && r.DB != nil {
		if err := runs.FinishError(r.DB, name, "aborted", nil, cause.Error(), progress(sum)); err != nil {
			r.logf("[ingest] failed to record run error: %v", err)
		}
	}
	return sum, cause
}

func progress(sum *RunSummary) map[string]any {
	return map[string]any{
		"days_listed":    sum.DaysListed,
		"days_processed": sum.DaysProcessed,
		"days_failed":    sum.DaysFailed,
		"sections":       sum.Sections,
		"speeches":       sum.Speeches,
		"words":          sum.Words,
	}
}

// DefaultRange returns the trailing seven days ending on now's date.
func DefaultRange(now time.Time) (start, end string) {
	end = now.Format("2006-01-02")
	start = now.AddDate(0, 0, -6).Format("2006-01-02")
	return start, end
}
