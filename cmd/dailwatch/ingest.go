package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Napageneral/dailwatch/internal/ingest"
	"github.com/Napageneral/dailwatch/internal/legislators"
	"github.com/Napageneral/dailwatch/internal/live"
	"github.com/Napageneral/dailwatch/internal/runs"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch and store debate transcripts for a date range",
		Long: `Lists chamber-days from the Oireachtas API and upserts each day's
sections and speeches. Re-running a range is safe: rows are keyed on stable
ids and only new or changed content is written. Debated sections are queued
for summarization.`,
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Summary *ingest.RunSummary `json:"summary,omitempty"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			startDate, _ := cmd.Flags().GetString("start")
			endDate, _ := cmd.Flags().GetString("end")
			chamber, _ := cmd.Flags().GetString("chamber")
			persist, _ := cmd.Flags().GetBool("persist")

			defStart, defEnd := ingest.DefaultRange(time.Now())
			if startDate == "" {
				startDate = defStart
			}
			if endDate == "" {
				endDate = defEnd
			}
			if err := validateRange(startDate, endDate); err != nil {
				fail(err.Error())
			}

			cfg, database := openStore(fail)
			defer database.Close()
			if chamber == "" {
				chamber = cfg.Oireachtas.Chamber
			}

			runner := ingest.NewRunner(database, newClient(cfg))
			runner.Syncer.SectionBatch = cfg.Ingest.SectionBatchSize
			runner.Syncer.SpeechBatch = cfg.Ingest.SpeechBatchSize
			if jsonOutput {
				runner.Logf = nil
			}

			ctx, stop := signalContext()
			defer stop()

			summary, err := runner.Run(ctx, ingest.Options{
				Chamber:     chamber,
				ChamberType: cfg.Oireachtas.ChamberType,
				Start:       startDate,
				End:         endDate,
				Persist:     persist,
			})
			result.Summary = summary
			if err != nil {
				fail(fmt.Sprintf("Ingest failed: %v", err))
			}
			if summary.ListError != "" {
				result.Message = "listing ended early: " + summary.ListError
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("✓ %s %s..%s: %d/%d days ingested (%d failed)\n",
				summary.Chamber, summary.Start, summary.End, summary.DaysProcessed, summary.DaysListed, summary.DaysFailed)
			fmt.Printf("  Sections: %d  Speeches: %d  Words: %d\n", summary.Sections, summary.Speeches, summary.Words)
			fmt.Printf("  Summary tasks: %d queued, %d reset\n", summary.TasksEnqueued, summary.TasksReset)
			if summary.ListError != "" {
				fmt.Printf("  Warning: %s\n", result.Message)
			}
			if !summary.Persisted {
				fmt.Println("  (dry run, nothing persisted)")
			}
		},
	}
	cmd.Flags().String("start", "", "First date, YYYY-MM-DD (default: 7 days ago)")
	cmd.Flags().String("end", "", "Last date, YYYY-MM-DD (default: today)")
	cmd.Flags().String("chamber", "", "Chamber code (default from config)")
	cmd.Flags().Bool("persist", true, "Write to the database; --persist=false parses only")
	return cmd
}

func newIngestFileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest-file <path>",
		Short: "Store a transcript XML file from disk",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Path string            `json:"path"`
				Day  *ingest.DayResult `json:"day,omitempty"`
			}
			result := Result{status: okStatus(), Path: args[0]}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			chamber, _ := cmd.Flags().GetString("chamber")
			date, _ := cmd.Flags().GetString("date")
			title, _ := cmd.Flags().GetString("title")

			cfg, database := openStore(fail)
			defer database.Close()

			syncer := ingest.NewSyncer(database)
			syncer.SectionBatch = cfg.Ingest.SectionBatchSize
			syncer.SpeechBatch = cfg.Ingest.SpeechBatchSize

			day, err := syncer.IngestFile(context.Background(), ingest.FileInput{
				Path: args[0], Chamber: chamber, Date: date, Title: title,
			})
			if err != nil {
				fail(fmt.Sprintf("Ingest failed: %v", err))
			}
			result.Day = day

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("✓ %s -> %s\n", args[0], day.DayID)
			fmt.Printf("  Sections: %d (%d existing)  Speeches: %d (%d existing)  Words: %d\n",
				day.Sections, day.SectionsReused, day.Speeches, day.SpeechesReused, day.Words)
			fmt.Printf("  Summary tasks: %d queued, %d reset\n", day.Tasks.Enqueued, day.Tasks.Reset)
		},
	}
	cmd.Flags().String("chamber", "", "Chamber code (default from file name)")
	cmd.Flags().String("date", "", "Sitting date YYYY-MM-DD (default from file name)")
	cmd.Flags().String("title", "", "Day title")
	return cmd
}

func newMembersCmd() *cobra.Command {
	membersCmd := &cobra.Command{
		Use:   "members",
		Short: "Manage the legislator registry",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import chamber members from the Oireachtas API",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Fetched int                     `json:"fetched"`
				Stats   legislators.UpsertStats `json:"stats"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			chamber, _ := cmd.Flags().GetString("chamber")
			date, _ := cmd.Flags().GetString("date")
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}

			cfg, database := openStore(fail)
			defer database.Close()
			if chamber == "" {
				chamber = cfg.Oireachtas.Chamber
			}

			ctx, stop := signalContext()
			defer stop()

			members, err := newClient(cfg).ListMembers(ctx, chamber, date)
			if err != nil {
				fail(fmt.Sprintf("Failed to list members: %v", err))
			}
			result.Fetched = len(members)

			entries := make([]legislators.Legislator, 0, len(members))
			for _, m := range members {
				entries = append(entries, legislators.Legislator{
					FullName:   m.FullName,
					MemberCode: m.MemberCode,
					MemberURI:  m.URI,
				})
			}
			stats, err := legislators.Upsert(ctx, database, entries)
			if err != nil {
				fail(fmt.Sprintf("Failed to store members: %v", err))
			}
			result.Stats = stats

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("✓ %d members fetched, %d stored, %d skipped\n", result.Fetched, stats.Written, stats.Skipped)
		},
	}
	importCmd.Flags().String("chamber", "", "Chamber code (default from config)")
	importCmd.Flags().String("date", "", "Membership date YYYY-MM-DD (default: today)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the legislator registry",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Legislators []legislators.Legislator `json:"legislators"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			_, database := openStore(fail)
			defer database.Close()

			regs, err := legislators.Load(context.Background(), database)
			if err != nil {
				fail(fmt.Sprintf("Failed to load legislators: %v", err))
			}
			result.Legislators = regs
			if jsonOutput {
				printJSON(result)
				return
			}
			for _, l := range regs {
				fmt.Printf("%5d  %-32s  %s\n", l.ID, l.FullName, l.MemberCode)
			}
			fmt.Printf("\n%d legislators\n", len(regs))
		},
	}

	membersCmd.AddCommand(importCmd, listCmd)
	return membersCmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Ingest transcript files dropped into a directory",
		Long: `Watches a directory for "<chamber>-<YYYY-MM-DD>.xml" files and ingests
each one once writes to it have settled. Files already present are ingested
at startup. Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Dir string `json:"dir"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			cfg, database := openStore(fail)
			defer database.Close()

			dir := cfg.Watch.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				fail("No directory given and watch.dir is not configured")
			}
			result.Dir = dir

			syncer := ingest.NewSyncer(database)
			syncer.SectionBatch = cfg.Ingest.SectionBatchSize
			syncer.SpeechBatch = cfg.Ingest.SpeechBatchSize

			name := "watch:" + dir
			if err := runs.Start(database, name, "watching"); err != nil {
				fail(fmt.Sprintf("Failed to record watch run: %v", err))
			}
			var ingested atomic.Int64
			w := &live.Watcher{
				Dir:      dir,
				Debounce: time.Duration(cfg.Watch.DebounceSeconds) * time.Second,
				Ingest: func(ctx context.Context, path string) error {
					day, err := syncer.IngestFile(ctx, ingest.FileInput{Path: path})
					if err != nil {
						return err
					}
					ingested.Add(1)
					log.Printf("[watch] %s: %d sections, %d speeches, %d tasks queued",
						day.DayID, day.Sections, day.Speeches, day.Tasks.Enqueued)
					return nil
				},
				Beat: func() {
					if err := runs.Update(database, name, "watching", nil, map[string]int64{"files_ingested": ingested.Load()}); err != nil {
						log.Printf("[watch] heartbeat failed: %v", err)
					}
				},
				HeartbeatInterval: 30 * time.Second,
				Logf:              log.Printf,
			}

			ctx, stop := signalContext()
			defer stop()

			if err := w.Run(ctx); err != nil {
				_ = runs.FinishError(database, name, "watching", nil, err.Error(), nil)
				fail(fmt.Sprintf("Watch failed: %v", err))
			}
			_ = runs.FinishSuccess(database, name, "stopped", nil, map[string]int64{"files_ingested": ingested.Load()})
			result.Message = fmt.Sprintf("%d files ingested", ingested.Load())
			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("✓ Stopped watching %s (%s)\n", dir, result.Message)
		},
	}
	return cmd
}
