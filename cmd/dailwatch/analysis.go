package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/Napageneral/dailwatch/internal/api"
	"github.com/Napageneral/dailwatch/internal/bus"
	"github.com/Napageneral/dailwatch/internal/metrics"
	"github.com/Napageneral/dailwatch/internal/runs"
	"github.com/Napageneral/dailwatch/internal/state"
	"github.com/Napageneral/dailwatch/internal/summarize"
	"github.com/Napageneral/dailwatch/internal/tasks"
)

func validateRange(start, end string) error {
	return metrics.ValidatePeriod(start, end)
}

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Compute TD metrics for a reporting period",
		Long: `Computes per-legislator metrics over the stored days in [start, end]
and replaces any snapshots already stored for exactly that period.`,
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Run *metrics.RunResult `json:"run,omitempty"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			start, end := periodFlags(cmd)
			if err := validateRange(start, end); err != nil {
				fail(err.Error())
			}

			cfg, database := openStore(fail)
			defer database.Close()

			engine := metrics.NewEngine(database, metrics.WeightsFromConfig(cfg.Scoring))
			if jsonOutput {
				engine.Logf = nil
			}

			ctx, stop := signalContext()
			defer stop()

			res, err := engine.Run(ctx, start, end)
			if err != nil {
				fail(fmt.Sprintf("Aggregation failed: %v", err))
			}
			result.Run = res

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("✓ %s..%s: %d days, %d sections, %d speeches\n", res.PeriodStart, res.PeriodEnd, res.Days, res.Sections, res.Speeches)
			fmt.Printf("  Snapshots: %d  Issue rows: %d  Unattributed speeches: %d\n", res.Snapshots, res.IssueRows, res.Unattributed)
			if res.Collisions > 0 {
				fmt.Printf("  Warning: %d registry name collisions\n", res.Collisions)
			}
		},
	}
	addPeriodFlags(cmd)
	return cmd
}

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Show legislators ranked by effectiveness for a period",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Start    string           `json:"start"`
				End      string           `json:"end"`
				Rankings []metrics.Ranked `json:"rankings"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			start, end := periodFlags(cmd)
			limit, _ := cmd.Flags().GetInt("limit")

			_, database := openStore(fail)
			defer database.Close()
			ctx := context.Background()

			if !cmd.Flags().Changed("start") && !cmd.Flags().Changed("end") {
				periods, err := metrics.ListPeriods(ctx, database)
				if err != nil {
					fail(fmt.Sprintf("Failed to list periods: %v", err))
				}
				if len(periods) == 0 {
					fail("No metrics computed yet. Run 'dailwatch aggregate' first.")
				}
				start, end = periods[0].Start, periods[0].End
			}
			if err := validateRange(start, end); err != nil {
				fail(err.Error())
			}
			result.Start, result.End = start, end

			snaps, err := metrics.LoadSnapshots(ctx, database, start, end)
			if err != nil {
				fail(fmt.Sprintf("Failed to load metrics: %v", err))
			}
			ranked := metrics.Rank(snaps)
			if limit > 0 && len(ranked) > limit {
				ranked = ranked[:limit]
			}
			result.Rankings = ranked

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("Period %s..%s\n\n", start, end)
			fmt.Printf("%4s  %-30s %8s %8s %8s %8s\n", "#", "TD", "Effect.", "Infl.", "Words", "W/D/L")
			for _, r := range ranked {
				fmt.Printf("%4d  %-30s %8.2f %8.2f %8d %2d/%d/%d\n", r.Rank, r.FullName,
					r.EffectivenessScore, r.InfluenceScore, r.Words,
					r.Outcomes.Wins, r.Outcomes.Draws, r.Outcomes.Losses)
			}
		},
	}
	addPeriodFlags(cmd)
	cmd.Flags().Int("limit", 20, "Maximum rows (0 for all)")
	return cmd
}

func addPeriodFlags(cmd *cobra.Command) {
	defStart, defEnd := defaultPeriod()
	cmd.Flags().String("start", defStart, "Period start, YYYY-MM-DD")
	cmd.Flags().String("end", defEnd, "Period end, YYYY-MM-DD")
}

func periodFlags(cmd *cobra.Command) (string, string) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	return start, end
}

// defaultPeriod is the last complete Monday to Sunday week.
func defaultPeriod() (string, string) {
	now := time.Now()
	offset := (int(now.Weekday()) + 6) % 7
	monday := now.AddDate(0, 0, -offset-7)
	return monday.Format("2006-01-02"), monday.AddDate(0, 0, 6).Format("2006-01-02")
}

func newSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize queued debate sections with the configured model",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Model  string                  `json:"model"`
				Result *summarize.WorkerResult `json:"result,omitempty"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			cfg, database := openStore(fail)
			defer database.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			if limit <= 0 {
				limit = cfg.Summarizer.BatchSize
			}
			apiKey := os.Getenv(cfg.Summarizer.APIKeyEnv)
			if apiKey == "" {
				fail(fmt.Sprintf("%s is not set", cfg.Summarizer.APIKeyEnv))
			}
			summarizer, err := summarize.NewOpenAISummarizer(apiKey, cfg.Summarizer.Model)
			if err != nil {
				fail(fmt.Sprintf("Failed to create summarizer: %v", err))
			}
			result.Model = summarizer.Model()

			worker := summarize.NewWorker(database, summarizer, summarizer.Model(), cfg.Summarizer.MaxAttempts)
			if jsonOutput {
				worker.Logf = nil
			}

			ctx, stop := signalContext()
			defer stop()

			res, err := worker.RunOnce(ctx, limit)
			result.Result = res
			if err != nil {
				fail(fmt.Sprintf("Summarize failed: %v", err))
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("✓ %d claimed: %d complete, %d retrying, %d failed\n", res.Claimed, res.Completed, res.Retrying, res.Failed)
		},
	}
	cmd.Flags().Int("limit", 0, "Maximum sections to summarize (default from config)")
	return cmd
}

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List summary tasks",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Counts map[string]int `json:"counts"`
				Tasks  []tasks.Task   `json:"tasks"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			statusFilter, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			_, database := openStore(fail)
			defer database.Close()
			ctx := context.Background()

			counts, err := tasks.Counts(ctx, database)
			if err != nil {
				fail(fmt.Sprintf("Failed to count tasks: %v", err))
			}
			list, err := tasks.List(ctx, database, statusFilter, limit)
			if err != nil {
				fail(fmt.Sprintf("Failed to list tasks: %v", err))
			}
			result.Counts, result.Tasks = counts, list

			if jsonOutput {
				printJSON(result)
				return
			}
			for _, st := range []string{tasks.StatusPending, tasks.StatusProcessing, tasks.StatusComplete, tasks.StatusFailed} {
				fmt.Printf("%-10s %d\n", st, counts[st])
			}
			if len(list) > 0 {
				fmt.Println()
			}
			for _, t := range list {
				line := fmt.Sprintf("%-10s p=%-6d a=%d  %s", t.Status, t.Priority, t.Attempts, t.SectionID)
				if t.LastError != nil {
					line += "  (" + *t.LastError + ")"
				}
				fmt.Println(line)
			}
		},
	}
	cmd.Flags().String("status", "", "Filter by status")
	cmd.Flags().Int("limit", 20, "Maximum tasks to list")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show runs, ingest cursors and computed periods",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				LastIngested string           `json:"last_ingested,omitempty"`
				LastRange    string           `json:"last_range,omitempty"`
				Runs         []runs.RunStatus `json:"runs"`
				Periods      []metrics.Period `json:"periods"`
				Tasks        map[string]int   `json:"tasks"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			cfg, database := openStore(fail)
			defer database.Close()
			ctx := context.Background()

			chamber := cfg.Oireachtas.Chamber
			if v, ok, err := state.Get(database, chamber, state.KeyLastIngestedDate); err != nil {
				fail(fmt.Sprintf("Failed to read ingest state: %v", err))
			} else if ok {
				result.LastIngested = v
			}
			if v, ok, err := state.Get(database, chamber, state.KeyLastRunRange); err != nil {
				fail(fmt.Sprintf("Failed to read ingest state: %v", err))
			} else if ok {
				result.LastRange = v
			}

			var err error
			if result.Runs, err = runs.List(database); err != nil {
				fail(fmt.Sprintf("Failed to list runs: %v", err))
			}
			if result.Periods, err = metrics.ListPeriods(ctx, database); err != nil {
				fail(fmt.Sprintf("Failed to list periods: %v", err))
			}
			if result.Tasks, err = tasks.Counts(ctx, database); err != nil {
				fail(fmt.Sprintf("Failed to count tasks: %v", err))
			}

			if jsonOutput {
				printJSON(result)
				return
			}
			fmt.Printf("Chamber: %s\n", chamber)
			fmt.Printf("Last ingested day: %s\n", orNone(result.LastIngested))
			fmt.Printf("Last ingest range: %s\n", orNone(result.LastRange))
			fmt.Printf("Summary tasks: %d pending, %d failed, %d complete\n",
				result.Tasks[tasks.StatusPending], result.Tasks[tasks.StatusFailed], result.Tasks[tasks.StatusComplete])

			if len(result.Runs) > 0 {
				fmt.Println("\nRuns:")
				for _, r := range result.Runs {
					line := fmt.Sprintf("  %-40s %-8s %s", r.Name, r.Status, r.Phase)
					if r.LastError != nil {
						line += "  error: " + *r.LastError
					}
					fmt.Println(line)
				}
			}
			if len(result.Periods) > 0 {
				fmt.Println("\nPeriods:")
				for _, p := range result.Periods {
					fmt.Printf("  %s..%s  %d snapshots\n", p.Start, p.End, p.Snapshots)
				}
			}
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored metrics over a read-only HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Addr string `json:"addr"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			cfg, database := openStore(fail)
			defer database.Close()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = cfg.Serve.Addr
			}
			result.Addr = addr

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(database),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signalContext()
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Printf("[serve] listening on %s", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					fail(fmt.Sprintf("Server failed: %v", err))
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					fail(fmt.Sprintf("Shutdown failed: %v", err))
				}
			}

			result.Message = "server stopped"
			if jsonOutput {
				printJSON(result)
			}
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config)")
	return cmd
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the activity log",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				Events []bus.Event `json:"events"`
			}
			result := Result{status: okStatus()}
			fail := func(msg string) { exitWith(&result, &result.status, msg) }

			after, _ := cmd.Flags().GetInt64("after")
			typ, _ := cmd.Flags().GetString("type")
			limit, _ := cmd.Flags().GetInt("limit")

			_, database := openStore(fail)
			defer database.Close()

			events, err := bus.List(context.Background(), database, after, typ, limit)
			if err != nil {
				fail(fmt.Sprintf("Failed to list events: %v", err))
			}
			result.Events = events

			if jsonOutput {
				printJSON(result)
				return
			}
			for _, e := range events {
				line := fmt.Sprintf("%6d  %s  %-18s", e.Seq, time.Unix(e.CreatedAt, 0).Format("2006-01-02 15:04:05"), e.Type)
				if e.Scope != nil {
					line += "  " + *e.Scope
				}
				if e.Ref != nil {
					line += "  " + *e.Ref
				}
				fmt.Println(line)
			}
		},
	}
	cmd.Flags().Int64("after", 0, "Only events after this sequence number")
	cmd.Flags().String("type", "", "Filter by event type")
	cmd.Flags().Int("limit", 50, "Maximum events")
	return cmd
}
