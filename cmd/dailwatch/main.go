package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Napageneral/dailwatch/internal/config"
	"github.com/Napageneral/dailwatch/internal/db"
	"github.com/Napageneral/dailwatch/internal/oireachtas"
)

var (
	version    = "dev"
	commit     = "none"
	buildDate  = "unknown"
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dailwatch",
		Short: "Dáil debate ingestion and TD metrics",
		Long: `Dailwatch pulls Oireachtas debate transcripts into a local sqlite
store, summarizes debated sections, and computes per-TD engagement,
influence and effectiveness metrics for reporting periods.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    buildDate,
				})
			} else {
				fmt.Printf("dailwatch %s (%s, %s)\n", version, commit, buildDate)
			}
		},
	})

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newIngestCmd())
	rootCmd.AddCommand(newIngestFileCmd())
	rootCmd.AddCommand(newMembersCmd())
	rootCmd.AddCommand(newAggregateCmd())
	rootCmd.AddCommand(newRankCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize dailwatch config and database",
		Run: func(cmd *cobra.Command, args []string) {
			type Result struct {
				status
				ConfigDir string `json:"config_dir,omitempty"`
				DataDir   string `json:"data_dir,omitempty"`
				DBPath    string `json:"db_path,omitempty"`
			}
			result := Result{status: okStatus()}

			configDir, err := config.GetConfigDir()
			if err != nil {
				exitWith(&result, &result.status, fmt.Sprintf("Failed to get config directory: %v", err))
			}
			result.ConfigDir = configDir

			dataDir, err := config.GetDataDir()
			if err != nil {
				exitWith(&result, &result.status, fmt.Sprintf("Failed to get data directory: %v", err))
			}
			result.DataDir = dataDir

			cfg, err := config.Load()
			if err != nil {
				exitWith(&result, &result.status, fmt.Sprintf("Failed to load config: %v", err))
			}
			// Write the file so every default is visible and editable.
			if err := cfg.Save(); err != nil {
				exitWith(&result, &result.status, fmt.Sprintf("Failed to write config: %v", err))
			}

			database, err := db.Init(cfg)
			if err != nil {
				exitWith(&result, &result.status, fmt.Sprintf("Failed to initialize database: %v", err))
			}
			database.Close()

			dbPath, err := db.GetPath(cfg)
			if err != nil {
				exitWith(&result, &result.status, fmt.Sprintf("Failed to get database path: %v", err))
			}
			result.DBPath = dbPath
			result.Message = "Dailwatch initialized successfully"

			if jsonOutput {
				printJSON(result)
			} else {
				fmt.Printf("✓ Config directory: %s\n", result.ConfigDir)
				fmt.Printf("✓ Data directory: %s\n", result.DataDir)
				fmt.Printf("✓ Database: %s\n", result.DBPath)
				fmt.Println("\nDailwatch initialized successfully!")
			}
		},
	}
}

// openStore loads config and opens the database. On failure it reports
// through fail, which exits.
func openStore(fail func(msg string)) (*config.Config, *sql.DB) {
	cfg, err := config.Load()
	if err != nil {
		fail(fmt.Sprintf("Failed to load config: %v", err))
	}
	database, err := db.Open(cfg)
	if err != nil {
		fail(fmt.Sprintf("Failed to open database: %v", err))
	}
	return cfg, database
}

func newClient(cfg *config.Config) *oireachtas.Client {
	oc := oireachtas.DefaultConfig()
	oc.BaseURL = cfg.Oireachtas.BaseURL
	oc.PageSize = cfg.Oireachtas.PageSize
	oc.PageDelay = cfg.Oireachtas.PageDelay()
	oc.UserAgent = cfg.Oireachtas.UserAgent
	if cfg.Oireachtas.TimeoutSeconds > 0 {
		oc.HTTPClient = httpClient(time.Duration(cfg.Oireachtas.TimeoutSeconds) * time.Second)
	}
	return oireachtas.NewClient(oc)
}

// status is embedded in every command Result.
type status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func okStatus() status {
	return status{OK: true}
}

// exitWith marks result failed through st, prints it and exits 1. result
// must point at the struct embedding st.
func exitWith(result any, st *status, msg string) {
	st.OK = false
	st.Message = msg
	if jsonOutput {
		printJSON(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

func httpClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
