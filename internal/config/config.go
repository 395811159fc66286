package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the dailwatch configuration
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Oireachtas OireachtasConfig `yaml:"oireachtas"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Serve      ServeConfig      `yaml:"serve"`
	Watch      WatchConfig      `yaml:"watch"`
}

// DatabaseConfig selects the sqlite driver and file.
// Driver is "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo).
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path,omitempty"`
}

// OireachtasConfig controls the paging API client
type OireachtasConfig struct {
	BaseURL        string `yaml:"base_url"`
	Chamber        string `yaml:"chamber"`
	ChamberType    string `yaml:"chamber_type"`
	PageSize       int    `yaml:"page_size"`
	PageDelayMS    int    `yaml:"page_delay_ms"`
	UserAgent      string `yaml:"user_agent"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// PageDelay returns the pause between page requests.
func (o OireachtasConfig) PageDelay() time.Duration {
	return time.Duration(o.PageDelayMS) * time.Millisecond
}

// IngestConfig bounds upsert batch sizes
type IngestConfig struct {
	SectionBatchSize int `yaml:"section_batch_size"`
	SpeechBatchSize  int `yaml:"speech_batch_size"`
}

// ScoringConfig holds the metric weights. They encode policy, not invariants.
type ScoringConfig struct {
	WordsPerMinute float64 `yaml:"words_per_minute"`

	InfluenceWordsWeight     float64 `yaml:"influence_words_weight"`
	InfluenceSpeechesWeight  float64 `yaml:"influence_speeches_weight"`
	InfluenceTopicsWeight    float64 `yaml:"influence_topics_weight"`
	InfluenceSentimentWeight float64 `yaml:"influence_sentiment_weight"`
	InfluenceWordsCap        float64 `yaml:"influence_words_cap"`
	InfluenceSpeechesCap     float64 `yaml:"influence_speeches_cap"`
	InfluenceTopicsCap       float64 `yaml:"influence_topics_cap"`

	OutcomeWeight   float64 `yaml:"outcome_weight"`
	InfluenceWeight float64 `yaml:"influence_weight"`
	SentimentWeight float64 `yaml:"sentiment_weight"`
}

// SummarizerConfig controls the LLM summary worker
type SummarizerConfig struct {
	Model       string `yaml:"model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	MaxAttempts int    `yaml:"max_attempts"`
	BatchSize   int    `yaml:"batch_size"`
}

// ServeConfig controls the read-only HTTP API
type ServeConfig struct {
	Addr string `yaml:"addr"`
}

// WatchConfig controls the transcript drop-directory watcher
type WatchConfig struct {
	Dir             string `yaml:"dir,omitempty"`
	DebounceSeconds int    `yaml:"debounce_seconds"`
}

// Default returns a config with every field populated.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite"},
		Oireachtas: OireachtasConfig{
			BaseURL:        "https://api.oireachtas.ie/v1",
			Chamber:        "dail",
			ChamberType:    "house",
			PageSize:       50,
			PageDelayMS:    1000,
			UserAgent:      "dailwatch/1.0",
			TimeoutSeconds: 60,
		},
		Ingest: IngestConfig{
			SectionBatchSize: 250,
			SpeechBatchSize:  500,
		},
		Scoring: ScoringConfig{
			WordsPerMinute:           130,
			InfluenceWordsWeight:     40,
			InfluenceSpeechesWeight:  20,
			InfluenceTopicsWeight:    20,
			InfluenceSentimentWeight: 20,
			InfluenceWordsCap:        20000,
			InfluenceSpeechesCap:     40,
			InfluenceTopicsCap:       8,
			OutcomeWeight:            0.6,
			InfluenceWeight:          0.25,
			SentimentWeight:          0.15,
		},
		Summarizer: SummarizerConfig{
			Model:       "gpt-4.1-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			MaxAttempts: 3,
			BatchSize:   20,
		},
		Serve: ServeConfig{Addr: ":8080"},
		Watch: WatchConfig{DebounceSeconds: 2},
	}
}

// GetConfigDir returns the XDG-compliant config directory
func GetConfigDir() (string, error) {
	// Explicit override (useful for tests and portable installs)
	if override := os.Getenv("DAILWATCH_CONFIG_DIR"); override != "" {
		return override, nil
	}

	var base string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "dailwatch"), nil
}

// GetDataDir returns the platform-specific data directory
func GetDataDir() (string, error) {
	if override := os.Getenv("DAILWATCH_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "Dailwatch"), nil
	}

	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "dailwatch"), nil
	}

	return filepath.Join(home, ".local", "share", "dailwatch"), nil
}

// DatabasePath resolves the sqlite file: DAILWATCH_DB, then database.path,
// then <data dir>/dailwatch.db.
func (c *Config) DatabasePath() (string, error) {
	if override := os.Getenv("DAILWATCH_DB"); override != "" {
		return override, nil
	}
	if c.Database.Path != "" {
		return os.ExpandEnv(c.Database.Path), nil
	}
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "dailwatch.db"), nil
}

// Load loads config from the config file
func Load() (*Config, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}
	return LoadFile(filepath.Join(configDir, "config.yaml"))
}

// LoadFile reads a config file, layering it over Default. A missing file
// yields the defaults.
func LoadFile(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.fillDefaults()

	return cfg, nil
}

// fillDefaults restores zero values a partial file may have cleared.
func (c *Config) fillDefaults() {
	def := Default()
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Oireachtas.BaseURL == "" {
		c.Oireachtas.BaseURL = def.Oireachtas.BaseURL
	}
	if c.Oireachtas.Chamber == "" {
		c.Oireachtas.Chamber = def.Oireachtas.Chamber
	}
	if c.Oireachtas.ChamberType == "" {
		c.Oireachtas.ChamberType = def.Oireachtas.ChamberType
	}
	if c.Oireachtas.PageSize <= 0 {
		c.Oireachtas.PageSize = def.Oireachtas.PageSize
	}
	if c.Oireachtas.TimeoutSeconds <= 0 {
		c.Oireachtas.TimeoutSeconds = def.Oireachtas.TimeoutSeconds
	}
	if c.Ingest.SectionBatchSize <= 0 {
		c.Ingest.SectionBatchSize = def.Ingest.SectionBatchSize
	}
	if c.Ingest.SpeechBatchSize <= 0 {
		c.Ingest.SpeechBatchSize = def.Ingest.SpeechBatchSize
	}
	if c.Scoring.WordsPerMinute <= 0 {
		c.Scoring.WordsPerMinute = def.Scoring.WordsPerMinute
	}
	if c.Summarizer.Model == "" {
		c.Summarizer.Model = def.Summarizer.Model
	}
	if c.Summarizer.APIKeyEnv == "" {
		c.Summarizer.APIKeyEnv = def.Summarizer.APIKeyEnv
	}
	if c.Summarizer.MaxAttempts <= 0 {
		c.Summarizer.MaxAttempts = def.Summarizer.MaxAttempts
	}
	if c.Summarizer.BatchSize <= 0 {
		c.Summarizer.BatchSize = def.Summarizer.BatchSize
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = def.Serve.Addr
	}
	if c.Watch.DebounceSeconds <= 0 {
		c.Watch.DebounceSeconds = def.Watch.DebounceSeconds
	}
}

// Save saves the config to the config file
func (c *Config) Save() error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
