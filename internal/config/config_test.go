package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("DAILWATCH_CONFIG_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Oireachtas.Chamber != "dail" {
		t.Fatalf("expected default chamber dail, got %q", cfg.Oireachtas.Chamber)
	}
	if cfg.Ingest.SectionBatchSize != 250 || cfg.Ingest.SpeechBatchSize != 500 {
		t.Fatalf("unexpected batch sizes: %+v", cfg.Ingest)
	}
	if cfg.Scoring.WordsPerMinute != 130 {
		t.Fatalf("expected 130 wpm, got %v", cfg.Scoring.WordsPerMinute)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DAILWATCH_CONFIG_DIR", dir)

	data := []byte(`
oireachtas:
  chamber: seanad
  page_delay_ms: 250
scoring:
  outcome_weight: 0.5
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Oireachtas.Chamber != "seanad" {
		t.Fatalf("expected seanad, got %q", cfg.Oireachtas.Chamber)
	}
	if cfg.Oireachtas.PageDelay().Milliseconds() != 250 {
		t.Fatalf("expected 250ms delay, got %v", cfg.Oireachtas.PageDelay())
	}
	if cfg.Oireachtas.BaseURL == "" || cfg.Oireachtas.PageSize != 50 {
		t.Fatalf("defaults lost: %+v", cfg.Oireachtas)
	}
	if cfg.Scoring.OutcomeWeight != 0.5 || cfg.Scoring.InfluenceWeight != 0.25 {
		t.Fatalf("unexpected scoring: %+v", cfg.Scoring)
	}
}

func TestDatabasePathOverride(t *testing.T) {
	t.Setenv("DAILWATCH_DB", "/tmp/x.db")
	cfg := Default()
	p, err := cfg.DatabasePath()
	if err != nil {
		t.Fatalf("DatabasePath: %v", err)
	}
	if p != "/tmp/x.db" {
		t.Fatalf("expected override, got %s", p)
	}

	t.Setenv("DAILWATCH_DB", "")
	data := t.TempDir()
	t.Setenv("DAILWATCH_DATA_DIR", data)
	p, err = cfg.DatabasePath()
	if err != nil {
		t.Fatalf("DatabasePath: %v", err)
	}
	if p != filepath.Join(data, "dailwatch.db") {
		t.Fatalf("unexpected default path %s", p)
	}
}
