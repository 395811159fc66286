package summarize

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Napageneral/dailwatch/internal/ingest"
	"github.com/Napageneral/dailwatch/internal/tasks"
	"github.com/Napageneral/dailwatch/internal/testutil"
	"github.com/Napageneral/dailwatch/internal/transcript"
)

type fakeSummarizer struct {
	failTitle string
	seen      []SectionText
}

func (f *fakeSummarizer) Summarize(ctx context.Context, s SectionText) (string, error) {
	f.seen = append(f.seen, s)
	if f.failTitle != "" && s.Title == f.failTitle {
		return "", errors.New("model refused")
	}
	return "Summary of " + s.Title, nil
}

func seeded(t *testing.T) *sql.DB {
	t.Helper()
	db := testutil.OpenTestDB(t)
	raw, err := os.ReadFile(filepath.Join("..", "transcript", "testdata", "dail-2024-01-17.xml"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	doc, err := transcript.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := ingest.NewSyncer(db).SyncDay(context.Background(), ingest.DayInput{
		Chamber: "dail", Date: "2024-01-17", SourceURI: "fixture", Document: doc,
	}); err != nil {
		t.Fatalf("SyncDay: %v", err)
	}
	return db
}

func summaryStatus(t *testing.T, db *sql.DB, title string) (string, string) {
	t.Helper()
	var status, summary string
	err := db.QueryRow(`
		SELECT sm.status, sm.summary FROM section_summaries sm
		JOIN debate_sections s ON s.id = sm.section_id WHERE s.title = ?
	`, title).Scan(&status, &summary)
	if err != nil {
		t.Fatalf("summary for %q: %v", title, err)
	}
	return status, summary
}

func TestWorkerCompletesTasks(t *testing.T) {
	db := seeded(t)
	fake := &fakeSummarizer{}
	w := NewWorker(db, fake, "test-model", 3)
	w.Logf = nil

	res, err := w.RunOnce(context.Background(), 10)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Claimed != 3 || res.Completed != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	status, summary := summaryStatus(t, db, "Hospital Waiting Lists")
	if status != tasks.StatusComplete || summary != "Summary of Hospital Waiting Lists" {
		t.Fatalf("unexpected summary %s %q", status, summary)
	}

	for _, s := range fake.seen {
		if s.Title == "Hospital Waiting Lists" {
			if !strings.Contains(s.Question, "waiting lists") || len(s.Speeches) != 1 {
				t.Fatalf("section text incomplete: %+v", s)
			}
		}
	}

	counts, err := tasks.Counts(context.Background(), db)
	if err != nil || counts[tasks.StatusComplete] != 3 {
		t.Fatalf("unexpected task counts %v (%v)", counts, err)
	}

	// A second ingestion pass must not requeue summarized sections.
	again, err := w.RunOnce(context.Background(), 10)
	if err != nil || again.Claimed != 0 {
		t.Fatalf("nothing should be left to claim: %+v %v", again, err)
	}
}

func TestWorkerRetriesThenFails(t *testing.T) {
	db := seeded(t)
	fake := &fakeSummarizer{failTitle: "Unnumbered Item"}
	w := NewWorker(db, fake, "test-model", 2)
	w.Logf = nil
	ctx := context.Background()

	first, err := w.RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	if first.Completed != 2 || first.Retrying != 1 {
		t.Fatalf("unexpected first pass %+v", first)
	}
	if status, _ := summaryStatus(t, db, "Unnumbered Item"); status != tasks.StatusPending {
		t.Fatalf("retrying section should be pending, got %s", status)
	}

	second, err := w.RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if second.Claimed != 1 || second.Failed != 1 {
		t.Fatalf("unexpected second pass %+v", second)
	}
	if status, _ := summaryStatus(t, db, "Unnumbered Item"); status != tasks.StatusFailed {
		t.Fatalf("expected failed summary, got %s", status)
	}

	failed, err := tasks.List(ctx, db, tasks.StatusFailed, 10)
	if err != nil || len(failed) != 1 || failed[0].LastError == nil || *failed[0].LastError != "model refused" {
		t.Fatalf("unexpected failed tasks %+v (%v)", failed, err)
	}
}

func TestWorkerReleasesOnCancel(t *testing.T) {
	db := seeded(t)
	w := NewWorker(db, &fakeSummarizer{}, "", 3)
	w.Logf = nil

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.RunOnce(ctx, 10); err == nil {
		t.Fatalf("expected context error")
	}
	counts, err := tasks.Counts(context.Background(), db)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[tasks.StatusProcessing] != 0 {
		t.Fatalf("no task should stay processing: %v", counts)
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(SectionText{
		Chamber: "dail", Date: "2024-01-17", Title: "Housing",
		Speeches: []SpeechText{
			{Speaker: "Micheál Martin", Role: "An Taoiseach", Text: "We are building."},
			{Text: "Hear, hear."},
		},
	}, 0)
	for _, want := range []string{"Section: Housing", "Micheál Martin (An Taoiseach):", "Unknown speaker:"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	if short := BuildPrompt(SectionText{Title: strings.Repeat("x", 500)}, 100); !strings.HasSuffix(short, "[transcript truncated]") {
		t.Fatalf("expected truncation marker")
	}
}

func TestBuildPromptTruncatesOnRuneBoundary(t *testing.T) {
	sec := SectionText{Title: "Ceisteanna ó Cheannairí", Speeches: []SpeechText{
		{Speaker: "Micheál Martin", Text: strings.Repeat("Tá sé ráite ", 20)},
	}}
	full := BuildPrompt(sec, 0)
	for limit := 1; limit < len(full); limit++ {
		got := BuildPrompt(sec, limit)
		if !utf8.ValidString(got) {
			t.Fatalf("maxChars %d produced invalid UTF-8: %q", limit, got)
		}
		kept := strings.TrimSuffix(got, "\n[transcript truncated]")
		if len(kept) > limit || !strings.HasPrefix(full, kept) {
			t.Fatalf("maxChars %d kept %d bytes that are not a prefix of the prompt", limit, len(kept))
		}
	}
}

func TestDecodeModelJSON(t *testing.T) {
	var out sectionSummaryResponse
	raw := "```json\n{\"summary\":\"Deputies debated housing.\",\"key_points\":[\"Rents\"],\"consensus\":\"divided\"}\n```"
	if err := decodeModelJSON(raw, &out); err != nil {
		t.Fatalf("decodeModelJSON: %v", err)
	}
	if got := out.text(); got != "Deputies debated housing.\n\nConsensus: divided\n- Rents" {
		t.Fatalf("unexpected text %q", got)
	}
	if err := decodeModelJSON("  ", &out); err == nil {
		t.Fatalf("expected error for empty output")
	}
}

func TestSchemaIsStrict(t *testing.T) {
	if sectionSummarySchema["additionalProperties"] != false {
		t.Fatalf("schema must forbid additional properties: %v", sectionSummarySchema)
	}
	req, ok := sectionSummarySchema["required"].([]string)
	if !ok || len(req) != 3 {
		t.Fatalf("every property should be required: %v", sectionSummarySchema["required"])
	}
}
