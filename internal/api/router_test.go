package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Napageneral/dailwatch/internal/bus"
	"github.com/Napageneral/dailwatch/internal/ingest"
	"github.com/Napageneral/dailwatch/internal/legislators"
	"github.com/Napageneral/dailwatch/internal/metrics"
	"github.com/Napageneral/dailwatch/internal/testutil"
	"github.com/Napageneral/dailwatch/internal/transcript"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func seed(t *testing.T, aggregate bool) *sql.DB {
	t.Helper()
	db := testutil.OpenTestDB(t)
	ctx := context.Background()
	if _, err := legislators.Upsert(ctx, db, []legislators.Legislator{
		{FullName: "Mary Lou McDonald", MemberCode: "Mary-Lou-McDonald.D.2011-03-09"},
		{FullName: "Micheál Martin", MemberCode: "Micheál-Martin.D.1989-06-29"},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join("..", "transcript", "testdata", "dail-2024-01-17.xml"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	doc, err := transcript.Parse(raw, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := ingest.NewSyncer(db).SyncDay(ctx, ingest.DayInput{
		Chamber: "dail", Date: "2024-01-17", Title: "Dáil Éireann debate", SourceURI: "fixture", Document: doc,
	}); err != nil {
		t.Fatalf("SyncDay: %v", err)
	}
	if aggregate {
		e := metrics.NewEngine(db, metrics.DefaultWeights())
		e.Logf = nil
		if _, err := e.Run(ctx, "2024-01-15", "2024-01-21"); err != nil {
			t.Fatalf("aggregate: %v", err)
		}
	}
	return db
}

func get(t *testing.T, r http.Handler, target string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v\n%s", target, err, w.Body.String())
		}
	}
	return w.Code
}

func TestHealthz(t *testing.T) {
	r := NewRouter(testutil.OpenTestDB(t))
	var body map[string]any
	if code := get(t, r, "/healthz", &body); code != http.StatusOK || body["ok"] != true {
		t.Fatalf("unexpected health %d %v", code, body)
	}
}

func TestDays(t *testing.T) {
	r := NewRouter(seed(t, false))

	var body struct {
		Days []ingest.Day `json:"days"`
	}
	if code := get(t, r, "/api/days?start=2024-01-01&end=2024-01-31", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(body.Days) != 1 || body.Days[0].SpeechCount != 4 || body.Days[0].SectionCount != 4 {
		t.Fatalf("unexpected days %+v", body.Days)
	}

	if code := get(t, r, "/api/days?start=2024-01-01&end=2024-01-31&chamber=seanad", &body); code != http.StatusOK || len(body.Days) != 0 {
		t.Fatalf("chamber filter failed: %d %+v", code, body.Days)
	}
	if code := get(t, r, "/api/days?start=bad&end=2024-01-31", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestMetricsWithoutPeriod(t *testing.T) {
	r := NewRouter(seed(t, false))
	if code := get(t, r, "/api/metrics", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 before any aggregation, got %d", code)
	}
}

func TestMetricsRankingsAndIssues(t *testing.T) {
	r := NewRouter(seed(t, true))

	var m struct {
		Start   string             `json:"start"`
		End     string             `json:"end"`
		Metrics []metrics.Snapshot `json:"metrics"`
	}
	if code := get(t, r, "/api/metrics", &m); code != http.StatusOK {
		t.Fatalf("metrics status %d", code)
	}
	if m.Start != "2024-01-15" || m.End != "2024-01-21" || len(m.Metrics) != 2 {
		t.Fatalf("latest period should be used: %+v", m)
	}

	var rk struct {
		Rankings []metrics.Ranked `json:"rankings"`
	}
	if code := get(t, r, "/api/rankings?start=2024-01-15&end=2024-01-21&limit=1", &rk); code != http.StatusOK {
		t.Fatalf("rankings status %d", code)
	}
	if len(rk.Rankings) != 1 || rk.Rankings[0].Rank != 1 {
		t.Fatalf("unexpected rankings %+v", rk.Rankings)
	}

	var mary int64
	for _, s := range m.Metrics {
		if s.FullName == "Mary Lou McDonald" {
			mary = s.LegislatorID
		}
	}
	var is struct {
		Issues []metrics.IssueFocus `json:"issues"`
	}
	if code := get(t, r, "/api/metrics/"+itoa(mary)+"/issues", &is); code != http.StatusOK {
		t.Fatalf("issues status %d", code)
	}
	if len(is.Issues) != 2 {
		t.Fatalf("unexpected issues %+v", is.Issues)
	}

	if code := get(t, r, "/api/metrics/abc/issues", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", code)
	}
	if code := get(t, r, "/api/rankings?limit=-1", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", code)
	}
}

func TestHighlightsEmpty(t *testing.T) {
	r := NewRouter(seed(t, false))
	var body struct {
		Highlights []metrics.Highlight `json:"highlights"`
	}
	if code := get(t, r, "/api/highlights?start=2024-01-01&end=2024-01-31", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if body.Highlights == nil || len(body.Highlights) != 0 {
		t.Fatalf("expected an empty list, got %+v", body.Highlights)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestEventsPaging(t *testing.T) {
	r := NewRouter(seed(t, true))

	var body struct {
		Events []bus.Event `json:"events"`
		Next   int64       `json:"next"`
	}
	if code := get(t, r, "/api/events?limit=1", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(body.Events) != 1 || body.Events[0].Type != bus.TypeDayIngested {
		t.Fatalf("unexpected first page %+v", body.Events)
	}
	if code := get(t, r, "/api/events?after="+itoa(body.Next), &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(body.Events) != 1 || body.Events[0].Type != bus.TypeMetricsComputed {
		t.Fatalf("unexpected second page %+v", body.Events)
	}
	if code := get(t, r, "/api/events?limit=0", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestMetricsStorageFailureIsServerError(t *testing.T) {
	db := testutil.OpenTestDB(t)
	r := NewRouter(db)
	db.Close()

	for _, target := range []string{"/api/metrics", "/api/rankings", "/api/metrics/1/issues"} {
		if code := get(t, r, target, nil); code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500 when storage fails, got %d", target, code)
		}
	}
	// Explicit bad input is still a client error.
	if code := get(t, r, "/api/metrics?start=bad&end=2024-01-01", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad period, got %d", code)
	}
}
