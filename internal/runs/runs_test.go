package runs

import (
	"testing"

	"github.com/Napageneral/dailwatch/internal/testutil"
)

func TestRunLifecycle(t *testing.T) {
	db := testutil.OpenTestDB(t)

	if err := Start(db, "ingest:dail", "fetch"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cursor := "2024-01-17"
	if err := Update(db, "ingest:dail", "sync", &cursor, map[string]int{"days": 1}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := FinishError(db, "ingest:dail", "sync", &cursor, "boom", map[string]int{"days": 1}); err != nil {
		t.Fatalf("FinishError: %v", err)
	}

	list, err := List(db)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 run, got %d", len(list))
	}
	r := list[0]
	if r.Status != "error" || r.LastError == nil || *r.LastError != "boom" {
		t.Fatalf("unexpected run %+v", r)
	}
	if r.StartedAt == nil {
		t.Fatalf("started_at should survive updates")
	}
	if r.Cursor == nil || *r.Cursor != cursor {
		t.Fatalf("unexpected cursor %v", r.Cursor)
	}
	if r.Progress["days"] != float64(1) {
		t.Fatalf("unexpected progress %+v", r.Progress)
	}

	if err := FinishSuccess(db, "ingest:dail", "done", nil, nil); err != nil {
		t.Fatalf("FinishSuccess: %v", err)
	}
	list, _ = List(db)
	if list[0].Status != "success" || list[0].LastError != nil {
		t.Fatalf("expected success with cleared error, got %+v", list[0])
	}
}
