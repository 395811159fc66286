package bus

import (
	"context"
	"testing"

	"github.com/Napageneral/dailwatch/internal/testutil"
)

func TestEmitAndList(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := context.Background()

	if err := Emit(ctx, db, TypeDayIngested, "dail", "day-1", map[string]int{"speeches": 4}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := Emit(ctx, db, TypeMetricsComputed, "2024-01-15..2024-01-21", "", nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := Emit(ctx, db, TypeDayIngested, "dail", "day-2", nil); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	all, err := List(ctx, db, 0, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	first := all[0]
	if first.Type != TypeDayIngested || first.Scope == nil || *first.Scope != "dail" || first.Ref == nil || *first.Ref != "day-1" {
		t.Fatalf("unexpected first event %+v", first)
	}
	if string(first.Payload) != `{"speeches":4}` {
		t.Fatalf("unexpected payload %s", first.Payload)
	}
	if all[1].Ref != nil || all[1].Payload != nil {
		t.Fatalf("empty ref and payload should stay null: %+v", all[1])
	}

	after, err := List(ctx, db, first.Seq, TypeDayIngested, 10)
	if err != nil {
		t.Fatalf("List after: %v", err)
	}
	if len(after) != 1 || *after[0].Ref != "day-2" {
		t.Fatalf("expected only day-2 after seq %d, got %+v", first.Seq, after)
	}
}

func TestEmitRequiresType(t *testing.T) {
	db := testutil.OpenTestDB(t)
	if err := Emit(context.Background(), db, "", "", "", nil); err == nil {
		t.Fatalf("expected error for empty type")
	}
}
