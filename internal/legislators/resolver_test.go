package legislators

import (
	"context"
	"testing"

	"github.com/Napageneral/dailwatch/internal/testutil"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"Mícheál Martin":              "michealmartin",
		"#MichealMartin":              "michealmartin",
		"Micheál-Martin.D.1989-06-29": "michealmartind19890629",
		"  Seán Ó Fearghaíl ":         "seanofearghail",
		"":                            "",
		"--":                          "",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Fatalf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolverMatchesEveryKey(t *testing.T) {
	registry := []Legislator{
		{ID: 1, FullName: "Mary Lou McDonald", MemberCode: "Mary-Lou-McDonald.D.2011-03-09", MemberURI: "https://data.oireachtas.ie/ie/oireachtas/member/id/Mary-Lou-McDonald.D.2011-03-09"},
		{ID: 2, FullName: "Micheál Martin", MemberCode: "Micheál-Martin.D.1989-06-29"},
	}
	r := NewResolver(registry)

	cases := []struct {
		candidates []string
		want       int64
	}{
		{[]string{"#MaryLouMcDonald"}, 1},
		{[]string{"mary lou mcdonald"}, 1},
		{[]string{"Mary-Lou-McDonald.D.2011-03-09"}, 1},
		{[]string{"https://data.oireachtas.ie/ie/oireachtas/member/id/Mary-Lou-McDonald.D.2011-03-09"}, 1},
		{[]string{"", "#Nobody", "Micheál Martin"}, 2},
	}
	for _, tc := range cases {
		id, ok := r.Resolve(tc.candidates...)
		if !ok || id != tc.want {
			t.Fatalf("Resolve(%q) = %d,%v want %d", tc.candidates, id, ok, tc.want)
		}
	}

	if _, ok := r.Resolve("An Taoiseach", ""); ok {
		t.Fatalf("expected no match for role label")
	}
}

func TestResolverPriorityOrder(t *testing.T) {
	r := NewResolver([]Legislator{
		{ID: 1, FullName: "Alice Byrne"},
		{ID: 2, FullName: "Bob Kelly"},
	})
	id, ok := r.Resolve("Bob Kelly", "Alice Byrne")
	if !ok || id != 2 {
		t.Fatalf("expected first candidate to win, got %d", id)
	}
}

func TestResolverCollisionFirstWins(t *testing.T) {
	r := NewResolver([]Legislator{
		{ID: 10, FullName: "John Murphy"},
		{ID: 11, FullName: "John Murphy", MemberCode: "John-Murphy.D.2020"},
	})
	id, ok := r.Resolve("John Murphy")
	if !ok || id != 10 {
		t.Fatalf("expected first registered legislator, got %d", id)
	}
	if id, _ := r.Resolve("John-Murphy.D.2020"); id != 11 {
		t.Fatalf("member code should still resolve to 11, got %d", id)
	}
	cs := r.Collisions()
	if len(cs) != 1 || cs[0].Kept != 10 || cs[0].Dropped != 11 {
		t.Fatalf("unexpected collisions %+v", cs)
	}
}

func TestMemberCodeFromURI(t *testing.T) {
	got := MemberCodeFromURI("/ie/oireachtas/member/id/Micheál-Martin.D.1989-06-29")
	if got != "Micheál-Martin.D.1989-06-29" {
		t.Fatalf("unexpected code %q", got)
	}
	if MemberCodeFromURI("") != "" {
		t.Fatalf("expected empty")
	}
}

func TestUpsertAndLoad(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := context.Background()

	stats, err := Upsert(ctx, db, []Legislator{
		{FullName: "Mary Lou McDonald", MemberCode: "Mary-Lou-McDonald.D.2011-03-09"},
		{FullName: "Micheál Martin", MemberCode: "Micheál-Martin.D.1989-06-29"},
		{FullName: "No Code"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if stats.Written != 2 || stats.Skipped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	// Re-import updates in place.
	if _, err := Upsert(ctx, db, []Legislator{
		{FullName: "Mary Lou McDonald TD", MemberCode: "Mary-Lou-McDonald.D.2011-03-09", MemberURI: "uri"},
	}); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	got, err := Load(ctx, db)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 legislators, got %d", len(got))
	}
	if got[0].FullName != "Mary Lou McDonald TD" || got[0].MemberURI != "uri" {
		t.Fatalf("expected updated first row, got %+v", got[0])
	}
	if got[0].ID >= got[1].ID {
		t.Fatalf("expected insertion order")
	}
}
