package topics

import "testing"

func TestClassify(t *testing.T) {
	c := Default()
	cases := []struct {
		parts []string
		want  string
	}{
		{[]string{"Hospital Waiting Lists", "", "debate"}, "Healthcare"},
		{[]string{"Leaders' Questions", "Deputies raised rents and the housing crisis.", "debate"}, "Housing"},
		{[]string{"Finance Bill 2023: Report Stage", "", "bill"}, "Economy"},
		{[]string{"Garda Síochána (Functions) Bill", "", ""}, "Justice"},
		{[]string{"Order of Business", "", "debate"}, Other},
		{nil, Other},
		{[]string{"   "}, Other},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.parts...); got != tc.want {
			t.Fatalf("Classify(%q) = %q, want %q", tc.parts, got, tc.want)
		}
	}
}

func TestClassifyFirstRuleWins(t *testing.T) {
	c, err := New([]Rule{
		{"A", []string{`alpha`}},
		{"B", []string{`alpha`, `beta`}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Classify("ALPHA and beta"); got != "A" {
		t.Fatalf("expected A, got %q", got)
	}
	if got := c.Classify("beta"); got != "B" {
		t.Fatalf("expected B, got %q", got)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	if _, err := New([]Rule{{"X", []string{`(`}}}); err == nil {
		t.Fatalf("expected compile error")
	}
}

func TestTopicsEndsWithOther(t *testing.T) {
	labels := Default().Topics()
	if labels[len(labels)-1] != Other || labels[0] != "Housing" {
		t.Fatalf("unexpected labels %v", labels)
	}
}
