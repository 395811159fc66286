package metrics

import (
	"math"
	"testing"

	"github.com/Napageneral/dailwatch/internal/legislators"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func registry() []legislators.Legislator {
	return []legislators.Legislator{
		{ID: 1, FullName: "Alice Byrne", MemberCode: "Alice-Byrne.D.2016-03-10"},
		{ID: 2, FullName: "Brian Coyle", MemberCode: "Brian-Coyle.D.2020-02-20"},
		{ID: 3, FullName: "Cáit Ní Dhuibhir", MemberCode: "Cait-Ni-Dhuibhir.D.2024-11-29"},
	}
}

func byID(t *testing.T, res *Result, id int64) LegislatorMetrics {
	t.Helper()
	for _, m := range res.Legislators {
		if m.LegislatorID == id {
			return m
		}
	}
	t.Fatalf("legislator %d missing from result", id)
	return LegislatorMetrics{}
}

func TestComputeTwoSpeakerDebate(t *testing.T) {
	res := Compute(Input{
		Legislators: registry(),
		Sections:    []Section{{ID: "s1", Chamber: "dail", Title: "Order of Business"}},
		Speeches: []Speech{
			{ID: "a", SectionID: "s1", SpeakerRef: "#AliceByrne", WordCount: 1300},
			{ID: "b", SectionID: "s1", SpeakerName: "Brian Coyle", WordCount: 650},
		},
	}, DefaultWeights())

	a, b := byID(t, res, 1), byID(t, res, 2)
	if a.EngagementScore != 1300 || b.EngagementScore != 650 {
		t.Fatalf("unexpected engagement %v / %v", a.EngagementScore, b.EngagementScore)
	}
	if a.LeadershipScore != 1 || b.LeadershipScore != 1 {
		t.Fatalf("unexpected leadership %v / %v", a.LeadershipScore, b.LeadershipScore)
	}
	if !near(a.Minutes, 10) || !near(b.Minutes, 5) {
		t.Fatalf("unexpected minutes %v / %v", a.Minutes, b.Minutes)
	}
	if a.SentimentScore != nil || b.SentimentScore != nil {
		t.Fatalf("sentiment should be null without stances")
	}
	if !near(a.ChamberMinutes["dail"], 10) || !near(a.TopicMinutes["Other"], 10) {
		t.Fatalf("unexpected breakdowns %v %v", a.ChamberMinutes, a.TopicMinutes)
	}
	// 40*0.065 + 20*(1/40) + 20*(1/8) + 20*0.5
	if !near(a.InfluenceScore, 15.6) {
		t.Fatalf("unexpected influence %v", a.InfluenceScore)
	}
	// 100*(0.6*0.5 + 0.25*0.156 + 0.15*0.5)
	if !near(a.EffectivenessScore, 41.4) {
		t.Fatalf("unexpected effectiveness %v", a.EffectivenessScore)
	}

	c := byID(t, res, 3)
	if c.Speeches != 0 || c.Words != 0 || c.SentimentScore != nil {
		t.Fatalf("silent legislator should have zero metrics: %+v", c)
	}
	if len(res.Legislators) != 3 || res.Unattributed != 0 {
		t.Fatalf("unexpected result shape %+v", res)
	}
}

func TestComputeDrawOutcome(t *testing.T) {
	res := Compute(Input{
		Legislators: registry(),
		Sections:    []Section{{ID: "s1"}},
		Speeches: []Speech{
			{SectionID: "s1", SpeakerName: "Alice Byrne", WordCount: 100},
			{SectionID: "s1", SpeakerName: "Brian Coyle", WordCount: 100},
			{SectionID: "s1", SpeakerName: "Cait Ni Dhuibhir", WordCount: 100},
			{SectionID: "s1", SpeakerName: "Alice Byrne", WordCount: 50},
		},
		Outcomes: []Outcome{{SectionID: "s1", Verdict: "Draw", WinnerID: 1}},
	}, DefaultWeights())

	for _, m := range res.Legislators {
		want := OutcomeTally{Participations: 1, Draws: 1}
		if m.Outcomes != want {
			t.Fatalf("legislator %d: expected %+v, got %+v", m.LegislatorID, want, m.Outcomes)
		}
	}
}

func TestComputeOutcomeTally(t *testing.T) {
	res := Compute(Input{
		Legislators: registry(),
		Sections:    []Section{{ID: "s1"}, {ID: "s2"}},
		Speeches: []Speech{
			{SectionID: "s1", SpeakerName: "Alice Byrne", WordCount: 100},
			{SectionID: "s1", SpeakerName: "Brian Coyle", WordCount: 100},
			{SectionID: "s1", SpeakerName: "Cáit Ní Dhuibhir", WordCount: 100},
			{SectionID: "s2", SpeakerName: "Alice Byrne", WordCount: 100},
		},
		Outcomes: []Outcome{
			{SectionID: "s1", Verdict: "win", WinnerID: 1, RunnerUpID: 2},
			{SectionID: "s2", Verdict: "loss", WinnerID: 2},
			{SectionID: "missing", Verdict: "win", WinnerID: 3},
		},
	}, DefaultWeights())

	a, b, c := byID(t, res, 1), byID(t, res, 2), byID(t, res, 3)
	if a.Outcomes != (OutcomeTally{Participations: 2, Wins: 1, Losses: 1}) {
		t.Fatalf("alice: %+v", a.Outcomes)
	}
	if b.Outcomes != (OutcomeTally{Participations: 1, Draws: 1}) {
		t.Fatalf("brian: %+v", b.Outcomes)
	}
	if c.Outcomes != (OutcomeTally{Participations: 1, Losses: 1}) {
		t.Fatalf("cait: %+v", c.Outcomes)
	}

	// s1: one win, one runner-up draw, one loss. s2's winner did not speak.
	wins := a.Outcomes.Wins + b.Outcomes.Wins + c.Outcomes.Wins
	participations := a.Outcomes.Participations + b.Outcomes.Participations + c.Outcomes.Participations
	if wins != 1 || participations != 4 {
		t.Fatalf("unexpected totals wins=%d participations=%d", wins, participations)
	}
}

func TestComputeSentimentAndStanceTopic(t *testing.T) {
	res := Compute(Input{
		Legislators: registry(),
		Sections:    []Section{{ID: "s1", Title: "Hospital Waiting Lists"}},
		Speeches: []Speech{
			{SectionID: "s1", SpeakerName: "Alice Byrne", WordCount: 130,
				Stance: &Stance{Topic: "Housing", Sentiment: "Positive", Certainty: 1}},
			{SectionID: "s1", SpeakerName: "Alice Byrne", WordCount: 130,
				Stance: &Stance{Sentiment: "negative", Certainty: 0.5}},
			{SectionID: "s1", SpeakerName: "Alice Byrne", WordCount: 130,
				Stance: &Stance{Sentiment: "", Certainty: 1}},
			{SectionID: "s1", SpeakerName: "Brian Coyle", WordCount: 130,
				Stance: &Stance{Sentiment: "mixed", Certainty: 7}},
		},
	}, DefaultWeights())

	a := byID(t, res, 1)
	if a.SentimentScore == nil || *a.SentimentScore != 0.333 {
		t.Fatalf("expected 0.333, got %v", a.SentimentScore)
	}
	if !near(a.Sentiment.Positive, 1) || !near(a.Sentiment.Negative, 0.5) || a.Sentiment.Neutral != 0 {
		t.Fatalf("unexpected totals %+v", a.Sentiment)
	}
	if !near(a.TopicMinutes["Housing"], 1) || !near(a.TopicMinutes["Healthcare"], 2) || a.UniqueTopics() != 2 {
		t.Fatalf("unexpected topics %v", a.TopicMinutes)
	}

	b := byID(t, res, 2)
	if b.SentimentScore == nil || *b.SentimentScore != 0 || !near(b.Sentiment.Neutral, 1) {
		t.Fatalf("unknown label should be neutral with certainty clamped: %+v %v", b.Sentiment, b.SentimentScore)
	}
}

func TestComputeResolutionAndUnattributed(t *testing.T) {
	res := Compute(Input{
		Legislators: registry(),
		Sections:    []Section{{ID: "s1"}},
		Speeches: []Speech{
			{SectionID: "s1", SpeakerRef: "#Unknown", SpeakerName: "A Deputy",
				SpeakerURI: "/ie/oireachtas/member/id/Brian-Coyle.D.2020-02-20", WordCount: 10},
			{SectionID: "s1", SpeakerRef: "#Nobody", SpeakerName: "Someone", WordCount: 10},
			{SectionID: "s1", SpeakerRole: "Alice Byrne", WordCount: 10},
		},
	}, DefaultWeights())

	if res.Speeches != 3 || res.Unattributed != 1 {
		t.Fatalf("unexpected counts %+v", res)
	}
	if byID(t, res, 2).Speeches != 1 || byID(t, res, 1).Speeches != 1 {
		t.Fatalf("uri and role candidates should resolve")
	}
}

func TestScoreBounds(t *testing.T) {
	res := Compute(Input{
		Legislators: registry(),
		Sections:    []Section{{ID: "s1", Title: "housing"}, {ID: "s2", Title: "health"}},
		Speeches: []Speech{
			{SectionID: "s1", SpeakerName: "Alice Byrne", WordCount: 500000,
				Stance: &Stance{Sentiment: "positive", Certainty: 1}},
			{SectionID: "s2", SpeakerName: "Brian Coyle", WordCount: 1,
				Stance: &Stance{Sentiment: "negative", Certainty: 1}},
		},
		Outcomes: []Outcome{{SectionID: "s1", Verdict: "win", WinnerID: 1}},
	}, Weights{InfluenceWords: 90, InfluenceSentiment: 90, Outcome: 1, Influence: 1, Sentiment: 1})

	for _, m := range res.Legislators {
		if m.InfluenceScore < 0 || m.InfluenceScore > 100 {
			t.Fatalf("influence out of range: %+v", m)
		}
		if m.EffectivenessScore < 0 || m.EffectivenessScore > 100 {
			t.Fatalf("effectiveness out of range: %+v", m)
		}
		if s := m.SentimentScore; s != nil && (*s < -1 || *s > 1) {
			t.Fatalf("sentiment out of range: %v", *s)
		}
	}
	if s := byID(t, res, 2).SentimentScore; s == nil || *s != -1 {
		t.Fatalf("expected -1 sentiment, got %v", s)
	}
}

func TestIssueBreakdown(t *testing.T) {
	m := LegislatorMetrics{TopicMinutes: map[string]float64{"Housing": 3, "Healthcare": 1, "Other": 0}}
	got := m.IssueBreakdown()
	if len(got) != 2 {
		t.Fatalf("zero-minute topics should be dropped: %+v", got)
	}
	if got[0].Topic != "Housing" || got[0].Percentage != 75 || got[1].Percentage != 25 {
		t.Fatalf("unexpected breakdown %+v", got)
	}
}

func TestRank(t *testing.T) {
	ranked := Rank([]Snapshot{
		{LegislatorID: 4, EffectivenessScore: 50, InfluenceScore: 10, Words: 10},
		{LegislatorID: 2, EffectivenessScore: 60, InfluenceScore: 10, Words: 10},
		{LegislatorID: 3, EffectivenessScore: 50, InfluenceScore: 20, Words: 10},
		{LegislatorID: 1, EffectivenessScore: 50, InfluenceScore: 10, Words: 10},
		{LegislatorID: 5, EffectivenessScore: 50, InfluenceScore: 10, Words: 99},
	})
	want := []int64{2, 3, 5, 1, 4}
	for i, r := range ranked {
		if r.LegislatorID != want[i] || r.Rank != i+1 {
			t.Fatalf("position %d: got legislator %d rank %d, want %d", i, r.LegislatorID, r.Rank, want[i])
		}
	}
}
