// Package metrics aggregates persisted speeches, stances and outcomes into
// per-legislator snapshots and issue-focus breakdowns for a reporting period.
package metrics

import (
	"math"
	"sort"
	"strings"

	"github.com/Napageneral/dailwatch/internal/config"
	"github.com/Napageneral/dailwatch/internal/legislators"
	"github.com/Napageneral/dailwatch/internal/topics"
)

// Weights are the scoring constants. Zero values are replaced by defaults.
type Weights struct {
	WordsPerMinute float64

	InfluenceWords     float64
	InfluenceSpeeches  float64
	InfluenceTopics    float64
	InfluenceSentiment float64
	WordsCap           float64
	SpeechesCap        float64
	TopicsCap          float64

	Outcome   float64
	Influence float64
	Sentiment float64
}

func DefaultWeights() Weights {
	return WeightsFromConfig(config.Default().Scoring)
}

func WeightsFromConfig(c config.ScoringConfig) Weights {
	return Weights{
		WordsPerMinute:     c.WordsPerMinute,
		InfluenceWords:     c.InfluenceWordsWeight,
		InfluenceSpeeches:  c.InfluenceSpeechesWeight,
		InfluenceTopics:    c.InfluenceTopicsWeight,
		InfluenceSentiment: c.InfluenceSentimentWeight,
		WordsCap:           c.InfluenceWordsCap,
		SpeechesCap:        c.InfluenceSpeechesCap,
		TopicsCap:          c.InfluenceTopicsCap,
		Outcome:            c.OutcomeWeight,
		Influence:          c.InfluenceWeight,
		Sentiment:          c.SentimentWeight,
	}
}

func (w Weights) withDefaults() Weights {
	d := Weights{
		WordsPerMinute: 130,
		InfluenceWords: 40, InfluenceSpeeches: 20, InfluenceTopics: 20, InfluenceSentiment: 20,
		WordsCap: 20000, SpeechesCap: 40, TopicsCap: 8,
		Outcome: 0.6, Influence: 0.25, Sentiment: 0.15,
	}
	if w == (Weights{}) {
		return d
	}
	if w.WordsPerMinute <= 0 {
		w.WordsPerMinute = d.WordsPerMinute
	}
	if w.WordsCap <= 0 {
		w.WordsCap = d.WordsCap
	}
	if w.SpeechesCap <= 0 {
		w.SpeechesCap = d.SpeechesCap
	}
	if w.TopicsCap <= 0 {
		w.TopicsCap = d.TopicsCap
	}
	return w
}

// Section is one debate section in the period.
type Section struct {
	ID              string
	Chamber         string
	Title           string
	DebateType      string
	Summary         string
	SummaryComplete bool
}

// Stance is the externally produced label for one speech.
type Stance struct {
	Topic     string
	Sentiment string
	Certainty float64
}

// Speech is one persisted speech with its speaker candidates.
type Speech struct {
	ID          string
	SectionID   string
	SpeakerRef  string
	SpeakerName string
	SpeakerRole string
	SpeakerURI  string
	WordCount   int
	Stance      *Stance
}

// Outcome is the recorded verdict for a section. Zero ids mean none.
type Outcome struct {
	SectionID  string
	WinnerID   int64
	RunnerUpID int64
	Verdict    string
}

// Input is everything Compute needs; it reads nothing else.
type Input struct {
	Legislators []legislators.Legislator
	Sections    []Section
	Speeches    []Speech
	Outcomes    []Outcome
	Classifier  *topics.Classifier
}

// OutcomeTally counts a legislator's debate results.
type OutcomeTally struct {
	Participations int `json:"participations"`
	Wins           int `json:"wins"`
	Draws          int `json:"draws"`
	Losses         int `json:"losses"`
}

// SentimentTotals are certainty-weighted minutes per sentiment bucket.
type SentimentTotals struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

func (s SentimentTotals) total() float64 {
	return s.Positive + s.Negative + s.Neutral
}

// LegislatorMetrics is the computed snapshot for one legislator.
type LegislatorMetrics struct {
	LegislatorID    int64
	FullName        string
	Speeches        int
	Words           int
	Minutes         float64
	SectionsTouched int
	TopicMinutes    map[string]float64
	ChamberMinutes  map[string]float64
	Sentiment       SentimentTotals
	Outcomes        OutcomeTally

	EngagementScore    float64
	LeadershipScore    float64
	SentimentScore     *float64
	InfluenceScore     float64
	EffectivenessScore float64
}

// UniqueTopics is the number of distinct topics the legislator spoke on.
func (m LegislatorMetrics) UniqueTopics() int {
	return len(m.TopicMinutes)
}

// Result is the output of Compute.
type Result struct {
	Legislators  []LegislatorMetrics
	Speeches     int
	Unattributed int
	Collisions   []legislators.Collision
}

type accumulator struct {
	m        *LegislatorMetrics
	sections map[string]bool
}

// Compute aggregates in. Every registry legislator gets an entry, in
// registry order, even without speeches.
func Compute(in Input, w Weights) *Result {
	w = w.withDefaults()
	classifier := in.Classifier
	if classifier == nil {
		classifier = topics.Default()
	}
	resolver := legislators.NewResolver(in.Legislators)

	res := &Result{Collisions: resolver.Collisions()}
	order := make([]int64, 0, len(in.Legislators))
	acc := make(map[int64]*accumulator, len(in.Legislators))
	for _, l := range in.Legislators {
		if _, ok := acc[l.ID]; ok {
			continue
		}
		order = append(order, l.ID)
		acc[l.ID] = &accumulator{
			m: &LegislatorMetrics{
				LegislatorID:   l.ID,
				FullName:       l.FullName,
				TopicMinutes:   map[string]float64{},
				ChamberMinutes: map[string]float64{},
			},
			sections: map[string]bool{},
		}
	}

	sections := make(map[string]Section, len(in.Sections))
	for _, s := range in.Sections {
		sections[s.ID] = s
	}
	sectionTopic := make(map[string]string)
	participants := make(map[string]map[int64]bool)

	for _, sp := range in.Speeches {
		res.Speeches++
		id, ok := resolver.Resolve(sp.SpeakerRef, sp.SpeakerName, sp.SpeakerRole, legislators.MemberCodeFromURI(sp.SpeakerURI))
		if !ok {
			res.Unattributed++
			continue
		}
		a := acc[id]
		if a == nil {
			res.Unattributed++
			continue
		}
		sec := sections[sp.SectionID]

		topic := ""
		if sp.Stance != nil {
			topic = strings.TrimSpace(sp.Stance.Topic)
		}
		if topic == "" {
			t, cached := sectionTopic[sp.SectionID]
			if !cached {
				t = classifier.Classify(sec.Title, sec.Summary, sec.DebateType)
				sectionTopic[sp.SectionID] = t
			}
			topic = t
		}

		minutes := float64(sp.WordCount) / w.WordsPerMinute
		m := a.m
		m.Speeches++
		m.Words += sp.WordCount
		m.Minutes += minutes
		m.TopicMinutes[topic] += minutes
		if sec.Chamber != "" {
			m.ChamberMinutes[sec.Chamber] += minutes
		}
		a.sections[sp.SectionID] = true

		if sp.Stance != nil {
			addSentiment(&m.Sentiment, sp.Stance, minutes)
		}

		p := participants[sp.SectionID]
		if p == nil {
			p = make(map[int64]bool)
			participants[sp.SectionID] = p
		}
		p[id] = true
	}

	for _, o := range in.Outcomes {
		for id := range participants[o.SectionID] {
			creditOutcome(&acc[id].m.Outcomes, id, o)
		}
	}

	res.Legislators = make([]LegislatorMetrics, 0, len(order))
	for _, id := range order {
		a := acc[id]
		a.m.SectionsTouched = len(a.sections)
		score(a.m, w)
		res.Legislators = append(res.Legislators, *a.m)
	}
	return res
}

func addSentiment(t *SentimentTotals, st *Stance, minutes float64) {
	certainty := st.Certainty
	if certainty < 0 {
		certainty = 0
	}
	if certainty > 1 {
		certainty = 1
	}
	weight := minutes * certainty
	switch strings.ToLower(strings.TrimSpace(st.Sentiment)) {
	case "":
		return
	case "positive":
		t.Positive += weight
	case "negative":
		t.Negative += weight
	default:
		t.Neutral += weight
	}
}

// IsDrawVerdict reports whether a verdict credits every participant a draw.
func IsDrawVerdict(verdict string) bool {
	switch strings.ToLower(strings.TrimSpace(verdict)) {
	case "draw", "stalemate", "split", "tie":
		return true
	}
	return false
}

func creditOutcome(t *OutcomeTally, id int64, o Outcome) {
	t.Participations++
	switch {
	case IsDrawVerdict(o.Verdict):
		t.Draws++
	case o.WinnerID != 0 && id == o.WinnerID:
		t.Wins++
	case o.RunnerUpID != 0 && id == o.RunnerUpID:
		t.Draws++
	default:
		t.Losses++
	}
}

func score(m *LegislatorMetrics, w Weights) {
	m.EngagementScore = float64(m.Words)
	m.LeadershipScore = float64(m.Speeches)

	sentimentTerm := 0.5
	if total := m.Sentiment.total(); total > 0 {
		s := round((m.Sentiment.Positive-m.Sentiment.Negative)/total, 3)
		m.SentimentScore = &s
		sentimentTerm = (s + 1) / 2
	}

	influence := w.InfluenceWords*capRatio(float64(m.Words), w.WordsCap) +
		w.InfluenceSpeeches*capRatio(float64(m.Speeches), w.SpeechesCap) +
		w.InfluenceTopics*capRatio(float64(m.UniqueTopics()), w.TopicsCap) +
		w.InfluenceSentiment*sentimentTerm
	m.InfluenceScore = round(clamp(influence, 0, 100), 2)

	outcome := 0.5
	if t := m.Outcomes; t.Participations > 0 {
		outcome = (float64(t.Wins) + 0.5*float64(t.Draws)) / float64(t.Participations)
	}
	eff := 100 * (w.Outcome*outcome + w.Influence*(m.InfluenceScore/100) + w.Sentiment*sentimentTerm)
	m.EffectivenessScore = round(clamp(eff, 0, 100), 2)
}

func capRatio(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Min(v/limit, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// IssueFocus is one legislator's share of time on a topic.
type IssueFocus struct {
	Topic      string  `json:"topic"`
	Minutes    float64 `json:"minutes"`
	Percentage float64 `json:"percentage"`
}

// IssueBreakdown lists topics with positive minutes, largest first.
func (m LegislatorMetrics) IssueBreakdown() []IssueFocus {
	var total float64
	for _, v := range m.TopicMinutes {
		total += v
	}
	var out []IssueFocus
	for topic, minutes := range m.TopicMinutes {
		if minutes <= 0 {
			continue
		}
		out = append(out, IssueFocus{
			Topic:      topic,
			Minutes:    minutes,
			Percentage: round(minutes/total*100, 2),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Minutes != out[j].Minutes {
			return out[i].Minutes > out[j].Minutes
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}
