package transcript

import (
	"os"
	"path/filepath"
	"testing"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "dail-2024-01-17.xml"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return raw
}

func TestParseFixtureTree(t *testing.T) {
	meta := map[string]SectionMeta{
		"dbsect_2": {ShowAs: "Leaders' Questions", DebateType: "Debate", ContainsDebate: true},
		"dbsect_3": {DebateType: "questions", ContainsDebate: true, ParentCode: "dbsect_2"},
	}
	doc, err := Parse(loadFixture(t), meta)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Sections) != 3 {
		t.Fatalf("expected 3 top-level sections, got %d", len(doc.Sections))
	}

	prayer := doc.Sections[0]
	if prayer.Code != "dbsect_1" || prayer.Title != "Prayer" || prayer.ContainsDebate {
		t.Fatalf("unexpected prelude section: %+v", prayer)
	}
	if prayer.DebateType != "prelude" {
		t.Fatalf("expected prelude type from name attr, got %q", prayer.DebateType)
	}

	lq := doc.Sections[1]
	if lq.Title != "Ceisteanna ó Cheannairí - Leaders' Questions" {
		t.Fatalf("recorded time not stripped from title: %q", lq.Title)
	}
	if lq.RecordedTime != "2024-01-17T14:00:00" {
		t.Fatalf("unexpected recorded time %q", lq.RecordedTime)
	}
	if lq.DebateType != "debate" || lq.RawDebateType != "Debate" {
		t.Fatalf("unexpected debate type %q / %q", lq.DebateType, lq.RawDebateType)
	}
	if lq.SpeechCount() != 2 || lq.WordCount() != 26 {
		t.Fatalf("expected 2 speeches / 26 words, got %d / %d", lq.SpeechCount(), lq.WordCount())
	}

	first := lq.Speeches[0]
	if first.Code != "spk_1" || first.SpeakerRef != "#MaryLouMcDonald" || first.SpeakerName != "Mary Lou McDonald" {
		t.Fatalf("unexpected first speech: %+v", first)
	}
	if first.SpeakerLabel != "Deputy Mary Lou McDonald" {
		t.Fatalf("time not stripped from label: %q", first.SpeakerLabel)
	}
	if first.RecordedTime != "2024-01-17T14:00:00" {
		t.Fatalf("unexpected speech time %q", first.RecordedTime)
	}
	if len(first.Paragraphs) != 2 || first.Paragraphs[1] != "Rents have never been higher." {
		t.Fatalf("unexpected paragraphs %q", first.Paragraphs)
	}
	if first.WordCount != 14 {
		t.Fatalf("expected 14 words, got %d", first.WordCount)
	}

	second := lq.Speeches[1]
	if second.SpeakerName != "Micheál Martin" || second.RoleName != "An Taoiseach" || second.RoleRef != "#Taoiseach" {
		t.Fatalf("unexpected speaker/role: %+v", second)
	}
	if second.SpeakerURI != "/ie/oireachtas/member/id/Micheál-Martin.D.1989-06-29" {
		t.Fatalf("unexpected speaker uri %q", second.SpeakerURI)
	}

	if len(lq.Subsections) != 1 {
		t.Fatalf("expected 1 subsection, got %d", len(lq.Subsections))
	}
	sub := lq.Subsections[0]
	if sub.ParentCode != "dbsect_2" || sub.DebateType != "questions" {
		t.Fatalf("unexpected subsection: %+v", sub)
	}
	if sub.Question == nil {
		t.Fatalf("expected question on subsection")
	}
	if sub.Question.Text != "To ask the Taoiseach about waiting lists.\n\nAnd trolley numbers." {
		t.Fatalf("unexpected question text %q", sub.Question.Text)
	}
	if sub.Question.AskerName != "Mary Lou McDonald" || sub.Question.AddresseeName != "An Taoiseach" {
		t.Fatalf("unexpected question refs: %+v", sub.Question)
	}

	noCode := doc.Sections[2]
	if noCode.Code != "" || noCode.Title != "Unnumbered Item" {
		t.Fatalf("unexpected code-less section: %+v", noCode)
	}
	unknown := noCode.Speeches[0]
	if unknown.SpeakerRef != "#Unknown" || unknown.SpeakerName != "A Deputy" || unknown.SpeakerURI != "" {
		t.Fatalf("unresolved speaker should fall back to label: %+v", unknown)
	}

	st := doc.Stats()
	if st.Sections != 4 || st.Speeches != 4 || st.Words != 33 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestParseMissingRootsYieldsEmpty(t *testing.T) {
	cases := map[string]string{
		"empty":         "",
		"no body":       `<akomaNtoso><debate><meta><references><TLCPerson eId="A" showAs="A"/></references></meta></debate></akomaNtoso>`,
		"no references": `<akomaNtoso><debate><debateBody><debateSection eId="s1"><speech by="#A"><p>hello</p></speech></debateSection></debateBody></debate></akomaNtoso>`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			doc, err := Parse([]byte(raw), nil)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(doc.Sections) != 0 {
				t.Fatalf("expected no sections, got %d", len(doc.Sections))
			}
		})
	}
}

func TestParseEmptyDay(t *testing.T) {
	raw := `<akomaNtoso><debate><meta><references/></meta><debateBody></debateBody></debate></akomaNtoso>`
	doc, err := Parse([]byte(raw), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Sections) != 0 || doc.Stats().Sections != 0 {
		t.Fatalf("expected empty document, got %+v", doc.Stats())
	}
}

func TestParseMetaTitleFallback(t *testing.T) {
	raw := `<akomaNtoso><debate><meta><references><TLCPerson eId="A" showAs="Alice"/></references></meta>
<debateBody><debateSection eId="dbsect_9"><speech by="A"><p>one two three</p></speech></debateSection></debateBody></debate></akomaNtoso>`
	doc, err := Parse([]byte(raw), map[string]SectionMeta{"dbsect_9": {ShowAs: "Statements on Housing", DebateType: "Statements"}})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s := doc.Sections[0]
	if s.Title != "Statements on Housing" || s.DebateType != "statements" {
		t.Fatalf("unexpected section %+v", s)
	}
	if s.Speeches[0].SpeakerName != "Alice" || s.Speeches[0].SpeakerRef != "#A" {
		t.Fatalf("bare by attribute should resolve: %+v", s.Speeches[0])
	}
}

func TestRefKey(t *testing.T) {
	cases := map[string]string{
		"#Alice":   "#Alice",
		"Alice":    "#Alice",
		"  #Bob ":  "#Bob",
		"##Carol":  "#Carol",
		"":         "",
		"#":        "",
	}
	for in, want := range cases {
		if got := RefKey(in); got != want {
			t.Fatalf("RefKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReferencesLookupPrefersRoles(t *testing.T) {
	refs := newReferences([]xmlReferences{{
		Persons: []xmlTLC{{EID: "Chair", ShowAs: "Person Chair"}},
		Roles:   []xmlTLC{{EID: "Chair", ShowAs: "Role Chair"}},
	}})
	ref, ok := refs.Lookup("#Chair")
	if !ok || ref.Name != "Role Chair" {
		t.Fatalf("expected role to win, got %+v", ref)
	}
	person, ok := refs.Person("Chair")
	if !ok || person.Name != "Person Chair" {
		t.Fatalf("expected person entry, got %+v", person)
	}
}

func TestCountWords(t *testing.T) {
	if got := CountWords([]string{"one two", "  three\tfour\nfive ", ""}); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}
