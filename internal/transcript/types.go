// Package transcript parses Oireachtas Akoma Ntoso debate records into a typed
// section tree with resolved speaker and role references.
package transcript

// SectionMeta is the per-section summary the paging API returns alongside the
// raw document, keyed by section code.
type SectionMeta struct {
	ShowAs         string
	DebateType     string
	SpeechCount    int
	SpeakerCount   int
	ContainsDebate bool
	ParentCode     string
}

// Document is the parsed form of one chamber-day.
type Document struct {
	Sections []*Section
}

// Section is one debateSection node. Code is empty for nodes without an eId.
type Section struct {
	Code           string
	Title          string
	DebateType     string
	RawDebateType  string
	RecordedTime   string
	ContainsDebate bool
	ParentCode     string
	Question       *Question
	Speeches       []Speech
	Subsections    []*Section
}

// WordCount sums the section's own speeches, excluding subsections.
func (s *Section) WordCount() int {
	total := 0
	for _, sp := range s.Speeches {
		total += sp.WordCount
	}
	return total
}

// SpeechCount returns the number of direct speeches.
func (s *Section) SpeechCount() int {
	return len(s.Speeches)
}

// Speech is one continuous utterance. Speaker and role fields are empty when
// the document reference could not be resolved.
type Speech struct {
	Code         string
	SpeakerRef   string
	SpeakerName  string
	SpeakerURI   string
	RoleRef      string
	RoleName     string
	RoleURI      string
	SpeakerLabel string
	RecordedTime string
	Paragraphs   []string
	WordCount    int
}

// Question is the formal question attached to a section, at most one.
type Question struct {
	Code          string
	AskerRef      string
	AskerName     string
	AddresseeRef  string
	AddresseeName string
	RecordedTime  string
	Text          string
}

// Stats totals a parsed document.
type Stats struct {
	Sections int
	Speeches int
	Words    int
}

// Stats walks the whole tree.
func (d *Document) Stats() Stats {
	var st Stats
	var walk func([]*Section)
	walk = func(sections []*Section) {
		for _, s := range sections {
			st.Sections++
			st.Speeches += len(s.Speeches)
			st.Words += s.WordCount()
			walk(s.Subsections)
		}
	}
	walk(d.Sections)
	return st
}
