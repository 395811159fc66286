package transcript

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type xmlDebateBody struct {
	Sections []xmlSection `xml:"debateSection"`
}

type xmlSection struct {
	EID       string        `xml:"eId,attr"`
	Name      string        `xml:"name,attr"`
	Heading   *xmlMixed     `xml:"heading"`
	Questions []xmlQuestion `xml:"question"`
	Speeches  []xmlSpeech   `xml:"speech"`
	Sections  []xmlSection  `xml:"debateSection"`
}

type xmlMixed struct {
	Inner string `xml:",innerxml"`
}

type xmlRecordedTime struct {
	Time string `xml:"time,attr"`
}

type xmlQuestion struct {
	EID        string           `xml:"eId,attr"`
	By         string           `xml:"by,attr"`
	To         string           `xml:"to,attr"`
	Recorded   *xmlRecordedTime `xml:"recordedTime"`
	Paragraphs []xmlMixed       `xml:"p"`
}

type xmlSpeech struct {
	EID        string           `xml:"eId,attr"`
	By         string           `xml:"by,attr"`
	As         string           `xml:"as,attr"`
	From       *xmlMixed        `xml:"from"`
	Recorded   *xmlRecordedTime `xml:"recordedTime"`
	Paragraphs []xmlMixed       `xml:"p"`
}

// Parse turns one chamber-day document into a section tree. meta may be nil.
//
// A document without a debateBody or without any references block yields an
// empty Document and no error. Only unreadable XML is reported as an error.
func Parse(raw []byte, meta map[string]SectionMeta) (*Document, error) {
	doc := &Document{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc, nil
	}

	var (
		refBlocks []xmlReferences
		body      *xmlDebateBody
	)

	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return doc, fmt.Errorf("read transcript xml: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "references":
			var block xmlReferences
			if err := dec.DecodeElement(&block, &start); err != nil {
				return doc, fmt.Errorf("decode references: %w", err)
			}
			refBlocks = append(refBlocks, block)
		case "debateBody":
			if body != nil {
				if err := dec.Skip(); err != nil {
					return doc, fmt.Errorf("skip extra debateBody: %w", err)
				}
				continue
			}
			var b xmlDebateBody
			if err := dec.DecodeElement(&b, &start); err != nil {
				return doc, fmt.Errorf("decode debateBody: %w", err)
			}
			body = &b
		}
	}

	if body == nil || len(refBlocks) == 0 {
		return doc, nil
	}

	p := &parser{refs: newReferences(refBlocks), meta: meta}
	for _, xs := range body.Sections {
		doc.Sections = append(doc.Sections, p.section(xs, ""))
	}
	return doc, nil
}

type parser struct {
	refs *References
	meta map[string]SectionMeta
}

func (p *parser) section(xs xmlSection, parentCode string) *Section {
	code := strings.TrimSpace(xs.EID)
	m, hasMeta := p.lookupMeta(code)

	s := &Section{
		Code:       code,
		ParentCode: parentCode,
	}

	if xs.Heading != nil {
		title, times := mixedText(xs.Heading.Inner)
		s.Title = title
		if len(times) > 0 {
			s.RecordedTime = times[0]
		}
	}
	if s.Title == "" && hasMeta {
		s.Title = strings.TrimSpace(m.ShowAs)
	}

	s.RawDebateType = strings.TrimSpace(xs.Name)
	if hasMeta {
		if m.DebateType != "" {
			s.RawDebateType = strings.TrimSpace(m.DebateType)
		}
		if m.ParentCode != "" {
			s.ParentCode = m.ParentCode
		}
		s.ContainsDebate = m.ContainsDebate
	}
	s.DebateType = debateTypeTag(s.RawDebateType)

	if len(xs.Questions) > 0 {
		s.Question = p.question(xs.Questions[0])
	}

	for _, sp := range xs.Speeches {
		s.Speeches = append(s.Speeches, p.speech(sp))
	}
	if len(s.Speeches) > 0 {
		s.ContainsDebate = true
	}

	for _, child := range xs.Sections {
		s.Subsections = append(s.Subsections, p.section(child, code))
	}
	return s
}

func (p *parser) lookupMeta(code string) (SectionMeta, bool) {
	if code == "" || p.meta == nil {
		return SectionMeta{}, false
	}
	m, ok := p.meta[code]
	return m, ok
}

func (p *parser) speech(xs xmlSpeech) Speech {
	sp := Speech{
		Code:       strings.TrimSpace(xs.EID),
		SpeakerRef: RefKey(xs.By),
		RoleRef:    RefKey(xs.As),
	}

	if ref, ok := p.refs.Lookup(xs.By); ok {
		sp.SpeakerName = ref.Name
		sp.SpeakerURI = ref.URI
	}
	if ref, ok := p.refs.Lookup(xs.As); ok {
		sp.RoleName = ref.Name
		sp.RoleURI = ref.URI
	}

	if xs.From != nil {
		label, times := mixedText(xs.From.Inner)
		sp.SpeakerLabel = label
		if len(times) > 0 {
			sp.RecordedTime = times[0]
		}
	}
	if sp.RecordedTime == "" && xs.Recorded != nil {
		sp.RecordedTime = strings.TrimSpace(xs.Recorded.Time)
	}
	if sp.SpeakerName == "" {
		sp.SpeakerName = sp.SpeakerLabel
	}

	sp.Paragraphs = paragraphs(xs.Paragraphs)
	sp.WordCount = CountWords(sp.Paragraphs)
	return sp
}

func (p *parser) question(xq xmlQuestion) *Question {
	q := &Question{
		Code:         strings.TrimSpace(xq.EID),
		AskerRef:     RefKey(xq.By),
		AddresseeRef: RefKey(xq.To),
	}
	if ref, ok := p.refs.Lookup(xq.By); ok {
		q.AskerName = ref.Name
	}
	if ref, ok := p.refs.Lookup(xq.To); ok {
		q.AddresseeName = ref.Name
	}
	if xq.Recorded != nil {
		q.RecordedTime = strings.TrimSpace(xq.Recorded.Time)
	}
	q.Text = strings.Join(paragraphs(xq.Paragraphs), "\n\n")
	return q
}

func paragraphs(ps []xmlMixed) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		text, _ := mixedText(p.Inner)
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}

// debateTypeTag maps the raw API/document type to a stable lowercase tag.
func debateTypeTag(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return ""
	}
	var sb strings.Builder
	lastUnderscore := false
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && sb.Len() > 0 {
			sb.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(sb.String(), "_")
}
