package oireachtas

import (
	"encoding/json"
	"strings"

	"github.com/Napageneral/dailwatch/internal/transcript"
)

type head struct {
	Counts struct {
		ResultCount int `json:"resultCount"`
		DebateCount int `json:"debateCount"`
		MemberCount int `json:"memberCount"`
	} `json:"counts"`
}

// total prefers resultCount, falling back to the per-kind counts.
func (h head) total() int {
	switch {
	case h.Counts.ResultCount > 0:
		return h.Counts.ResultCount
	case h.Counts.DebateCount > 0:
		return h.Counts.DebateCount
	default:
		return h.Counts.MemberCount
	}
}

type debatesResponse struct {
	Head    head `json:"head"`
	Results []struct {
		DebateRecord DebateRecord `json:"debateRecord"`
	} `json:"results"`
}

type showAsURI struct {
	ShowAs string `json:"showAs"`
	URI    string `json:"uri"`
}

// DebateRecord is one chamber-day in the debates listing.
type DebateRecord struct {
	Date    string    `json:"date"`
	ShowAs  string    `json:"showAs"`
	URI     string    `json:"uri"`
	Chamber showAsURI `json:"chamber"`
	House   struct {
		HouseCode   string `json:"houseCode"`
		ChamberType string `json:"chamberType"`
		ShowAs      string `json:"showAs"`
	} `json:"house"`
	Formats struct {
		XML *struct {
			URI string `json:"uri"`
		} `json:"xml"`
	} `json:"formats"`
	DebateSections []struct {
		DebateSection DebateSection `json:"debateSection"`
	} `json:"debateSections"`

	chamberCode string
}

// DebateSection is the per-section summary carried by a DebateRecord.
type DebateSection struct {
	DebateSectionID string `json:"debateSectionId"`
	ShowAs          string `json:"showAs"`
	DebateType      string `json:"debateType"`
	ContainsDebate  bool   `json:"containsDebate"`
	Counts          struct {
		SpeechCount  int `json:"speechCount"`
		SpeakerCount int `json:"speakerCount"`
	} `json:"counts"`
	Parent parentRef `json:"parentDebateSection"`
}

// parentRef accepts null, a bare uri/code string, or a {showAs, uri} object.
type parentRef struct {
	URI string
}

func (p *parentRef) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	if strings.HasPrefix(s, "\"") {
		return json.Unmarshal(b, &p.URI)
	}
	var obj showAsURI
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	p.URI = obj.URI
	return nil
}

// Code returns the trailing path segment of the parent uri.
func (p parentRef) Code() string {
	return lastSegment(p.URI)
}

func lastSegment(uri string) string {
	uri = strings.TrimRight(strings.TrimSpace(uri), "/")
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// ChamberCode is the house code, or the chamber the listing was queried for.
func (r DebateRecord) ChamberCode() string {
	if r.House.HouseCode != "" {
		return r.House.HouseCode
	}
	return r.chamberCode
}

// Title is the record's display name, else the chamber name, else the code.
func (r DebateRecord) Title() string {
	for _, s := range []string{r.ShowAs, r.Chamber.ShowAs, r.House.ShowAs} {
		if t := strings.TrimSpace(s); t != "" {
			return t
		}
	}
	return r.ChamberCode()
}

// XMLURI is the raw transcript location, empty when none is published.
func (r DebateRecord) XMLURI() string {
	if r.Formats.XML == nil {
		return ""
	}
	return strings.TrimSpace(r.Formats.XML.URI)
}

// SectionMeta indexes section summaries by section code.
func (r DebateRecord) SectionMeta() map[string]transcript.SectionMeta {
	out := make(map[string]transcript.SectionMeta, len(r.DebateSections))
	for _, wrapped := range r.DebateSections {
		s := wrapped.DebateSection
		code := strings.TrimSpace(s.DebateSectionID)
		if code == "" {
			continue
		}
		out[code] = transcript.SectionMeta{
			ShowAs:         s.ShowAs,
			DebateType:     s.DebateType,
			SpeechCount:    s.Counts.SpeechCount,
			SpeakerCount:   s.Counts.SpeakerCount,
			ContainsDebate: s.ContainsDebate,
			ParentCode:     s.Parent.Code(),
		}
	}
	return out
}

type membersResponse struct {
	Head    head `json:"head"`
	Results []struct {
		Member Member `json:"member"`
	} `json:"results"`
}

// Member is one entry of the members listing.
type Member struct {
	MemberCode string `json:"memberCode"`
	FullName   string `json:"fullName"`
	URI        string `json:"uri"`
}
