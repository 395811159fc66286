// Package ident derives stable identifiers for debate days, sections and
// speeches so repeated ingestion of the same content upserts in place.
package ident

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PathDelimiter separates section path segments.
const PathDelimiter = "/"

// namespace scopes every derived id to this project.
var namespace = uuid.MustParse("6f1c2a54-3b0e-4d8e-9b7a-0d3c5e2f8a11")

// Derive hashes parts into a version 8 (custom) UUID using SHA-256.
func Derive(parts ...string) string {
	data := strings.Join(parts, "\x1f")
	return uuid.NewHash(sha256.New(), namespace, []byte(data), 8).String()
}

// DayID is the identity of a chamber-day row.
func DayID(chamber, date, sourceURI string) string {
	return Derive("day", chamber, date, sourceURI)
}

// Segment returns the path segment for a node: its natural code, or a
// positional fallback among its siblings.
func Segment(code string, position int) string {
	code = strings.TrimSpace(code)
	if code != "" {
		return code
	}
	return fmt.Sprintf("pos-%d", position)
}

// JoinPath appends a segment to a parent path.
func JoinPath(parent, segment string) string {
	if parent == "" {
		return segment
	}
	return parent + PathDelimiter + segment
}

// Assigner hands out section ids for one day. A stored id for a natural code
// is handed to the first section carrying that code in a pass; later sections
// with the same code derive from their path.
type Assigner struct {
	dayID    string
	sections map[string]string
	claimed  map[string]bool
}

// NewAssigner builds an assigner for dayID. existingSections maps section code
// to the id already stored for its first occurrence this day; it may be nil.
func NewAssigner(dayID string, existingSections map[string]string) *Assigner {
	if existingSections == nil {
		existingSections = map[string]string{}
	}
	return &Assigner{dayID: dayID, sections: existingSections, claimed: map[string]bool{}}
}

// SectionID returns the id for a section at path with the given natural code.
// reused reports whether the id came from storage.
func (a *Assigner) SectionID(path, code string) (id string, reused bool) {
	if code != "" && !a.claimed[code] {
		a.claimed[code] = true
		if existing, ok := a.sections[code]; ok {
			return existing, true
		}
	}
	return Derive("section", a.dayID, path), false
}

// SpeechID returns the id for a speech within sectionID. existing maps speech
// code to a stored id and may be nil.
func SpeechID(sectionID, code string, position int, existing map[string]string) (id string, reused bool) {
	code = strings.TrimSpace(code)
	if code != "" {
		if id, ok := existing[code]; ok {
			return id, true
		}
	}
	return Derive("speech", sectionID, Segment(code, position)), false
}
