package legislators

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey folds diacritics, lowercases and drops everything that is not
// an ASCII letter or digit, so "Mícheál Martin", "#MichealMartin" and
// "micheal-martin" share a key.
func NormalizeKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(folder, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// Collision records a key claimed by more than one legislator. The first
// legislator in registry order keeps the key.
type Collision struct {
	Key     string
	Kept    int64
	Dropped int64
}

// Resolver maps free-text speaker identifiers to registry ids. It is built
// once per run and is read-only afterwards.
type Resolver struct {
	byKey      map[string]int64
	collisions []Collision
}

// NewResolver indexes each legislator under its full name, member code and
// member URI.
func NewResolver(registry []Legislator) *Resolver {
	r := &Resolver{byKey: make(map[string]int64, len(registry)*3)}
	for _, l := range registry {
		for _, raw := range []string{l.FullName, l.MemberCode, l.MemberURI} {
			key := NormalizeKey(raw)
			if key == "" {
				continue
			}
			if kept, ok := r.byKey[key]; ok {
				if kept != l.ID {
					r.collisions = append(r.collisions, Collision{Key: key, Kept: kept, Dropped: l.ID})
				}
				continue
			}
			r.byKey[key] = l.ID
		}
	}
	return r
}

// Resolve returns the id for the first candidate whose normalized form is
// registered. Candidates are given in priority order; blanks are skipped.
func (r *Resolver) Resolve(candidates ...string) (int64, bool) {
	if r == nil {
		return 0, false
	}
	for _, c := range candidates {
		key := NormalizeKey(c)
		if key == "" {
			continue
		}
		if id, ok := r.byKey[key]; ok {
			return id, true
		}
	}
	return 0, false
}

// Collisions lists keys shared by several legislators.
func (r *Resolver) Collisions() []Collision {
	if r == nil {
		return nil
	}
	return r.collisions
}

// Len returns the number of indexed keys.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byKey)
}

// MemberCodeFromURI returns the trailing path segment of a member URI, which
// is the member code in Oireachtas documents.
func MemberCodeFromURI(uri string) string {
	uri = strings.TrimRight(strings.TrimSpace(uri), "/")
	if uri == "" {
		return ""
	}
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
