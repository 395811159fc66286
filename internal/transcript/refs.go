package transcript

import "strings"

// Ref is a document-scoped person or role entry.
type Ref struct {
	ID   string
	Name string
	URI  string
}

// References holds the person and role tables from a document's meta block.
// It is built once per document and never mutated afterwards.
type References struct {
	persons map[string]Ref
	roles   map[string]Ref
}

type xmlReferences struct {
	Persons []xmlTLC `xml:"TLCPerson"`
	Roles   []xmlTLC `xml:"TLCRole"`
}

type xmlTLC struct {
	EID    string `xml:"eId,attr"`
	ID     string `xml:"id,attr"`
	Href   string `xml:"href,attr"`
	ShowAs string `xml:"showAs,attr"`
}

func (t xmlTLC) key() string {
	if t.EID != "" {
		return t.EID
	}
	return t.ID
}

// newReferences builds the lookup tables from one or more references blocks.
func newReferences(blocks []xmlReferences) *References {
	r := &References{
		persons: make(map[string]Ref),
		roles:   make(map[string]Ref),
	}
	for _, b := range blocks {
		for _, p := range b.Persons {
			addRef(r.persons, p)
		}
		for _, p := range b.Roles {
			addRef(r.roles, p)
		}
	}
	return r
}

func addRef(m map[string]Ref, t xmlTLC) {
	key := RefKey(t.key())
	if key == "" {
		return
	}
	if _, exists := m[key]; exists {
		return
	}
	m[key] = Ref{
		ID:   key,
		Name: strings.TrimSpace(t.ShowAs),
		URI:  strings.TrimSpace(t.Href),
	}
}

// RefKey normalizes a declared eId or a by/to/as attribute to the canonical
// "#id" form.
func RefKey(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimLeft(s, "#")
	if s == "" {
		return ""
	}
	return "#" + s
}

// Lookup resolves a raw attribute value. Roles are consulted before persons.
func (r *References) Lookup(raw string) (Ref, bool) {
	if r == nil {
		return Ref{}, false
	}
	key := RefKey(raw)
	if key == "" {
		return Ref{}, false
	}
	if ref, ok := r.roles[key]; ok {
		return ref, true
	}
	if ref, ok := r.persons[key]; ok {
		return ref, true
	}
	return Ref{}, false
}

// Person resolves against the person table only.
func (r *References) Person(raw string) (Ref, bool) {
	if r == nil {
		return Ref{}, false
	}
	ref, ok := r.persons[RefKey(raw)]
	return ref, ok
}

// Len returns the number of person and role entries.
func (r *References) Len() (persons, roles int) {
	if r == nil {
		return 0, 0
	}
	return len(r.persons), len(r.roles)
}
