package model

import (
	"strings"
)

// Section is one statute section as stored for a single Version.
//
// Body holds only the section's own text (chapeau, content, continuation);
// text belonging to nested units lives in Subsections. FullText joins both.
type Section struct {
	Title       int          `json:"title"`
	Section     string       `json:"section"`
	Subsection  string       `json:"subsection,omitempty"`
	Num         string       `json:"num,omitempty"`
	Heading     string       `json:"heading"`
	Body        string       `json:"body"`
	Reserved    bool         `json:"reserved,omitempty"`
	Status      string       `json:"status,omitempty"`
	Subsections []Subsection `json:"subsections,omitempty"`
	Citations   []Citation   `json:"citations,omitempty"`
	VersionID   string       `json:"version_id"`
}

// Subsection is a nested unit (subsection, paragraph, clause...) owned by
// exactly one parent.
type Subsection struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	Level       string       `json:"level"`
	Num         string       `json:"num,omitempty"`
	Heading     string       `json:"heading,omitempty"`
	Body        string       `json:"body,omitempty"`
	Reserved    bool         `json:"reserved,omitempty"`
	Subsections []Subsection `json:"subsections,omitempty"`
}

// Key returns the section's identity without the version.
func (s *Section) Key() Key {
	return Key{Title: s.Title, Section: s.Section, Subsection: s.Subsection}
}

// FullText reproduces the significant text of the section: heading and body
// of the section followed by every nested unit in document order.
func (s *Section) FullText() string {
	parts := []string{s.Heading, s.Body}
	for i := range s.Subsections {
		parts = s.Subsections[i].appendText(parts)
	}
	return joinNonEmpty(parts)
}

func (ss *Subsection) appendText(parts []string) []string {
	parts = append(parts, ss.Heading, ss.Body)
	for i := range ss.Subsections {
		parts = ss.Subsections[i].appendText(parts)
	}
	return parts
}

func joinNonEmpty(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// Find returns the nested unit with the given path, or nil.
func (s *Section) Find(path string) *Subsection {
	path = NormalizeSubsection(path)
	if path == "" {
		return nil
	}
	return findIn(s.Subsections, path)
}

func findIn(nodes []Subsection, path string) *Subsection {
	for i := range nodes {
		n := &nodes[i]
		if n.ID == path {
			return n
		}
		if Within(path, n.ID) {
			if found := findIn(n.Subsections, path); found != nil {
				return found
			}
		}
	}
	return nil
}

// Walk visits every nested unit depth-first in document order.
func (s *Section) Walk(fn func(*Subsection)) {
	var walk func([]Subsection)
	walk = func(nodes []Subsection) {
		for i := range nodes {
			fn(&nodes[i])
			walk(nodes[i].Subsections)
		}
	}
	walk(s.Subsections)
}

// Project returns a view of the section rooted at the nested unit path. The
// view keeps only citations whose source lies inside that unit.
func (s *Section) Project(path string) (*Section, bool) {
	node := s.Find(path)
	if node == nil {
		return nil, false
	}
	view := &Section{
		Title:       s.Title,
		Section:     s.Section,
		Subsection:  node.ID,
		Num:         node.Num,
		Heading:     node.Heading,
		Body:        node.Body,
		Reserved:    node.Reserved,
		Status:      s.Status,
		Subsections: node.Subsections,
		VersionID:   s.VersionID,
	}
	for _, c := range s.Citations {
		if Within(c.Source.Subsection, node.ID) {
			view.Citations = append(view.Citations, c)
		}
	}
	return view, true
}

// Nodes flattens the section into addressable text units, the section itself
// first. Used for indexing.
func (s *Section) Nodes() []Node {
	nodes := []Node{{Key: s.Key(), Heading: s.Heading, Body: s.Body}}
	s.Walk(func(ss *Subsection) {
		nodes = append(nodes, Node{
			Key:     Key{Title: s.Title, Section: s.Section, Subsection: ss.ID},
			Heading: ss.Heading,
			Body:    ss.Body,
		})
	})
	return nodes
}

// Node is a single addressable text unit of a section tree.
type Node struct {
	Key     Key
	Heading string
	Body    string
}

// Within reports whether the subsection path lies inside (or equals) parent.
func Within(path, parent string) bool {
	return path == parent || strings.HasPrefix(path, parent+"(")
}
