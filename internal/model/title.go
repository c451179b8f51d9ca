package model

// TitleInfo summarises a top-level code division. It is recomputed from the
// sections of current versions and never stored as such.
type TitleInfo struct {
	Number       int    `json:"number"`
	Name         string `json:"name"`
	SectionCount int    `json:"section_count"`
}

// SearchResult is a ranked hit, built per query.
type SearchResult struct {
	Title      int     `json:"title"`
	Section    string  `json:"section"`
	Subsection string  `json:"subsection,omitempty"`
	Heading    string  `json:"heading,omitempty"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

// Key returns the provision the result points at.
func (r SearchResult) Key() Key {
	return Key{Title: r.Title, Section: r.Section, Subsection: r.Subsection}
}
