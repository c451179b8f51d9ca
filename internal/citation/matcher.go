// Package citation recognises cross-references in statute text, resolves
// them to canonical provision keys and maintains the derived citation graph.
package citation

import (
	"regexp"
	"sort"
)

// Kind classifies a recognised citation form.
type Kind int

const (
	KindUSC Kind = iota
	KindCFR
	KindPublicLaw
	KindRelative
	KindSymbol
	KindSectionWord
	KindThisSection
)

func (k Kind) String() string {
	switch k {
	case KindUSC:
		return "usc"
	case KindCFR:
		return "cfr"
	case KindPublicLaw:
		return "public_law"
	case KindRelative:
		return "relative"
	case KindSymbol:
		return "symbol"
	case KindSectionWord:
		return "section"
	case KindThisSection:
		return "this_section"
	default:
		return "unknown"
	}
}

const (
	sectionLabel = `\d+[A-Za-z0-9]*(?:-\d+[A-Za-z0-9]*)?`
	parenPath    = `(?:\([A-Za-z0-9]+\))`
	item         = sectionLabel + parenPath + `*`
	listSep      = `(?:\s*,\s*(?:and\s+|or\s+)?|\s+(?:and|or|through|to)\s+)`
	itemList     = item + `(?:` + listSep + item + `)*`
	pathList     = parenPath + `+(?:` + listSep + parenPath + `+)*`
	levelWord    = `(?:subsection|paragraph|subparagraph|clause|subclause)`
)

// Patterns are listed in priority order; when two matches start at the same
// offset the longer one wins, then the earlier pattern.
var patterns = []struct {
	kind Kind
	expr string
}{
	{KindUSC, `(\d+)\s*U\.?\s?S\.?\s?C\.?(?:\s*§§?)?\s*(` + itemList + `)`},
	{KindCFR, `(\d+)\s*C\.?\s?F\.?\s?R\.?(?:\s*(?:§§?|[Pp]art))?\s*(\d+(?:\.\d+)*)`},
	{KindPublicLaw, `(?:Public\s+Law|Pub\.\s*L\.)\s+(?:No\.\s*)?(\d+)[-–](\d+)`},
	{KindRelative, `(?i:\b(` + levelWord + `s?))\s+(` + pathList + `)` +
		`((?:\s+of\s+(?i:` + levelWord + `)\s+` + parenPath + `+)*)` +
		`(?:\s+of\s+(?:(?i:this\s+(section|subsection|paragraph))|(?i:section)\s+(` + sectionLabel + `)(?:\s+of\s+(?:this\s+title|title\s+(\d+)))?))?`},
	{KindSymbol, `§§?\s*(` + itemList + `)(?:\s+of\s+(?:this\s+title|title\s+(\d+)))?`},
	{KindSectionWord, `(?i:\bsections?)\s+(` + itemList + `)` +
		`(?:\s+of\s+(?:(this\s+(?:title|chapter|subchapter|part))|(this\s+Act)|title\s+(\d+)|(the\s+[A-Z][^,;()]*?Act(?:\s+of\s+\d{4})?)))?`},
	{KindThisSection, `(?i:\bthis\s+section\b)`},
}

type compiled struct {
	kind     Kind
	find     *regexp.Regexp
	anchored *regexp.Regexp
}

var compiledPatterns = func() []compiled {
	out := make([]compiled, len(patterns))
	for i, p := range patterns {
		out[i] = compiled{
			kind:     p.kind,
			find:     regexp.MustCompile(p.expr),
			anchored: regexp.MustCompile(`^(?:` + p.expr + `)$`),
		}
	}
	return out
}()

// Match is a recognised citation span within a text.
type Match struct {
	Start int
	End   int
	Raw   string
	Kind  Kind
}

// Matcher finds citation spans in prose. It holds no state and is safe for
// concurrent use.
type Matcher struct{}

// NewMatcher creates a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Find returns the non-overlapping citation spans in text ordered by offset.
func (m *Matcher) Find(text string) []Match {
	var all []Match
	for prio, p := range compiledPatterns {
		for _, loc := range p.find.FindAllStringIndex(text, -1) {
			all = append(all, Match{Start: loc[0], End: loc[1], Raw: text[loc[0]:loc[1]], Kind: compiledPatterns[prio].kind})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End-all[i].Start > all[j].End-all[j].Start
	})

	var out []Match
	end := -1
	for _, m := range all {
		if m.Start < end {
			continue
		}
		out = append(out, m)
		end = m.End
	}
	return out
}

// classify returns the kind and submatches of raw when it is exactly one
// recognised citation.
func classify(raw string) (Kind, []string, bool) {
	for _, p := range compiledPatterns {
		if sm := p.anchored.FindStringSubmatch(raw); sm != nil {
			return p.kind, sm, true
		}
	}
	return 0, nil, false
}
