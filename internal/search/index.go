package search

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/jjenkins/lawarchive/internal/model"
)

const (
	// DefaultLimit applies when a query asks for no limit.
	DefaultLimit = 20
	// MaxLimit caps a single result page.
	MaxLimit = 100
	// HeadingMatchBoost is added per query term found in a heading. It
	// exceeds the largest single-occurrence body contribution (1.0), so a
	// heading match never ranks below an equivalent body-only match.
	HeadingMatchBoost = 1.5

	snippetBefore = 60
	snippetAfter  = 100
)

// Document is one addressable text unit.
type Document struct {
	Key     model.Key
	Heading string
	Body    string
}

// Options scope a query.
type Options struct {
	Title int
	Limit int
}

type entry struct {
	group    string
	doc      Document
	bodyLen  int
	headings map[string]bool
}

// Index is an in-memory inverted index. Documents are added in groups (one
// group per stored version) so a superseded version can be withdrawn whole.
type Index struct {
	mu       sync.RWMutex
	next     int
	docs     map[int]*entry
	postings map[string]map[int]int
	groups   map[string][]int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	idx := &Index{}
	idx.Reset()
	return idx
}

// Reset drops every document.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.docs = make(map[int]*entry)
	idx.postings = make(map[string]map[int]int)
	idx.groups = make(map[string][]int)
}

// AddGroup indexes docs under group, replacing the group's previous documents.
func (idx *Index) AddGroup(group string, docs []Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addLocked(group, docs)
}

// RemoveGroup withdraws a group's documents.
func (idx *Index) RemoveGroup(group string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(group)
}

// Swap removes groups and adds one group atomically with respect to readers.
func (idx *Index) Swap(remove []string, group string, docs []Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, g := range remove {
		idx.removeLocked(g)
	}
	if group != "" {
		idx.addLocked(group, docs)
	}
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

func (idx *Index) addLocked(group string, docs []Document) {
	idx.removeLocked(group)

	ids := make([]int, 0, len(docs))
	for _, d := range docs {
		id := idx.next
		idx.next++

		body := Tokenize(d.Body)
		e := &entry{group: group, doc: d, bodyLen: len(body), headings: make(map[string]bool)}
		for _, term := range Tokenize(d.Heading) {
			e.headings[term] = true
			idx.post(term, id, 0)
		}
		for _, term := range body {
			idx.post(term, id, 1)
		}
		if e.bodyLen == 0 && len(e.headings) == 0 {
			continue
		}
		idx.docs[id] = e
		ids = append(ids, id)
	}
	idx.groups[group] = ids
}

func (idx *Index) post(term string, id, n int) {
	p, ok := idx.postings[term]
	if !ok {
		p = make(map[int]int)
		idx.postings[term] = p
	}
	p[id] += n
}

func (idx *Index) removeLocked(group string) {
	ids, ok := idx.groups[group]
	if !ok {
		return
	}
	for _, id := range ids {
		e := idx.docs[id]
		terms := make(map[string]bool, len(e.headings))
		for t := range e.headings {
			terms[t] = true
		}
		for _, t := range Tokenize(e.doc.Body) {
			terms[t] = true
		}
		for t := range terms {
			if p := idx.postings[t]; p != nil {
				delete(p, id)
				if len(p) == 0 {
					delete(idx.postings, t)
				}
			}
		}
		delete(idx.docs, id)
	}
	delete(idx.groups, group)
}

type hit struct {
	id    int
	score float64
}

// Search ranks documents matching any query term. Results are unique per
// provision key and ordered by score descending, then by key.
func (idx *Index) Search(query string, opts Options) []model.SearchResult {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	terms := uniqueTerms(Tokenize(query))
	if len(terms) == 0 {
		return []model.SearchResult{}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	scores := make(map[int]float64)
	for _, term := range terms {
		for id, tf := range idx.postings[term] {
			e := idx.docs[id]
			if opts.Title != 0 && e.doc.Key.Title != opts.Title {
				continue
			}
			var s float64
			if tf > 0 && e.bodyLen > 0 {
				s += float64(tf) / math.Sqrt(float64(e.bodyLen))
			}
			if e.headings[term] {
				s += HeadingMatchBoost
			}
			scores[id] += s
		}
	}

	best := make(map[model.Key]hit)
	for id, s := range scores {
		k := idx.docs[id].doc.Key
		cur, ok := best[k]
		if !ok || s > cur.score || (s == cur.score && idx.docs[id].group < idx.docs[cur.id].group) {
			best[k] = hit{id: id, score: s}
		}
	}

	hits := make([]hit, 0, len(best))
	for _, h := range best {
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return idx.docs[hits[i].id].doc.Key.Less(idx.docs[hits[j].id].doc.Key)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	termSet := make(map[string]bool, len(terms))
	for _, t := range terms {
		termSet[t] = true
	}

	results := make([]model.SearchResult, len(hits))
	for i, h := range hits {
		d := idx.docs[h.id].doc
		results[i] = model.SearchResult{
			Title:      d.Key.Title,
			Section:    d.Key.Section,
			Subsection: d.Key.Subsection,
			Heading:    d.Heading,
			Snippet:    snippet(d, termSet),
			Score:      h.score,
		}
	}
	return results
}

func uniqueTerms(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func snippet(d Document, terms map[string]bool) string {
	for _, text := range []string{d.Body, d.Heading} {
		for _, tok := range tokenizeSpans(text) {
			if terms[tok.Term] {
				return window(text, tok.Start, tok.End)
			}
		}
	}
	return window(d.Body, 0, 0)
}

func window(text string, start, end int) string {
	runes := []rune(text)
	from := start - snippetBefore
	to := end + snippetAfter
	prefix, suffix := "…", "…"
	if from <= 0 {
		from, prefix = 0, ""
	}
	if to >= len(runes) {
		to, suffix = len(runes), ""
	}
	return prefix + strings.TrimSpace(string(runes[from:to])) + suffix
}
