package store

import (
	"sort"
	"sync"

	"github.com/jjenkins/lawarchive/internal/citation"
	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
)

// derived holds the indexes computed from current-version sections. Both
// backends keep one and rebuild it from their rows on open.
type derived struct {
	mu     sync.RWMutex
	index  *search.Index
	graph  *citation.Graph
	groups map[string][]string
	keys   map[string][]model.Key
	counts map[int]map[string]int
}

func newDerived() *derived {
	d := &derived{
		index: search.NewIndex(),
		graph: citation.NewGraph(),
	}
	d.reset()
	return d
}

func (d *derived) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.index.Reset()
	d.graph.Reset()
	d.groups = make(map[string][]string)
	d.keys = make(map[string][]model.Key)
	d.counts = make(map[int]map[string]int)
}

// replace withdraws the given versions and indexes versionID's sections in
// one critical section.
func (d *derived) replace(remove []string, versionID string, sections []model.Section) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var groups []string
	for _, v := range remove {
		groups = append(groups, d.groups[v]...)
		d.forgetLocked(v)
	}

	var (
		docs  []search.Document
		cites []model.Citation
		keys  []model.Key
	)
	for i := range sections {
		docs = append(docs, documents(&sections[i])...)
		cites = append(cites, sections[i].Citations...)
		keys = append(keys, sections[i].Key())
	}
	d.index.Swap(groups, versionID, docs)
	d.graph.Swap(groups, versionID, cites)
	if versionID != "" {
		d.trackLocked(versionID, versionID, keys)
	}
}

// addSection indexes a single section stored into an already current version.
func (d *derived) addSection(s *model.Section) {
	d.mu.Lock()
	defer d.mu.Unlock()
	group := s.VersionID + "\x00" + s.Key().String()
	d.index.AddGroup(group, documents(s))
	d.graph.AddGroup(group, s.Citations)
	d.trackLocked(s.VersionID, group, []model.Key{s.Key()})
}

func (d *derived) trackLocked(versionID, group string, keys []model.Key) {
	d.groups[versionID] = append(d.groups[versionID], group)
	for _, k := range keys {
		if k.Subsection != "" {
			continue
		}
		m, ok := d.counts[k.Title]
		if !ok {
			m = make(map[string]int)
			d.counts[k.Title] = m
		}
		m[k.Section]++
		d.keys[versionID] = append(d.keys[versionID], k)
	}
}

func (d *derived) forgetLocked(versionID string) {
	for _, k := range d.keys[versionID] {
		m := d.counts[k.Title]
		if m[k.Section]--; m[k.Section] <= 0 {
			delete(m, k.Section)
		}
		if len(m) == 0 {
			delete(d.counts, k.Title)
		}
	}
	for _, g := range d.groups[versionID] {
		if g == versionID {
			continue
		}
		d.index.RemoveGroup(g)
		d.graph.RemoveGroup(g)
	}
	delete(d.groups, versionID)
	delete(d.keys, versionID)
}

func (d *derived) search(query string, opts search.Options) []model.SearchResult {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.index.Search(query, opts)
}

func (d *derived) referencesTo(k model.Key) []model.Key {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.graph.ReferencesTo(k)
}

func (d *derived) referencedBy(k model.Key) []model.Key {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.graph.ReferencedBy(k)
}

// titles combines per-title section counts with the recorded names.
func (d *derived) titles(names map[int]string) []model.TitleInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.TitleInfo, 0, len(d.counts))
	for n, sections := range d.counts {
		out = append(out, model.TitleInfo{Number: n, Name: names[n], SectionCount: len(sections)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func documents(s *model.Section) []search.Document {
	nodes := s.Nodes()
	docs := make([]search.Document, len(nodes))
	for i, n := range nodes {
		docs[i] = search.Document{Key: n.Key, Heading: n.Heading, Body: n.Body}
	}
	return docs
}

func countCitations(sections []model.Section) int {
	n := 0
	for i := range sections {
		n += len(sections[i].Citations)
	}
	return n
}

// writers orders the commits that feed derived. Stores of one source run
// one at a time, and a rebuild excludes every store so its snapshot cannot
// overwrite a newer commit.
type writers struct {
	rebuild sync.RWMutex
	sources sync.Map
}

// source holds the lock for one source until the returned func is called.
func (w *writers) source(id string) (unlock func()) {
	w.rebuild.RLock()
	v, _ := w.sources.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return func() {
		mu.Unlock()
		w.rebuild.RUnlock()
	}
}

// shared admits a write that touches no version state, such as a section
// added to an existing version.
func (w *writers) shared() (unlock func()) {
	w.rebuild.RLock()
	return w.rebuild.RUnlock
}

func (w *writers) exclusive() (unlock func()) {
	w.rebuild.Lock()
	return w.rebuild.Unlock
}
