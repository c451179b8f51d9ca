package citation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jjenkins/lawarchive/internal/model"
)

// JurisdictionUS is the jurisdiction code of the United States Code.
const JurisdictionUS = "us"

// Context describes the citing provision.
type Context struct {
	Jurisdiction string
	Source       model.Key
}

// Resolution is one canonical target of a citation. A nil Target is the
// unresolved marker: the citation is kept as a dangling edge.
type Resolution struct {
	Target *model.Key
}

// Span is a raw citation found by the parser in a provision's body text.
// Href is set when the markup carried an explicit link.
type Span struct {
	Source model.Key
	Offset int
	Raw    string
	Href   string
}

// Resolver normalises raw citation text into canonical provision keys.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

var (
	itemRe     = regexp.MustCompile(item)
	parenRunRe = regexp.MustCompile(parenPath + `+`)
	chainRe    = regexp.MustCompile(`(?i:` + levelWord + `)\s+(` + parenPath + `+)`)
	hrefRe     = regexp.MustCompile(`^/([a-z]{2})/usc/t(\d+)/s([^/]+)((?:/[^/]+)*)$`)
)

var levelDepth = map[string]int{
	"subsection":   1,
	"paragraph":    2,
	"subparagraph": 3,
	"clause":       4,
	"subclause":    5,
}

// Resolve returns the targets of raw. Text that is not a recognised citation,
// or that cites another jurisdiction or an uncodified Act, yields a single
// unresolved Resolution.
func (r *Resolver) Resolve(raw string, ctx Context) []Resolution {
	kind, sm, ok := classify(strings.TrimSpace(raw))
	if !ok {
		return unresolved()
	}

	switch kind {
	case KindUSC:
		if !sameJurisdiction(ctx, JurisdictionUS) {
			return unresolved()
		}
		title, err := strconv.Atoi(sm[1])
		if err != nil {
			return unresolved()
		}
		return expandItems(title, sm[2])

	case KindSymbol:
		title := ctx.Source.Title
		if sm[2] != "" {
			title, _ = strconv.Atoi(sm[2])
		}
		return expandItems(title, sm[1])

	case KindSectionWord:
		if sm[3] != "" || sm[5] != "" {
			return unresolved()
		}
		title := ctx.Source.Title
		if sm[4] != "" {
			title, _ = strconv.Atoi(sm[4])
		}
		return expandItems(title, sm[1])

	case KindRelative:
		return resolveRelative(sm, ctx)

	case KindThisSection:
		if ctx.Source.IsZero() {
			return unresolved()
		}
		ref := ctx.Source.SectionRef()
		return []Resolution{{Target: &ref}}
	}

	return unresolved()
}

// ResolveHref resolves a USLM link such as "/us/usc/t7/s2012/a/1".
func (r *Resolver) ResolveHref(href string, ctx Context) (Resolution, bool) {
	sm := hrefRe.FindStringSubmatch(strings.TrimSpace(href))
	if sm == nil {
		return Resolution{}, false
	}
	if !sameJurisdiction(ctx, sm[1]) {
		return Resolution{}, true
	}
	title, err := strconv.Atoi(sm[2])
	if err != nil {
		return Resolution{}, false
	}
	labels := strings.FieldsFunc(sm[4], func(r rune) bool { return r == '/' })
	key := model.Key{Title: title, Section: sm[3], Subsection: model.SubsectionPath(labels...)}
	return Resolution{Target: &key}, true
}

// Citations resolves every span into citations. Spans with several targets
// ("§§ 2014, 2017") produce one citation per target at the same offset;
// duplicates of (source, target, offset) are dropped.
func (r *Resolver) Citations(spans []Span, jurisdiction string) []model.Citation {
	type dedupeKey struct {
		source model.Key
		target model.Key
		ok     bool
		offset int
	}
	seen := make(map[dedupeKey]bool)

	var out []model.Citation
	for _, sp := range spans {
		ctx := Context{Jurisdiction: jurisdiction, Source: sp.Source}

		var res []Resolution
		if sp.Href != "" {
			if hr, ok := r.ResolveHref(sp.Href, ctx); ok {
				res = []Resolution{hr}
			}
		}
		if res == nil {
			res = r.Resolve(sp.Raw, ctx)
		}

		for _, rs := range res {
			k := dedupeKey{source: sp.Source, offset: sp.Offset}
			if rs.Target != nil {
				k.target, k.ok = *rs.Target, true
			}
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, model.Citation{Source: sp.Source, Target: rs.Target, Raw: sp.Raw, Offset: sp.Offset})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return model.CompareKeys(out[i].Source, out[j].Source) < 0
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

func resolveRelative(sm []string, ctx Context) []Resolution {
	if ctx.Source.IsZero() && sm[5] == "" {
		return unresolved()
	}

	word := strings.TrimSuffix(strings.ToLower(sm[1]), "s")
	depth := levelDepth[word]

	// "clause (i) of subparagraph (A) of paragraph (1)" reads innermost first.
	var outer []string
	for _, m := range chainRe.FindAllStringSubmatch(sm[3], -1) {
		outer = append([]string{m[1]}, outer...)
		if d, ok := levelDepth[strings.ToLower(strings.Fields(m[0])[0])]; ok && d < depth {
			depth = d
		}
	}

	base := ctx.Source.SectionRef()
	var prefix []string
	switch {
	case sm[5] != "":
		base = model.Key{Title: ctx.Source.Title, Section: sm[5]}
		if sm[6] != "" {
			base.Title, _ = strconv.Atoi(sm[6])
		}
	default:
		citing := model.SplitSubsectionPath(ctx.Source.Subsection)
		if n := depth - 1; n > 0 {
			if n > len(citing) {
				n = len(citing)
			}
			prefix = citing[:n]
		}
	}

	var chain []string
	chain = append(chain, prefix...)
	for _, o := range outer {
		chain = append(chain, model.SplitSubsectionPath(o)...)
	}

	var out []Resolution
	for _, run := range parenRunRe.FindAllString(sm[2], -1) {
		labels := append(append([]string(nil), chain...), model.SplitSubsectionPath(run)...)
		key := model.Key{Title: base.Title, Section: base.Section, Subsection: model.SubsectionPath(labels...)}
		out = append(out, Resolution{Target: &key})
	}
	if len(out) == 0 {
		return unresolved()
	}
	return out
}

func expandItems(title int, list string) []Resolution {
	if title <= 0 {
		return unresolved()
	}
	var out []Resolution
	for _, it := range itemRe.FindAllString(list, -1) {
		label, sub := it, ""
		if i := strings.IndexByte(it, '('); i >= 0 {
			label, sub = it[:i], model.NormalizeSubsection(it[i:])
		}
		key := model.Key{Title: title, Section: label, Subsection: sub}
		out = append(out, Resolution{Target: &key})
	}
	if len(out) == 0 {
		return unresolved()
	}
	return out
}

func sameJurisdiction(ctx Context, code string) bool {
	return ctx.Jurisdiction == "" || strings.EqualFold(ctx.Jurisdiction, code)
}

func unresolved() []Resolution {
	return []Resolution{{}}
}
