package citation

import (
	"testing"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func targets(res []Resolution) []*model.Key {
	out := make([]*model.Key, len(res))
	for i, r := range res {
		out[i] = r.Target
	}
	return out
}

func key(title int, section, sub string) *model.Key {
	return &model.Key{Title: title, Section: section, Subsection: sub}
}

func TestResolverResolve(t *testing.T) {
	r := NewResolver()
	ctx := Context{Jurisdiction: "us", Source: model.Key{Title: 7, Section: "2014", Subsection: "(c)(2)"}}

	tests := []struct {
		name string
		raw  string
		want []*model.Key
	}{
		{"usc", "7 U.S.C. 2014(a)", []*model.Key{key(7, "2014", "(a)")}},
		{"usc other title", "26 U.S.C. 32", []*model.Key{key(26, "32", "")}},
		{"symbol list expands", "§§ 2014, 2017", []*model.Key{key(7, "2014", ""), key(7, "2017", "")}},
		{"symbol of another title", "§ 5 of title 26", []*model.Key{key(26, "5", "")}},
		{"section of this title", "section 2012 of this title", []*model.Key{key(7, "2012", "")}},
		{"sections through", "sections 2014 through 2017", []*model.Key{key(7, "2014", ""), key(7, "2017", "")}},
		{"named act stays unresolved", "section 3 of the Food and Nutrition Act of 2008", []*model.Key{nil}},
		{"this Act stays unresolved", "section 5 of this Act", []*model.Key{nil}},
		{"this section", "this section", []*model.Key{key(7, "2014", "")}},
		{"subsection of this section", "subsection (a) of this section", []*model.Key{key(7, "2014", "(a)")}},
		{"paragraph of subsection", "paragraph (2) of subsection (b)", []*model.Key{key(7, "2014", "(b)(2)")}},
		{"paragraph relative to citing subsection", "paragraph (1)", []*model.Key{key(7, "2014", "(c)(1)")}},
		{"subsections list", "subsections (d) and (e)", []*model.Key{key(7, "2014", "(d)"), key(7, "2014", "(e)")}},
		{"subsection of other section", "subsection (k) of section 2015", []*model.Key{key(7, "2015", "(k)")}},
		{"public law unresolved", "Public Law 95-113", []*model.Key{nil}},
		{"cfr unresolved", "7 C.F.R. 273.9", []*model.Key{nil}},
		{"not a citation", "the Secretary", []*model.Key{nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, targets(r.Resolve(tt.raw, ctx)))
		})
	}
}

func TestResolverForeignJurisdiction(t *testing.T) {
	r := NewResolver()
	ctx := Context{Jurisdiction: "ca", Source: model.Key{Title: 1, Section: "10"}}
	assert.Equal(t, []*model.Key{nil}, targets(r.Resolve("7 U.S.C. 2014", ctx)))
}

func TestResolverResolveHref(t *testing.T) {
	r := NewResolver()
	ctx := Context{Jurisdiction: "us"}

	res, ok := r.ResolveHref("/us/usc/t7/s2012/a/1", ctx)
	require.True(t, ok)
	assert.Equal(t, key(7, "2012", "(a)(1)"), res.Target)

	_, ok = r.ResolveHref("/us/pl/95/113", ctx)
	assert.False(t, ok)
}

func TestResolverCitations(t *testing.T) {
	r := NewResolver()
	src := model.Key{Title: 7, Section: "2014", Subsection: "(a)"}

	spans := []Span{
		{Source: src, Offset: 40, Raw: "§§ 2015, 2017"},
		{Source: src, Offset: 10, Raw: "section 2012 of this title", Href: "/us/usc/t7/s2012"},
		{Source: src, Offset: 10, Raw: "section 2012 of this title", Href: "/us/usc/t7/s2012"},
		{Source: src, Offset: 70, Raw: "Public Law 95-113"},
		{Source: src, Offset: 90, Raw: "section 2012"},
	}

	got := r.Citations(spans, "us")
	require.Len(t, got, 5)

	assert.Equal(t, 10, got[0].Offset)
	assert.Equal(t, key(7, "2012", ""), got[0].Target)
	assert.Equal(t, key(7, "2015", ""), got[1].Target)
	assert.Equal(t, key(7, "2017", ""), got[2].Target)
	assert.Equal(t, 40, got[2].Offset)
	assert.Nil(t, got[3].Target)
	assert.Equal(t, "Public Law 95-113", got[3].Raw)
	assert.Equal(t, 90, got[4].Offset)
	assert.Equal(t, key(7, "2012", ""), got[4].Target)
}
