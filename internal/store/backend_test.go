package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
)

// backendSuite exercises the Backend contract. open must return an empty
// backend.
func backendSuite(t *testing.T, open func(t *testing.T) Backend) {
	t.Run("temporal lookup", func(t *testing.T) { testTemporalLookup(t, open(t)) })
	t.Run("duplicate store", func(t *testing.T) { testDuplicateStore(t, open(t)) })
	t.Run("conflicting current", func(t *testing.T) { testConflictingCurrent(t, open(t)) })
	t.Run("supersession", func(t *testing.T) { testSupersession(t, open(t)) })
	t.Run("citation graph", func(t *testing.T) { testCitationGraph(t, open(t)) })
	t.Run("store section", func(t *testing.T) { testStoreSection(t, open(t)) })
	t.Run("subsection lookup", func(t *testing.T) { testSubsectionLookup(t, open(t)) })
	t.Run("titles and rebuild", func(t *testing.T) { testTitlesAndRebuild(t, open(t)) })
	t.Run("reused version id", func(t *testing.T) { testReusedVersionID(t, open(t)) })
	t.Run("concurrent stores", func(t *testing.T) { testConcurrentStores(t, open(t)) })
}

func registerSource(t *testing.T, b Backend, path string) *model.Source {
	t.Helper()
	src := &model.Source{Path: path, Jurisdiction: "us", DocType: "usc"}
	require.NoError(t, b.RegisterSource(context.Background(), src))
	require.NotEmpty(t, src.ID)
	return src
}

func sec(title int, num, heading, body string, cites ...model.Citation) model.Section {
	return model.Section{Title: title, Section: num, Heading: heading, Body: body, Citations: cites}
}

func citeOf(title int, from, to string) model.Citation {
	return model.Citation{
		Source: model.Key{Title: title, Section: from},
		Target: &model.Key{Title: title, Section: to},
		Raw:    "section " + to,
	}
}

func newVersion(src *model.Source, hash string, from, to *int, current bool, retrieved int) *model.Version {
	return &model.Version{
		SourceID:        src.ID,
		ContentHash:     hash,
		RetrievedAt:     at(retrieved),
		AppliesFromYear: from,
		AppliesToYear:   to,
		IsCurrent:       current,
	}
}

func testTemporalLookup(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")

	va := newVersion(src, "a", model.Year(2019), model.Year(2021), false, 2022)
	_, err := b.StoreVersion(ctx, va, []model.Section{sec(7, "2014", "Eligible households", "old rule")})
	require.NoError(t, err)

	vb := newVersion(src, "b", model.Year(2022), nil, true, 2024)
	_, err = b.StoreVersion(ctx, vb, []model.Section{sec(7, "2014", "Eligible households", "new rule")})
	require.NoError(t, err)

	key := model.Key{Title: 7, Section: "2014"}

	got, err := b.GetSection(ctx, key, ptr(at(2020)))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "old rule", got.Body)
	assert.Equal(t, va.ID, got.VersionID)

	got, err = b.GetSection(ctx, key, ptr(at(2023)))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new rule", got.Body)

	got, err = b.GetSection(ctx, key, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, vb.ID, got.VersionID)

	got, err = b.GetSection(ctx, key, ptr(at(2000)))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = b.GetSection(ctx, model.Key{Title: 7, Section: "9999"}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	history, err := b.SectionHistory(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, va.ID, history[0].ID)
	assert.Equal(t, vb.ID, history[1].ID)

	res, err := b.Search(ctx, "old", search.Options{})
	require.NoError(t, err)
	assert.Empty(t, res, "non-current versions are not searchable")
}

func testDuplicateStore(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")
	sections := []model.Section{sec(7, "2014", "Eligible households", "text")}

	first, err := b.StoreVersion(ctx, newVersion(src, "same", model.Year(2020), nil, true, 2021), sections)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)
	assert.Equal(t, 1, first.Sections)

	second, err := b.StoreVersion(ctx, newVersion(src, "same", model.Year(2020), nil, true, 2022), sections)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.VersionID, second.VersionID)

	versions, err := b.ListVersions(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)

	res, err := b.Search(ctx, "eligible", search.Options{})
	require.NoError(t, err)
	assert.Len(t, res, 1)

	again := registerSource(t, b, "us/usc/t7")
	assert.Equal(t, src.ID, again.ID)
}

func testConflictingCurrent(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")

	_, err := b.StoreVersion(ctx, newVersion(src, "new", model.Year(2022), nil, true, 2024),
		[]model.Section{sec(7, "2014", "", "new")})
	require.NoError(t, err)

	_, err = b.StoreVersion(ctx, newVersion(src, "stale", model.Year(2020), nil, true, 2023),
		[]model.Section{sec(7, "2014", "", "stale")})
	var conflict *model.ConflictingCurrentVersionError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, src.ID, conflict.SourceID)

	got, err := b.GetSection(ctx, model.Key{Title: 7, Section: "2014"}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Body)

	versions, err := b.ListVersions(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func testSupersession(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")

	va := newVersion(src, "a", model.Year(2020), nil, true, 2021)
	_, err := b.StoreVersion(ctx, va, []model.Section{
		sec(7, "2014", "Eligibility", "alpha terms", citeOf(7, "2014", "2012")),
	})
	require.NoError(t, err)

	vb := newVersion(src, "b", model.Year(2023), nil, true, 2024)
	res, err := b.StoreVersion(ctx, vb, []model.Section{
		sec(7, "2014", "Eligibility", "beta terms", citeOf(7, "2014", "2020")),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{va.ID}, res.Superseded)

	versions, err := b.ListVersions(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.False(t, versions[0].IsCurrent)
	require.NotNil(t, versions[0].AppliesToYear)
	assert.Equal(t, 2022, *versions[0].AppliesToYear)
	assert.True(t, versions[1].IsCurrent)

	hits, err := b.Search(ctx, "alpha", search.Options{})
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = b.Search(ctx, "beta", search.Options{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	refs, err := b.GetReferencesTo(ctx, 7, "2012")
	require.NoError(t, err)
	assert.Empty(t, refs)
	refs, err = b.GetReferencesTo(ctx, 7, "2020")
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Title: 7, Section: "2014"}}, refs)

	got, err := b.GetSection(ctx, model.Key{Title: 7, Section: "2014"}, ptr(at(2021)))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alpha terms", got.Body)
}

func testCitationGraph(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")

	dangling := model.Citation{Source: model.Key{Title: 7, Section: "2014"}, Raw: "Public Law 88-525"}
	_, err := b.StoreVersion(ctx, newVersion(src, "a", nil, nil, true, 2024), []model.Section{
		sec(7, "2012", "Definitions", "terms"),
		sec(7, "2014", "Eligible households", "as defined in section 2012",
			citeOf(7, "2014", "2012"), citeOf(7, "2014", "2014"), dangling),
		sec(7, "2015", "Eligibility disqualifications", "see section 2012 and 2014",
			citeOf(7, "2015", "2012"), citeOf(7, "2015", "2014")),
	})
	require.NoError(t, err)

	to, err := b.GetReferencesTo(ctx, 7, "2012")
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Title: 7, Section: "2014"}, {Title: 7, Section: "2015"}}, to)

	by, err := b.GetReferencedBy(ctx, 7, "2014")
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Title: 7, Section: "2012"}}, by)

	// Every reverse edge has a matching forward edge.
	for _, k := range to {
		fwd, err := b.GetReferencedBy(ctx, k.Title, k.Section)
		require.NoError(t, err)
		assert.Contains(t, fwd, model.Key{Title: 7, Section: "2012"})
	}

	got, err := b.GetSection(ctx, model.Key{Title: 7, Section: "2014"}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Citations, 3)
	assert.False(t, got.Citations[2].Resolved())
}

func testStoreSection(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")

	res, err := b.StoreVersion(ctx, newVersion(src, "a", nil, nil, true, 2024), nil)
	require.NoError(t, err)

	s := sec(7, "2025", "State plans", "plans text")
	s.VersionID = res.VersionID
	require.NoError(t, b.StoreSection(ctx, &s))

	same := s
	require.NoError(t, b.StoreSection(ctx, &same))

	changed := s
	changed.Body = "edited"
	err = b.StoreSection(ctx, &changed)
	assert.True(t, errors.Is(err, model.ErrSectionImmutable), "got %v", err)

	orphan := sec(7, "2026", "", "x")
	orphan.VersionID = "missing"
	err = b.StoreSection(ctx, &orphan)
	assert.True(t, errors.Is(err, model.ErrUnknownVersion), "got %v", err)

	hits, err := b.Search(ctx, "plans", search.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "2025", hits[0].Section)
}

func testSubsectionLookup(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")

	s := sec(7, "2014", "Eligible households", "chapeau")
	s.Subsections = []model.Subsection{{
		ID: "(a)", Label: "a", Level: "subsection", Body: "household text",
		Subsections: []model.Subsection{{ID: "(a)(1)", Label: "1", Level: "paragraph", Body: "first paragraph"}},
	}}
	s.Citations = []model.Citation{
		{Source: model.Key{Title: 7, Section: "2014", Subsection: "(a)(1)"}, Target: &model.Key{Title: 7, Section: "2012"}, Raw: "section 2012"},
		{Source: model.Key{Title: 7, Section: "2014"}, Target: &model.Key{Title: 7, Section: "2020"}, Raw: "section 2020"},
	}
	_, err := b.StoreVersion(ctx, newVersion(src, "a", nil, nil, true, 2024), []model.Section{s})
	require.NoError(t, err)

	got, err := b.GetSection(ctx, model.Key{Title: 7, Section: "2014", Subsection: "a/1"}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "(a)(1)", got.Subsection)
	assert.Equal(t, "first paragraph", got.Body)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "2012", got.Citations[0].Target.Section)

	got, err = b.GetSection(ctx, model.Key{Title: 7, Section: "2014", Subsection: "(b)"}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	hits, err := b.Search(ctx, "paragraph", search.Options{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "(a)(1)", hits[0].Subsection)
}

func testTitlesAndRebuild(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.RegisterTitle(ctx, 7, "Agriculture"))

	t7 := registerSource(t, b, "us/usc/t7")
	_, err := b.StoreVersion(ctx, newVersion(t7, "a", nil, nil, true, 2024), []model.Section{
		sec(7, "2012", "Definitions", "terms", citeOf(7, "2012", "2014")),
		sec(7, "2014", "Eligible households", "households"),
	})
	require.NoError(t, err)

	t42 := registerSource(t, b, "us/usc/t42")
	_, err = b.StoreVersion(ctx, newVersion(t42, "b", nil, nil, true, 2024), []model.Section{
		sec(42, "1395", "Prohibition", "interference"),
	})
	require.NoError(t, err)

	want := []model.TitleInfo{
		{Number: 7, Name: "Agriculture", SectionCount: 2},
		{Number: 42, SectionCount: 1},
	}
	titles, err := b.ListTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, titles)

	require.NoError(t, b.Rebuild(ctx))

	titles, err = b.ListTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, titles)

	hits, err := b.Search(ctx, "households", search.Options{Title: 7})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	refs, err := b.GetReferencesTo(ctx, 7, "2014")
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Title: 7, Section: "2012"}}, refs)
}

func testReusedVersionID(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")

	first := newVersion(src, "a", model.Year(2020), nil, true, 2021)
	first.ID = "v1"
	_, err := b.StoreVersion(ctx, first, []model.Section{sec(7, "2014", "", "first text")})
	require.NoError(t, err)

	again := newVersion(src, "a", model.Year(2020), nil, true, 2022)
	again.ID = "v1"
	res, err := b.StoreVersion(ctx, again, []model.Section{sec(7, "2014", "", "first text")})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	clash := newVersion(src, "b", model.Year(2023), nil, true, 2024)
	clash.ID = "v1"
	_, err = b.StoreVersion(ctx, clash, []model.Section{sec(7, "2014", "", "second text")})
	assert.True(t, errors.Is(err, model.ErrInvalidInput), "got %v", err)

	other := registerSource(t, b, "us/usc/t42")
	elsewhere := newVersion(other, "c", nil, nil, true, 2024)
	elsewhere.ID = "v1"
	_, err = b.StoreVersion(ctx, elsewhere, []model.Section{sec(42, "1395", "", "other text")})
	assert.True(t, errors.Is(err, model.ErrInvalidInput), "got %v", err)

	versions, err := b.ListVersions(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "a", versions[0].ContentHash)
	assert.True(t, versions[0].IsCurrent)
	assert.Nil(t, versions[0].AppliesToYear)

	got, err := b.GetSection(ctx, model.Key{Title: 7, Section: "2014"}, ptr(at(2021)))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first text", got.Body)

	hits, err := b.Search(ctx, "second", search.Options{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testConcurrentStores(t *testing.T, b Backend) {
	ctx := context.Background()
	src := registerSource(t, b, "us/usc/t7")

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := newVersion(src, fmt.Sprintf("rev-%d", i), model.Year(2010+i), nil, true, 2010+i)
			_, errs[i] = b.StoreVersion(ctx, v, []model.Section{
				sec(7, "2014", "", fmt.Sprintf("revision %d", i), citeOf(7, "2014", fmt.Sprint(3000+i))),
			})
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, b.Rebuild(ctx))
	}()
	wg.Wait()

	stored := 0
	for _, err := range errs {
		if err == nil {
			stored++
			continue
		}
		// A revision that lands after a newer one is refused.
		var conflict *model.ConflictingCurrentVersionError
		assert.True(t, errors.As(err, &conflict), "got %v", err)
	}
	require.NotZero(t, stored)

	versions, err := b.ListVersions(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, versions, stored)

	var current *model.Version
	for i := range versions {
		if versions[i].IsCurrent {
			require.Nil(t, current, "more than one current version")
			current = &versions[i]
		}
	}
	require.NotNil(t, current)

	got, err := b.GetSection(ctx, model.Key{Title: 7, Section: "2014"}, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, current.ID, got.VersionID)

	var rev int
	_, err = fmt.Sscanf(current.ContentHash, "rev-%d", &rev)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("revision %d", rev), got.Body)

	by, err := b.GetReferencedBy(ctx, 7, "2014")
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Title: 7, Section: fmt.Sprint(3000 + rev)}}, by)

	hits, err := b.Search(ctx, "revision", search.Options{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	titles, err := b.ListTitles(ctx)
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, 1, titles[0].SectionCount)
}
