package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
)

func openBadger(t *testing.T) Backend {
	t.Helper()
	s, err := OpenBadger(context.Background(), InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerBackend(t *testing.T) {
	backendSuite(t, openBadger)
}

func TestBadgerReopenRebuildsIndexes(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := DefaultBadgerConfig(dir)
	cfg.SyncWrites = false
	cfg.GCInterval = 0

	s, err := OpenBadger(ctx, cfg)
	require.NoError(t, err)
	src := registerSource(t, s, "us/usc/t7")
	_, err = s.StoreVersion(ctx, newVersion(src, "a", nil, nil, true, 2024), []model.Section{
		sec(7, "2014", "Eligible households", "as defined in section 2012", citeOf(7, "2014", "2012")),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenBadger(ctx, cfg)
	require.NoError(t, err)
	defer s.Close()

	refs, err := s.GetReferencesTo(ctx, 7, "2012")
	require.NoError(t, err)
	assert.Equal(t, []model.Key{{Title: 7, Section: "2014"}}, refs)

	hits, err := s.Search(ctx, "households", search.Options{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestBadgerUnstagedSectionsAreInvisible(t *testing.T) {
	ctx := context.Background()
	s := openBadger(t).(*BadgerStore)
	src := registerSource(t, s, "us/usc/t7")

	// Two rows under one key make staging fail after the first write.
	_, err := s.StoreVersion(ctx, newVersion(src, "a", nil, nil, true, 2024), []model.Section{
		sec(7, "2014", "", "first"),
		sec(7, "2014", "", "second"),
	})
	require.Error(t, err)

	got, err := s.GetSection(ctx, model.Key{Title: 7, Section: "2014"}, nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	versions, err := s.ListVersions(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)
}
