// Package store persists sources, versions and section trees, and answers
// point-in-time, full-text and citation-graph queries over them.
package store

import (
	"context"
	"time"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
)

// Backend is the storage capability set. Implementations must make a
// StoreVersion call atomic: readers observe either none or all of a
// version's sections, and the derived search and graph indexes follow.
type Backend interface {
	// RegisterSource upserts a source by path and fills in its ID.
	RegisterSource(ctx context.Context, src *model.Source) error

	// RegisterTitle records the display name of a title.
	RegisterTitle(ctx context.Context, number int, name string) error

	// StoreVersion stores a version and its section tree. A version whose
	// content hash already exists for the source is a no-op reported via
	// StoreResult.Duplicate. A new current version supersedes the previous
	// one; an ambiguous supersession fails with
	// *model.ConflictingCurrentVersionError.
	StoreVersion(ctx context.Context, v *model.Version, sections []model.Section) (*StoreResult, error)

	// StoreSection upserts one section keyed by (title, section, subsection,
	// version). Re-storing identical content is a no-op; different content
	// under the same key returns model.ErrSectionImmutable.
	StoreSection(ctx context.Context, s *model.Section) error

	// GetSection returns the section as of the given date, or from the
	// current version when asOf is nil. A miss returns nil, nil.
	GetSection(ctx context.Context, key model.Key, asOf *time.Time) (*model.Section, error)

	// Search ranks current-version text.
	Search(ctx context.Context, query string, opts search.Options) ([]model.SearchResult, error)

	// ListTitles summarises every title with at least one current section.
	ListTitles(ctx context.Context) ([]model.TitleInfo, error)

	// GetReferencesTo returns the sections whose current text cites the
	// given section.
	GetReferencesTo(ctx context.Context, title int, section string) ([]model.Key, error)

	// GetReferencedBy returns the sections cited by the given section's
	// current text.
	GetReferencedBy(ctx context.Context, title int, section string) ([]model.Key, error)

	// ListVersions returns a source's versions ordered by retrieval time.
	ListVersions(ctx context.Context, sourceID string) ([]model.Version, error)

	// SectionHistory returns every version that carries the section.
	SectionHistory(ctx context.Context, key model.Key) ([]model.Version, error)

	// Rebuild recomputes the derived indexes from stored rows.
	Rebuild(ctx context.Context) error

	Close() error
}

// StoreResult reports what StoreVersion did.
type StoreResult struct {
	VersionID  string
	Duplicate  bool
	Superseded []string
	Sections   int
	Citations  int
}
