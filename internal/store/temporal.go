package store

import (
	"sort"
	"time"

	"github.com/jjenkins/lawarchive/internal/model"
)

// versionPlan is the outcome of checking an incoming version against the
// versions already stored for its source.
type versionPlan struct {
	duplicateOf string
	supersede   []model.Version
}

// planVersion decides how an incoming version fits a source's history.
//
// A matching content hash makes the store a no-op. A current incoming
// version supersedes the existing current one only when it is not older
// (retrieved no earlier, window starting no earlier); otherwise both would
// claim to be current and the store is rejected.
func planVersion(existing []model.Version, in *model.Version) (versionPlan, error) {
	var plan versionPlan
	var current []model.Version
	for _, e := range existing {
		if e.ContentHash == in.ContentHash {
			plan.duplicateOf = e.ID
			return plan, nil
		}
		if e.IsCurrent {
			current = append(current, e)
		}
	}

	if len(current) > 1 {
		ids := make([]string, len(current))
		for i, c := range current {
			ids[i] = c.ID
		}
		sort.Strings(ids)
		return plan, &model.ConflictingCurrentVersionError{SourceID: in.SourceID, VersionIDs: ids}
	}

	if !in.IsCurrent || len(current) == 0 {
		return plan, nil
	}

	prev := current[0]
	if !supersedes(in, &prev) {
		return plan, &model.ConflictingCurrentVersionError{
			SourceID:   in.SourceID,
			VersionIDs: []string{prev.ID, in.ID},
		}
	}

	prev.IsCurrent = false
	if prev.AppliesToYear == nil {
		switch {
		case in.AppliesFromYear != nil && (prev.AppliesFromYear == nil || *in.AppliesFromYear-1 >= *prev.AppliesFromYear):
			prev.AppliesToYear = model.Year(*in.AppliesFromYear - 1)
		default:
			prev.Superseded = true
		}
	}
	plan.supersede = append(plan.supersede, prev)
	return plan, nil
}

func supersedes(in, prev *model.Version) bool {
	if in.RetrievedAt.Before(prev.RetrievedAt) {
		return false
	}
	if in.AppliesFromYear != nil && prev.AppliesFromYear != nil && *in.AppliesFromYear < *prev.AppliesFromYear {
		return false
	}
	return true
}

// selectVersion picks the version a lookup should read from. With asOf set
// it is the version whose window covers asOf's year; otherwise the current
// version. Overlaps resolve to the most recently retrieved version, then to
// one that has not been superseded, then to the smallest ID. Returns -1 when
// nothing qualifies.
func selectVersion(versions []model.Version, asOf *time.Time) int {
	best := -1
	for i := range versions {
		v := &versions[i]
		if asOf != nil {
			if !v.Covers(asOf.Year()) {
				continue
			}
		} else if !v.IsCurrent {
			continue
		}
		if best < 0 || newer(v, &versions[best]) {
			best = i
		}
	}
	return best
}

func newer(a, b *model.Version) bool {
	if !a.RetrievedAt.Equal(b.RetrievedAt) {
		return a.RetrievedAt.After(b.RetrievedAt)
	}
	if a.Superseded != b.Superseded {
		return !a.Superseded
	}
	return a.ID < b.ID
}

func sortVersions(versions []model.Version) {
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].RetrievedAt.Equal(versions[j].RetrievedAt) {
			return versions[i].RetrievedAt.Before(versions[j].RetrievedAt)
		}
		return versions[i].ID < versions[j].ID
	})
}

// candidate is a stored section row paired with its version.
type candidate struct {
	section model.Section
	version model.Version
}

// pickSection chooses the row a lookup of key returns. For a subsection key,
// rows stored under the exact key win; other versions contribute a
// projection of their enclosing section row.
func pickSection(key model.Key, exact, parents []candidate, asOf *time.Time) *model.Section {
	cands := append([]candidate(nil), exact...)
	if key.Subsection != "" {
		have := make(map[string]bool, len(exact))
		for _, c := range exact {
			have[c.version.ID] = true
		}
		for _, p := range parents {
			if have[p.version.ID] {
				continue
			}
			if view, ok := p.section.Project(key.Subsection); ok {
				cands = append(cands, candidate{section: *view, version: p.version})
			}
		}
	}

	versions := make([]model.Version, len(cands))
	for i, c := range cands {
		versions[i] = c.version
	}
	i := selectVersion(versions, asOf)
	if i < 0 {
		return nil
	}
	return &cands[i].section
}
