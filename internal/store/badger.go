package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
)

// Key layout:
//
//	src/<id>                                   source JSON
//	srcpath/<path>                             source id
//	ver/<id>                                   version JSON
//	sv/<source>/<version>                      membership
//	sec/<title>\x00<section>\x00<sub>\x00<ver> section JSON
//	title/<number>                             display name
const (
	prefixSource     = "src/"
	prefixSourcePath = "srcpath/"
	prefixVersion    = "ver/"
	prefixSourceVer  = "sv/"
	prefixSection    = "sec/"
	prefixTitle      = "title/"
)

// BadgerConfig configures the embedded backend.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	Logger     *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns production defaults for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns a config for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// BadgerStore is the embedded Backend.
type BadgerStore struct {
	db      *badger.DB
	logger  *slog.Logger
	derived *derived
	writers writers

	stopGC chan struct{}
	gcDone chan struct{}
}

var _ Backend = (*BadgerStore)(nil)

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadger opens the database and rebuilds the derived indexes from it.
func OpenBadger(ctx context.Context, cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	s := &BadgerStore{
		db:      db,
		logger:  logger.With("backend", "badger"),
		derived: newDerived(),
	}
	if err := s.Rebuild(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

func (s *BadgerStore) startGC(interval time.Duration, ratio float64) {
	s.stopGC = make(chan struct{})
	s.gcDone = make(chan struct{})
	go func() {
		defer close(s.gcDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopGC:
				return
			case <-ticker.C:
				// Repeat until there is nothing left to rewrite.
				for {
					if err := s.db.RunValueLogGC(ratio); err != nil {
						break
					}
				}
			}
		}
	}()
}

// Close stops GC and closes the database.
func (s *BadgerStore) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}

func (s *BadgerStore) view(ctx context.Context, fn func(*badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *BadgerStore) update(ctx context.Context, fn func(*badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}


func sectionPrefix(k model.Key) []byte {
	return []byte(fmt.Sprintf("%s%d\x00%s\x00%s\x00", prefixSection, k.Title, k.Section, k.Subsection))
}

func sectionKey(s *model.Section) []byte {
	return append(sectionPrefix(s.Key()), s.VersionID...)
}

func getJSON(txn *badger.Txn, key string, v interface{}) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), data)
}

func scan(txn *badger.Txn, prefix []byte, values bool, fn func(key []byte, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = values
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var val []byte
		if values {
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			val = v
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSource upserts by path. An existing source keeps its ID and
// creation time.
func (s *BadgerStore) RegisterSource(ctx context.Context, src *model.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	err := s.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixSourcePath + src.Path))
		switch {
		case err == nil:
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var existing model.Source
			if _, err := getJSON(txn, prefixSource+string(id), &existing); err != nil {
				return err
			}
			src.ID = existing.ID
			src.CreatedAt = existing.CreatedAt
		case errors.Is(err, badger.ErrKeyNotFound):
			if src.ID == "" {
				src.ID = uuid.NewString()
			}
			if src.CreatedAt.IsZero() {
				src.CreatedAt = time.Now().UTC()
			}
			if err := txn.Set([]byte(prefixSourcePath+src.Path), []byte(src.ID)); err != nil {
				return err
			}
		default:
			return err
		}
		return setJSON(txn, prefixSource+src.ID, src)
	})
	if err != nil {
		return fmt.Errorf("failed to register source %s: %w", src.Path, err)
	}
	return nil
}

func (s *BadgerStore) RegisterTitle(ctx context.Context, number int, name string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(fmt.Sprintf("%s%d", prefixTitle, number)), []byte(name))
	})
	if err != nil {
		return fmt.Errorf("failed to register title %d: %w", number, err)
	}
	return nil
}

func (s *BadgerStore) versionsOf(txn *badger.Txn, sourceID string) ([]model.Version, error) {
	var versions []model.Version
	prefix := []byte(prefixSourceVer + sourceID + "/")
	err := scan(txn, prefix, false, func(key, _ []byte) error {
		id := string(key[len(prefix):])
		var v model.Version
		ok, err := getJSON(txn, prefixVersion+id, &v)
		if err != nil {
			return err
		}
		if ok {
			versions = append(versions, v)
		}
		return nil
	})
	return versions, err
}

// StoreVersion stages the sections first, then commits the version record
// and any supersession in one transaction. Sections whose version record
// does not exist are invisible to readers, so a failure before the commit
// leaves nothing observable.
func (s *BadgerStore) StoreVersion(ctx context.Context, v *model.Version, sections []model.Section) (*StoreResult, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	defer s.writers.source(v.SourceID)()

	var plan versionPlan
	err := s.view(ctx, func(txn *badger.Txn) error {
		var src model.Source
		ok, err := getJSON(txn, prefixSource+v.SourceID, &src)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("source %s: %w", v.SourceID, model.ErrNotFound)
		}
		existing, err := s.versionsOf(txn, v.SourceID)
		if err != nil {
			return err
		}
		if plan, err = planVersion(existing, v); err != nil || plan.duplicateOf != "" {
			return err
		}
		taken, err := getJSON(txn, prefixVersion+v.ID, &model.Version{})
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: version id %s is already in use", model.ErrInvalidInput, v.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store version %s: %w", v.ID, err)
	}
	if plan.duplicateOf != "" {
		return &StoreResult{VersionID: plan.duplicateOf, Duplicate: true}, nil
	}

	staged, err := s.stage(v.ID, sections)
	if err != nil {
		s.unstage(staged)
		return nil, fmt.Errorf("failed to store sections for version %s: %w", v.ID, err)
	}

	result := &StoreResult{VersionID: v.ID, Sections: len(sections), Citations: countCitations(sections)}
	err = s.update(ctx, func(txn *badger.Txn) error {
		for i := range plan.supersede {
			prev := &plan.supersede[i]
			if err := setJSON(txn, prefixVersion+prev.ID, prev); err != nil {
				return err
			}
			result.Superseded = append(result.Superseded, prev.ID)
		}
		if err := setJSON(txn, prefixVersion+v.ID, v); err != nil {
			return err
		}
		return txn.Set([]byte(prefixSourceVer+v.SourceID+"/"+v.ID), nil)
	})
	if err != nil {
		s.unstage(staged)
		return nil, fmt.Errorf("failed to commit version %s: %w", v.ID, err)
	}

	if v.IsCurrent {
		s.derived.replace(result.Superseded, v.ID, sections)
	} else if len(result.Superseded) > 0 {
		s.derived.replace(result.Superseded, "", nil)
	}

	s.logger.Info("stored version",
		"version", v.ID, "source", v.SourceID,
		"sections", result.Sections, "citations", result.Citations,
		"superseded", result.Superseded)
	return result, nil
}

func (s *BadgerStore) stage(versionID string, sections []model.Section) ([][]byte, error) {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	var keys [][]byte
	seen := make(map[model.Key]bool, len(sections))
	for i := range sections {
		sec := &sections[i]
		sec.VersionID = versionID
		sec.Subsection = model.NormalizeSubsection(sec.Subsection)
		if seen[sec.Key()] {
			return keys, fmt.Errorf("%w: %s appears twice", model.ErrSectionImmutable, sec.Key())
		}
		seen[sec.Key()] = true

		data, err := json.Marshal(sec)
		if err != nil {
			return keys, err
		}
		key := sectionKey(sec)
		if err := wb.Set(key, data); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, wb.Flush()
}

func (s *BadgerStore) unstage(keys [][]byte) {
	if len(keys) == 0 {
		return
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			s.logger.Warn("failed to remove staged section", "key", string(k), "error", err)
			return
		}
	}
	if err := wb.Flush(); err != nil {
		s.logger.Warn("failed to remove staged sections", "error", err)
	}
}

func (s *BadgerStore) StoreSection(ctx context.Context, sec *model.Section) error {
	if sec.VersionID == "" {
		return fmt.Errorf("%w: section %s has no version", model.ErrInvalidInput, sec.Key())
	}
	sec.Subsection = model.NormalizeSubsection(sec.Subsection)
	data, err := json.Marshal(sec)
	if err != nil {
		return fmt.Errorf("failed to encode section %s: %w", sec.Key(), err)
	}

	defer s.writers.shared()()

	var (
		v       model.Version
		written bool
	)
	err = s.update(ctx, func(txn *badger.Txn) error {
		ok, err := getJSON(txn, prefixVersion+sec.VersionID, &v)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", model.ErrUnknownVersion, sec.VersionID)
		}

		key := sectionKey(sec)
		item, err := txn.Get(key)
		if err == nil {
			existing, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if bytes.Equal(existing, data) {
				return nil
			}
			return fmt.Errorf("%w: %s in version %s", model.ErrSectionImmutable, sec.Key(), sec.VersionID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		written = true
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to store section %s: %w", sec.Key(), err)
	}
	if written && v.IsCurrent {
		s.derived.addSection(sec)
	}
	return nil
}

// candidates loads every stored row for k along with its version. Rows
// whose version was never committed are skipped.
func (s *BadgerStore) candidates(txn *badger.Txn, k model.Key) ([]candidate, error) {
	var out []candidate
	versions := make(map[string]*model.Version)
	err := scan(txn, sectionPrefix(k), true, func(_, val []byte) error {
		var c candidate
		if err := json.Unmarshal(val, &c.section); err != nil {
			return err
		}
		v, ok := versions[c.section.VersionID]
		if !ok {
			v = &model.Version{}
			found, err := getJSON(txn, prefixVersion+c.section.VersionID, v)
			if err != nil {
				return err
			}
			if !found {
				v = nil
			}
			versions[c.section.VersionID] = v
		}
		if v == nil {
			return nil
		}
		c.version = *v
		out = append(out, c)
		return nil
	})
	return out, err
}

func (s *BadgerStore) GetSection(ctx context.Context, key model.Key, asOf *time.Time) (*model.Section, error) {
	key.Subsection = model.NormalizeSubsection(key.Subsection)

	var exact, parents []candidate
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		if exact, err = s.candidates(txn, key); err != nil {
			return err
		}
		if key.Subsection != "" {
			parents, err = s.candidates(txn, key.SectionRef())
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get section %s: %w", key, err)
	}
	return pickSection(key, exact, parents, asOf), nil
}

func (s *BadgerStore) Search(ctx context.Context, query string, opts search.Options) ([]model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.derived.search(query, opts), nil
}

func (s *BadgerStore) ListTitles(ctx context.Context) ([]model.TitleInfo, error) {
	names := make(map[int]string)
	err := s.view(ctx, func(txn *badger.Txn) error {
		return scan(txn, []byte(prefixTitle), true, func(key, val []byte) error {
			var n int
			if _, err := fmt.Sscanf(string(key[len(prefixTitle):]), "%d", &n); err != nil {
				return nil
			}
			names[n] = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	return s.derived.titles(names), nil
}

func (s *BadgerStore) GetReferencesTo(ctx context.Context, title int, section string) ([]model.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.derived.referencesTo(model.Key{Title: title, Section: section}), nil
}

func (s *BadgerStore) GetReferencedBy(ctx context.Context, title int, section string) ([]model.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.derived.referencedBy(model.Key{Title: title, Section: section}), nil
}

func (s *BadgerStore) ListVersions(ctx context.Context, sourceID string) ([]model.Version, error) {
	var versions []model.Version
	err := s.view(ctx, func(txn *badger.Txn) error {
		var err error
		versions, err = s.versionsOf(txn, sourceID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", sourceID, err)
	}
	sortVersions(versions)
	return versions, nil
}

func (s *BadgerStore) SectionHistory(ctx context.Context, key model.Key) ([]model.Version, error) {
	var versions []model.Version
	err := s.view(ctx, func(txn *badger.Txn) error {
		cands, err := s.candidates(txn, key.SectionRef())
		if err != nil {
			return err
		}
		for _, c := range cands {
			versions = append(versions, c.version)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", key, err)
	}
	sortVersions(versions)
	return versions, nil
}

// Rebuild re-derives search, graph and title counts from current versions.
func (s *BadgerStore) Rebuild(ctx context.Context) error {
	defer s.writers.exclusive()()

	current := make(map[string]bool)
	byVersion := make(map[string][]model.Section)
	err := s.view(ctx, func(txn *badger.Txn) error {
		err := scan(txn, []byte(prefixVersion), true, func(_, val []byte) error {
			var v model.Version
			if err := json.Unmarshal(val, &v); err != nil {
				return err
			}
			if v.IsCurrent {
				current[v.ID] = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		return scan(txn, []byte(prefixSection), true, func(key, val []byte) error {
			id := string(key[strings.LastIndexByte(string(key), 0)+1:])
			if !current[id] {
				return nil
			}
			var sec model.Section
			if err := json.Unmarshal(val, &sec); err != nil {
				return err
			}
			byVersion[id] = append(byVersion[id], sec)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to rebuild indexes: %w", err)
	}

	s.derived.reset()
	sections := 0
	for id, secs := range byVersion {
		s.derived.replace(nil, id, secs)
		sections += len(secs)
	}
	s.logger.Info("rebuilt indexes", "versions", len(byVersion), "sections", sections)
	return nil
}
