package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
)

const joinedVersionColumns = `
	v.id, v.source_id, v.content_hash, v.storage_key, v.file_size_bytes, v.mime_type,
	v.published_at, v.retrieved_at, v.applies_from_year, v.applies_to_year,
	v.is_current, v.superseded
`

// versionsChannel carries "<instance> <version id>" for every commit that
// changes current-version content, so peers sharing the database can
// rebuild their derived indexes.
const versionsChannel = "lawarchive_versions"

// PostgresStore is the relational Backend. Citations live in their own
// table and are the source the graph is rebuilt from.
type PostgresStore struct {
	db       *DB
	sources  *SourceStore
	titles   *TitleStore
	derived  *derived
	writers  writers
	instance string
	logger   *slog.Logger

	listener   *pq.Listener
	stopListen chan struct{}
	listenDone chan struct{}
}

var _ Backend = (*PostgresStore)(nil)

// OpenPostgres connects, applies the schema and rebuilds the derived indexes.
func OpenPostgres(ctx context.Context, cfg DBConfig, logger *slog.Logger) (*PostgresStore, error) {
	db, err := NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s := NewPostgresStore(db, logger)
	if err := s.Rebuild(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.listen(cfg.URL); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an open database. Call Rebuild before serving reads.
func NewPostgresStore(db *DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:       db,
		sources:  NewSourceStore(db),
		titles:   NewTitleStore(db),
		derived:  newDerived(),
		instance: uuid.NewString(),
		logger:   logger.With("backend", "postgres"),
	}
}

// listen subscribes to version commits made by other processes.
func (s *PostgresStore) listen(url string) error {
	l := pq.NewListener(url, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("version listener event", "event", ev, "error", err)
		}
	})
	if err := l.Listen(versionsChannel); err != nil {
		l.Close()
		return fmt.Errorf("failed to listen on %s: %w", versionsChannel, err)
	}
	s.listener = l
	s.stopListen = make(chan struct{})
	s.listenDone = make(chan struct{})
	go s.followPeers()
	return nil
}

func (s *PostgresStore) followPeers() {
	defer close(s.listenDone)
	for {
		select {
		case <-s.stopListen:
			return
		case n := <-s.listener.Notify:
			// A nil notification follows a reconnect; anything may have
			// been missed while the connection was down.
			if n != nil && strings.HasPrefix(n.Extra, s.instance+" ") {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if err := s.Rebuild(ctx); err != nil {
				s.logger.Error("failed to follow peer commit", "error", err)
			}
			cancel()
		case <-time.After(90 * time.Second):
			go s.listener.Ping()
		}
	}
}

// notify queues a commit notice; postgres delivers it only if tx commits.
func (s *PostgresStore) notify(ctx context.Context, tx *sql.Tx, versionID string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, versionsChannel, s.instance+" "+versionID); err != nil {
		return fmt.Errorf("failed to notify peers: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.listener != nil {
		close(s.stopListen)
		<-s.listenDone
		s.listener.Close()
	}
	return s.db.Close()
}

func (s *PostgresStore) RegisterSource(ctx context.Context, src *model.Source) error {
	if err := src.Validate(); err != nil {
		return err
	}
	return s.sources.UpsertSource(ctx, src)
}

func (s *PostgresStore) RegisterTitle(ctx context.Context, number int, name string) error {
	return s.titles.UpsertTitle(ctx, number, name)
}

// StoreVersion runs the whole store in one transaction, serialised per
// source with an advisory lock.
func (s *PostgresStore) StoreVersion(ctx context.Context, v *model.Version, sections []model.Section) (*StoreResult, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	defer s.writers.source(v.SourceID)()

	result := &StoreResult{VersionID: v.ID}
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(v.SourceID)); err != nil {
			return fmt.Errorf("failed to lock source: %w", err)
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1)`, v.SourceID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("source %s: %w", v.SourceID, model.ErrNotFound)
		}

		existing, err := lockedVersions(ctx, tx, v.SourceID)
		if err != nil {
			return fmt.Errorf("failed to load versions: %w", err)
		}
		plan, err := planVersion(existing, v)
		if err != nil {
			return err
		}
		if plan.duplicateOf != "" {
			result = &StoreResult{VersionID: plan.duplicateOf, Duplicate: true}
			return nil
		}
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM versions WHERE id = $1)`, v.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: version id %s is already in use", model.ErrInvalidInput, v.ID)
		}

		// Retire first so the one-current index never sees two rows.
		for i := range plan.supersede {
			if err := retireVersion(ctx, tx, &plan.supersede[i]); err != nil {
				return fmt.Errorf("failed to supersede version %s: %w", plan.supersede[i].ID, err)
			}
			result.Superseded = append(result.Superseded, plan.supersede[i].ID)
		}
		if err := insertVersion(ctx, tx, v); err != nil {
			return fmt.Errorf("failed to insert version: %w", err)
		}

		for i := range sections {
			sec := &sections[i]
			sec.VersionID = v.ID
			sec.Subsection = model.NormalizeSubsection(sec.Subsection)
			if _, err := insertSection(ctx, tx, sec); err != nil {
				return err
			}
		}
		result.Sections = len(sections)
		result.Citations = countCitations(sections)
		if v.IsCurrent || len(plan.supersede) > 0 {
			return s.notify(ctx, tx, v.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store version %s: %w", v.ID, err)
	}
	if result.Duplicate {
		return result, nil
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

// encodeSection splits citations off the stored content and hashes the
// whole section for identity checks.
func encodeSection(sec *model.Section) (content []byte, hash string, err error) {
	full, err := json.Marshal(sec)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(full)

	body := *sec
	body.Citations = nil
	content, err = json.Marshal(&body)
	return content, hex.EncodeToString(sum[:]), err
}

// insertSection returns false when an identical row already exists.
func insertSection(ctx context.Context, tx *sql.Tx, sec *model.Section) (bool, error) {
	content, hash, err := encodeSection(sec)
	if err != nil {
		return false, fmt.Errorf("failed to encode section %s: %w", sec.Key(), err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sections (version_id, title_number, section, subsection, heading, content, content_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (title_number, section, subsection, version_id) DO NOTHING
		RETURNING id
	`, sec.VersionID, sec.Title, sec.Section, sec.Subsection, sec.Heading, content, hash).Scan(&id)
	if err == sql.ErrNoRows {
		var existing string
		err := tx.QueryRowContext(ctx, `
			SELECT content_hash FROM sections
			WHERE title_number = $1 AND section = $2 AND subsection = $3 AND version_id = $4
		`, sec.Title, sec.Section, sec.Subsection, sec.VersionID).Scan(&existing)
		if err != nil {
			return false, fmt.Errorf("failed to check section %s: %w", sec.Key(), err)
		}
		if existing == hash {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s in version %s", model.ErrSectionImmutable, sec.Key(), sec.VersionID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert section %s: %w", sec.Key(), err)
	}

	if len(sec.Citations) == 0 {
		return true, nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO citations (section_id, source_subsection, target_title, target_section, target_subsection, raw, char_offset)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return false, fmt.Errorf("failed to prepare citation insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range sec.Citations {
		var (
			title        sql.NullInt64
			section, sub sql.NullString
		)
		if c.Target != nil {
			title = sql.NullInt64{Int64: int64(c.Target.Title), Valid: true}
			section = nullString(c.Target.Section, true)
			sub = nullString(c.Target.Subsection, true)
		}
		if _, err := stmt.ExecContext(ctx, id, c.Source.Subsection, title, section, sub, c.Raw, c.Offset); err != nil {
			return false, fmt.Errorf("failed to insert citation %q: %w", c.Raw, err)
		}
	}
	return true, nil
}

func (s *PostgresStore) StoreSection(ctx context.Context, sec *model.Section) error {
	if sec.VersionID == "" {
		return fmt.Errorf("%w: section %s has no version", model.ErrInvalidInput, sec.Key())
	}
	sec.Subsection = model.NormalizeSubsection(sec.Subsection)

	defer s.writers.shared()()

	var current, inserted bool
	err := s.db.Transaction(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT is_current FROM versions WHERE id = $1`, sec.VersionID).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", model.ErrUnknownVersion, sec.VersionID)
		}
		if err != nil {
			return err
		}
		if inserted, err = insertSection(ctx, tx, sec); err != nil || !inserted || !current {
			return err
		}
		return s.notify(ctx, tx, sec.VersionID)
	})
	if err != nil {
		return fmt.Errorf("failed to store section %s: %w", sec.Key(), err)
	}
	if inserted && current {
		s.derived.addSection(sec)
	}
	return nil
}

// loadCitations attaches citation rows to the sections they belong to.
func (s *PostgresStore) loadCitations(ctx context.Context, bySection map[int64]*model.Section) error {
	if len(bySection) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(bySection))
	for id := range bySection {
		ids = append(ids, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, source_subsection, target_title, target_section, target_subsection, raw, char_offset
		FROM citations
		WHERE section_id = ANY($1)
		ORDER BY section_id, id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to load citations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sectionID    int64
			sourceSub    string
			title        sql.NullInt64
			section, sub sql.NullString
			c            model.Citation
		)
		if err := rows.Scan(&sectionID, &sourceSub, &title, &section, &sub, &c.Raw, &c.Offset); err != nil {
			return fmt.Errorf("failed to scan citation: %w", err)
		}
		sec := bySection[sectionID]
		c.Source = model.Key{Title: sec.Title, Section: sec.Section, Subsection: sourceSub}
		if title.Valid {
			c.Target = &model.Key{Title: int(title.Int64), Section: section.String, Subsection: sub.String}
		}
		sec.Citations = append(sec.Citations, c)
	}
	return rows.Err()
}

func (s *PostgresStore) candidates(ctx context.Context, key model.Key) (exact, parents []candidate, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.subsection, s.content, `+joinedVersionColumns+`
		FROM sections s
		JOIN versions v ON v.id = s.version_id
		WHERE s.title_number = $1 AND s.section = $2 AND (s.subsection = $3 OR s.subsection = '')
	`, key.Title, key.Section, key.Subsection)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	type row struct {
		id     int64
		parent bool
		c      candidate
	}
	var all []*row
	for rows.Next() {
		var (
			r       row
			sub     string
			content []byte
			vcols   versionRow
		)
		dest := append([]interface{}{&r.id, &sub, &content}, vcols.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, err
		}
		if err := json.Unmarshal(content, &r.c.section); err != nil {
			return nil, nil, fmt.Errorf("failed to decode section row %d: %w", r.id, err)
		}
		r.c.version = vcols.version()
		r.parent = sub != key.Subsection
		all = append(all, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	bySection := make(map[int64]*model.Section, len(all))
	for _, r := range all {
		bySection[r.id] = &r.c.section
	}
	if err := s.loadCitations(ctx, bySection); err != nil {
		return nil, nil, err
	}

	for _, r := range all {
		if r.parent {
			parents = append(parents, r.c)
		} else {
			exact = append(exact, r.c)
		}
	}
	return exact, parents, nil
}

// versionRow scans the joined version columns.
type versionRow struct {
	v         model.Version
	published sql.NullTime
	from, to  sql.NullInt64
}

func (r *versionRow) dest() []interface{} {
	return []interface{}{
		&r.v.ID, &r.v.SourceID, &r.v.ContentHash, &r.v.StorageKey, &r.v.FileSizeBytes, &r.v.MimeType,
		&r.published, &r.v.RetrievedAt, &r.from, &r.to, &r.v.IsCurrent, &r.v.Superseded,
	}
}

func (r *versionRow) version() model.Version {
	v := r.v
	v.PublishedAt = timePtr(r.published)
	v.AppliesFromYear = intPtr(r.from)
	v.AppliesToYear = intPtr(r.to)
	return v
}

func (s *PostgresStore) GetSection(ctx context.Context, key model.Key, asOf *time.Time) (*model.Section, error) {
	key.Subsection = model.NormalizeSubsection(key.Subsection)
	exact, parents, err := s.candidates(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get section %s: %w", key, err)
	}
	return pickSection(key, exact, parents, asOf), nil
}

func (s *PostgresStore) Search(ctx context.Context, query string, opts search.Options) ([]model.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.derived.search(query, opts), nil
}

func (s *PostgresStore) ListTitles(ctx context.Context) ([]model.TitleInfo, error) {
	names, err := s.titles.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.derived.titles(names), nil
}

func (s *PostgresStore) GetReferencesTo(ctx context.Context, title int, section string) ([]model.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.derived.referencesTo(model.Key{Title: title, Section: section}), nil
}

func (s *PostgresStore) GetReferencedBy(ctx context.Context, title int, section string) ([]model.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.derived.referencedBy(model.Key{Title: title, Section: section}), nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, sourceID string) ([]model.Version, error) {
	return s.sources.GetVersions(ctx, sourceID)
}

func (s *PostgresStore) SectionHistory(ctx context.Context, key model.Key) ([]model.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+joinedVersionColumns+`
		FROM sections s
		JOIN versions v ON v.id = s.version_id
		WHERE s.title_number = $1 AND s.section = $2 AND s.subsection = ''
		ORDER BY v.retrieved_at, v.id
	`, key.Title, key.Section)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", key, err)
	}
	defer rows.Close()

	var versions []model.Version
	for rows.Next() {
		var r versionRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, r.version())
	}
	return versions, rows.Err()
}

// Rebuild reloads current sections and their citation rows.
func (s *PostgresStore) Rebuild(ctx context.Context) error {
	defer s.writers.exclusive()()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.version_id, s.content
		FROM sections s
		JOIN versions v ON v.id = s.version_id
		WHERE v.is_current
		ORDER BY s.id
	`)
	if err != nil {
		return fmt.Errorf("failed to rebuild indexes: %w", err)
	}
	defer rows.Close()

	bySection := make(map[int64]*model.Section)
	var order []int64
	for rows.Next() {
		var (
			id        int64
			versionID string
			content   []byte
		)
		if err := rows.Scan(&id, &versionID, &content); err != nil {
			return fmt.Errorf("failed to scan section: %w", err)
		}
		sec := &model.Section{}
		if err := json.Unmarshal(content, sec); err != nil {
			return fmt.Errorf("failed to decode section row %d: %w", id, err)
		}
		sec.VersionID = versionID
		bySection[id] = sec
		order = append(order, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to rebuild indexes: %w", err)
	}
	if err := s.loadCitations(ctx, bySection); err != nil {
		return err
	}

	byVersion := make(map[string][]model.Section)
	for _, id := range order {
		sec := bySection[id]
		byVersion[sec.VersionID] = append(byVersion[sec.VersionID], *sec)
	}

	s.derived.reset()
	for id, secs := range byVersion {
		s.derived.replace(nil, id, secs)
	}
	s.logger.Info("rebuilt indexes", "versions", len(byVersion), "sections", len(order))
	return nil
}
