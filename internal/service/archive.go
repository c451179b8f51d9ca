package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jjenkins/lawarchive/internal/citation"
	"github.com/jjenkins/lawarchive/internal/model"
	"github.com/jjenkins/lawarchive/internal/search"
	"github.com/jjenkins/lawarchive/internal/store"
)

var tracer = otel.Tracer("github.com/jjenkins/lawarchive/internal/service")

// IngestRequest is one retrieved document to archive.
type IngestRequest struct {
	Source  model.Source
	Version model.Version
	Content []byte
	// Title overrides the title number declared in the document.
	Title int
}

// IngestResult reports what Ingest stored.
type IngestResult struct {
	SourceID    string   `json:"source_id"`
	VersionID   string   `json:"version_id"`
	Duplicate   bool     `json:"duplicate"`
	TitleNumber int      `json:"title_number,omitempty"`
	Sections    int      `json:"sections"`
	Citations   int      `json:"citations"`
	Unresolved  int      `json:"unresolved"`
	Superseded  []string `json:"superseded,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Archive orchestrates parsing, citation resolution and storage, and is the
// query surface used by the CLI and HTTP handlers.
type Archive struct {
	backend  store.Backend
	parser   *Parser
	resolver *citation.Resolver
	logger   *slog.Logger

	jurisdiction string
	rebuilds     singleflight.Group
}

// NewArchive creates a new Archive
func NewArchive(backend store.Backend, jurisdiction string, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	if jurisdiction == "" {
		jurisdiction = citation.JurisdictionUS
	}
	return &Archive{
		backend:      backend,
		parser:       NewParser(logger),
		resolver:     citation.NewResolver(),
		logger:       logger,
		jurisdiction: jurisdiction,
	}
}

// Backend exposes the underlying store.
func (a *Archive) Backend() store.Backend {
	return a.backend
}

func (a *Archive) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func(error)) {
	ctx, span := tracer.Start(ctx, "archive."+op, trace.WithAttributes(attrs...))
	timer := prometheus.NewTimer(queryDuration.WithLabelValues(op))
	return ctx, span, func(err error) {
		timer.ObserveDuration()
		if err != nil {
			queryErrors.WithLabelValues(op).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// Ingest registers the source, parses the content, resolves citations and
// stores the version with its section tree.
func (a *Archive) Ingest(ctx context.Context, req IngestRequest) (res *IngestResult, err error) {
	ctx, span := tracer.Start(ctx, "archive.Ingest", trace.WithAttributes(attribute.String("source.path", req.Source.Path)))
	timer := prometheus.NewTimer(ingestDuration)
	defer func() {
		timer.ObserveDuration()
		switch {
		case err != nil:
			ingestTotal.WithLabelValues("failed").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.Duplicate:
			ingestTotal.WithLabelValues("duplicate").Inc()
		default:
			ingestTotal.WithLabelValues("stored").Inc()
		}
		span.End()
	}()

	src := req.Source
	if src.Jurisdiction == "" {
		src.Jurisdiction = a.jurisdiction
	}
	parsed, err := a.parser.Parse(req.Content, ParseOptions{Jurisdiction: src.Jurisdiction, Title: req.Title})
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", src.Path, err)
	}
	span.SetAttributes(attribute.Int("title", parsed.TitleNumber), attribute.Int("sections", len(parsed.Sections)))

	citations := a.resolver.Citations(parsed.Spans, src.Jurisdiction)
	attachCitations(parsed.Sections, citations)

	unresolved := 0
	for _, c := range citations {
		if !c.Resolved() {
			unresolved++
		}
	}
	ingestCitations.WithLabelValues("true").Add(float64(len(citations) - unresolved))
	ingestCitations.WithLabelValues("false").Add(float64(unresolved))

	// Only documents that parse leave a source behind.
	if err := a.backend.RegisterSource(ctx, &src); err != nil {
		return nil, err
	}
	if parsed.TitleName != "" {
		if err := a.backend.RegisterTitle(ctx, parsed.TitleNumber, parsed.TitleName); err != nil {
			return nil, err
		}
	}

	v := req.Version
	v.SourceID = src.ID
	if v.ContentHash == "" {
		v.ContentHash = parsed.Checksum
	}
	if v.FileSizeBytes == 0 {
		v.FileSizeBytes = int64(len(req.Content))
	}
	if v.RetrievedAt.IsZero() {
		v.RetrievedAt = time.Now().UTC()
	}

	stored, err := a.backend.StoreVersion(ctx, &v, parsed.Sections)
	if err != nil {
		return nil, err
	}
	if !stored.Duplicate {
		ingestSections.Add(float64(stored.Sections))
	}

	res = &IngestResult{
		SourceID:    src.ID,
		VersionID:   stored.VersionID,
		Duplicate:   stored.Duplicate,
		TitleNumber: parsed.TitleNumber,
		Sections:    len(parsed.Sections),
		Citations:   len(citations),
		Unresolved:  unresolved,
		Superseded:  stored.Superseded,
		Warnings:    parsed.Warnings,
	}
	a.logger.Info("ingested document",
		"path", src.Path, "title", res.TitleNumber, "version", res.VersionID,
		"duplicate", res.Duplicate, "sections", res.Sections,
		"citations", res.Citations, "unresolved", res.Unresolved)
	return res, nil
}

// Register stores a version that carries no parsed sections, such as a PDF
// kept for provenance.
func (a *Archive) Register(ctx context.Context, src model.Source, v model.Version) (*IngestResult, error) {
	ctx, _, done := a.start(ctx, "Register", attribute.String("source.path", src.Path))
	if src.Jurisdiction == "" {
		src.Jurisdiction = a.jurisdiction
	}
	if err := a.backend.RegisterSource(ctx, &src); err != nil {
		done(err)
		return nil, err
	}
	v.SourceID = src.ID
	stored, err := a.backend.StoreVersion(ctx, &v, nil)
	done(err)
	if err != nil {
		return nil, err
	}
	return &IngestResult{SourceID: src.ID, VersionID: stored.VersionID, Duplicate: stored.Duplicate, Superseded: stored.Superseded}, nil
}

// attachCitations hands each citation to the section it was found in.
func attachCitations(sections []model.Section, citations []model.Citation) {
	index := make(map[model.Key]int, len(sections))
	for i := range sections {
		index[sections[i].Key().SectionRef()] = i
	}
	for _, c := range citations {
		if i, ok := index[c.Source.SectionRef()]; ok {
			sections[i].Citations = append(sections[i].Citations, c)
		}
	}
}

// StoreSection stores one section into an existing version.
func (a *Archive) StoreSection(ctx context.Context, s *model.Section) error {
	ctx, _, done := a.start(ctx, "StoreSection", attribute.String("section", s.Key().String()))
	err := a.backend.StoreSection(ctx, s)
	done(err)
	return err
}

// GetSection returns the provision as of a date, or nil when the archive
// has no such provision.
func (a *Archive) GetSection(ctx context.Context, key model.Key, asOf *time.Time) (*model.Section, error) {
	ctx, _, done := a.start(ctx, "GetSection", attribute.String("section", key.String()))
	s, err := a.backend.GetSection(ctx, key, asOf)
	done(err)
	return s, err
}

func (a *Archive) Search(ctx context.Context, query string, opts search.Options) ([]model.SearchResult, error) {
	ctx, _, done := a.start(ctx, "Search", attribute.String("query", query))
	res, err := a.backend.Search(ctx, query, opts)
	done(err)
	return res, err
}

func (a *Archive) ListTitles(ctx context.Context) ([]model.TitleInfo, error) {
	ctx, _, done := a.start(ctx, "ListTitles")
	res, err := a.backend.ListTitles(ctx)
	done(err)
	return res, err
}

// ReferencesTo returns the sections citing title/section.
func (a *Archive) ReferencesTo(ctx context.Context, title int, section string) ([]model.Key, error) {
	ctx, _, done := a.start(ctx, "ReferencesTo")
	res, err := a.backend.GetReferencesTo(ctx, title, section)
	done(err)
	return res, err
}

// ReferencedBy returns the sections title/section cites.
func (a *Archive) ReferencedBy(ctx context.Context, title int, section string) ([]model.Key, error) {
	ctx, _, done := a.start(ctx, "ReferencedBy")
	res, err := a.backend.GetReferencedBy(ctx, title, section)
	done(err)
	return res, err
}

func (a *Archive) ListVersions(ctx context.Context, sourceID string) ([]model.Version, error) {
	ctx, _, done := a.start(ctx, "ListVersions")
	res, err := a.backend.ListVersions(ctx, sourceID)
	done(err)
	return res, err
}

func (a *Archive) SectionHistory(ctx context.Context, key model.Key) ([]model.Version, error) {
	ctx, _, done := a.start(ctx, "SectionHistory", attribute.String("section", key.String()))
	res, err := a.backend.SectionHistory(ctx, key)
	done(err)
	return res, err
}

// Rebuild recomputes derived indexes. Concurrent callers share one run.
func (a *Archive) Rebuild(ctx context.Context) error {
	_, err, shared := a.rebuilds.Do("rebuild", func() (interface{}, error) {
		ctx, _, done := a.start(ctx, "Rebuild")
		err := a.backend.Rebuild(ctx)
		done(err)
		return nil, err
	})
	if shared {
		a.logger.Debug("joined in-flight rebuild")
	}
	return err
}
