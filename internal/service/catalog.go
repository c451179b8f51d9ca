package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/jjenkins/lawarchive/internal/model"
)

// Manifest lists documents to catalog.
type Manifest struct {
	// BaseDir resolves relative file paths. Defaults to the manifest's directory.
	BaseDir   string          `yaml:"base_dir"`
	Documents []ManifestEntry `yaml:"documents"`
}

// ManifestEntry describes one document and the version window it covers.
type ManifestEntry struct {
	Path            string     `yaml:"path"`
	Jurisdiction    string     `yaml:"jurisdiction"`
	DocType         string     `yaml:"doc_type"`
	SourceURL       string     `yaml:"source_url"`
	Title           string     `yaml:"title"`
	StorageKey      string     `yaml:"storage_key"`
	File            string     `yaml:"file"`
	URL             string     `yaml:"url"`
	PublishedAt     *time.Time `yaml:"published_at"`
	AppliesFromYear *int       `yaml:"applies_from_year"`
	AppliesToYear   *int       `yaml:"applies_to_year"`
	IsCurrent       *bool      `yaml:"is_current"`
	TitleNumber     int        `yaml:"title_number"`
}

// Validate checks an entry before any file is read.
func (e ManifestEntry) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Path, validation.Required),
		validation.Field(&e.DocType, validation.Required),
		validation.Field(&e.File, validation.Required.When(e.URL == "").Error("file or url is required")),
		validation.Field(&e.TitleNumber, validation.Min(0)),
		validation.Field(&e.AppliesToYear, validation.By(func(interface{}) error {
			if e.AppliesFromYear != nil && e.AppliesToYear != nil && *e.AppliesToYear < *e.AppliesFromYear {
				return fmt.Errorf("must not precede applies_from_year")
			}
			return nil
		})),
	)
}

func (e ManifestEntry) current() bool {
	return e.IsCurrent == nil || *e.IsCurrent
}

// LoadManifest reads and validates a YAML manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.BaseDir == "" {
		m.BaseDir = filepath.Dir(path)
	} else if !filepath.IsAbs(m.BaseDir) {
		m.BaseDir = filepath.Join(filepath.Dir(path), m.BaseDir)
	}

	for i, e := range m.Documents {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("%w: manifest document %d (%s): %v", model.ErrInvalidInput, i+1, e.Path, err)
		}
	}
	return &m, nil
}

// CatalogResult is the outcome for one manifest entry.
type CatalogResult struct {
	Path   string
	Result *IngestResult
	Err    error
}

// CatalogStats tracks catalog statistics
type CatalogStats struct {
	Total      int
	Stored     int
	Duplicates int
	Failed     int
}

// Cataloger turns manifest entries into sources and versions.
type Cataloger struct {
	archive     *Archive
	fetcher     *Fetcher
	logger      *slog.Logger
	concurrency int
}

// NewCataloger creates a new Cataloger. fetcher may be nil when every
// entry names a local file.
func NewCataloger(archive *Archive, fetcher *Fetcher, concurrency int, logger *slog.Logger) *Cataloger {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cataloger{archive: archive, fetcher: fetcher, logger: logger, concurrency: concurrency}
}

// Run catalogs every entry. A failing entry is reported in its result and
// does not stop the others; only cancellation aborts the run.
func (c *Cataloger) Run(ctx context.Context, m *Manifest) ([]CatalogResult, *CatalogStats, error) {
	results := make([]CatalogResult, len(m.Documents))
	stats := &CatalogStats{Total: len(m.Documents)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, entry := range m.Documents {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := c.catalog(ctx, m.BaseDir, entry)
			results[i] = CatalogResult{Path: entry.Path, Result: res, Err: err}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
				c.logger.Error("failed to catalog document", "path", entry.Path, "error", err)
			case res.Duplicate:
				stats.Duplicates++
				c.logger.Info("version already exists", "path", entry.Path, "version", res.VersionID)
			default:
				stats.Stored++
				c.logger.Info("cataloged document", "path", entry.Path, "version", res.VersionID, "sections", res.Sections)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, stats, err
	}
	return results, stats, nil
}

func (c *Cataloger) catalog(ctx context.Context, baseDir string, e ManifestEntry) (*IngestResult, error) {
	content, mimeType, err := c.load(ctx, baseDir, e)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(content)
	src := model.Source{
		Path:         e.Path,
		Jurisdiction: e.Jurisdiction,
		DocType:      e.DocType,
		SourceURL:    e.SourceURL,
		Title:        e.Title,
	}
	v := model.Version{
		ContentHash:     hex.EncodeToString(hash[:]),
		StorageKey:      e.StorageKey,
		FileSizeBytes:   int64(len(content)),
		MimeType:        mimeType,
		PublishedAt:     e.PublishedAt,
		RetrievedAt:     time.Now().UTC(),
		AppliesFromYear: e.AppliesFromYear,
		AppliesToYear:   e.AppliesToYear,
		IsCurrent:       e.current(),
	}

	if mimeType != "application/xml" {
		return c.archive.Register(ctx, src, v)
	}
	return c.archive.Ingest(ctx, IngestRequest{Source: src, Version: v, Content: content, Title: e.TitleNumber})
}

func (c *Cataloger) load(ctx context.Context, baseDir string, e ManifestEntry) ([]byte, string, error) {
	if e.File != "" {
		path := e.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		return content, mimeTypeOf(path, ""), nil
	}

	if c.fetcher == nil {
		return nil, "", fmt.Errorf("%s: no fetcher configured for %s", e.Path, e.URL)
	}
	content, contentType, err := c.fetcher.Fetch(ctx, e.URL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", e.URL, err)
	}
	return content, mimeTypeOf(e.URL, contentType), nil
}

var mimeTypes = map[string]string{
	".xml":  "application/xml",
	".pdf":  "application/pdf",
	".html": "text/html",
}

// mimeTypeOf maps the file extension, falling back to a response's
// Content-Type.
func mimeTypeOf(name, contentType string) string {
	if t, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case strings.HasSuffix(ct, "/xml"):
		return "application/xml"
	case ct != "":
		return ct
	}
	return "application/octet-stream"
}

// WatchReport receives the outcome of each catalog run made by Watch.
type WatchReport func(results []CatalogResult, stats *CatalogStats, err error)

// Watch catalogs the manifest at path, then again each time the file
// changes, until ctx is cancelled. Bursts of events within debounce count
// as one change. A manifest that fails to load is reported and skipped.
func (c *Cataloger) Watch(ctx context.Context, path string, debounce time.Duration, report WatchReport) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve manifest path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	run := func() {
		m, err := LoadManifest(abs)
		if err != nil {
			c.logger.Error("failed to load manifest", "path", abs, "error", err)
			report(nil, nil, err)
			return
		}
		results, stats, err := c.Run(ctx, m)
		report(results, stats, err)
	}
	run()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("manifest watcher error", "error", err)
		case <-timer.C:
			c.logger.Info("manifest changed, cataloging again", "path", abs)
			run()
		}
	}
}
