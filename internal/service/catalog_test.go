package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/lawarchive/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "manifest.yaml", `
base_dir: docs
documents:
  - path: us/usc/t7
    doc_type: statute
    file: t7.xml
    applies_from_year: 2020
  - path: us/usc/t7/pdf
    doc_type: statute
    url: https://example.test/t7.pdf
    is_current: false
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "docs"), m.BaseDir)
	require.Len(t, m.Documents, 2)
	assert.True(t, m.Documents[0].current())
	assert.Equal(t, 2020, *m.Documents[0].AppliesFromYear)
	assert.False(t, m.Documents[1].current())
}

func TestLoadManifestValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{
			name: "missing path",
			doc:  "documents:\n  - doc_type: statute\n    file: a.xml\n",
			msg:  "cannot be blank",
		},
		{
			name: "no file or url",
			doc:  "documents:\n  - path: us/usc/t7\n    doc_type: statute\n",
			msg:  "file or url is required",
		},
		{
			name: "inverted window",
			doc:  "documents:\n  - path: us/usc/t7\n    doc_type: statute\n    file: a.xml\n    applies_from_year: 2020\n    applies_to_year: 2019\n",
			msg:  "must not precede applies_from_year",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "manifest.yaml", tt.doc)
			_, err := LoadManifest(path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrInvalidInput))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCatalogRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "t7.xml", title7)
	writeFile(t, dir, "t7.pdf", "%PDF-1.4 scanned print edition")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>release notes</html>"))
	}))
	defer srv.Close()

	m := &Manifest{
		BaseDir: dir,
		Documents: []ManifestEntry{
			{Path: "us/usc/t7", DocType: "statute", File: "t7.xml", AppliesFromYear: model.Year(2020)},
			{Path: "us/usc/t7/print", DocType: "statute", File: "t7.pdf"},
			{Path: "us/usc/t7/notes", DocType: "notes", URL: srv.URL + "/notes"},
			{Path: "us/usc/t8", DocType: "statute", File: "missing.xml"},
		},
	}

	a := newTestArchive(t)
	c := NewCataloger(a, testFetcher(1), 2, nil)
	results, stats, err := c.Run(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, &CatalogStats{Total: 4, Stored: 3, Failed: 1}, stats)

	require.NoError(t, results[0].Err)
	assert.Equal(t, 3, results[0].Result.Sections)
	assert.Equal(t, 0, results[1].Result.Sections)
	require.NoError(t, results[2].Err)
	assert.Error(t, results[3].Err)

	versions, err := a.ListVersions(ctx, results[1].Result.SourceID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "application/pdf", versions[0].MimeType)

	versions, err = a.ListVersions(ctx, results[2].Result.SourceID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "text/html", versions[0].MimeType)

	section, err := a.GetSection(ctx, model.Key{Title: 7, Section: "2012"}, nil)
	require.NoError(t, err)
	require.NotNil(t, section)

	_, stats, err = c.Run(ctx, &Manifest{BaseDir: dir, Documents: m.Documents[:2]})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Duplicates)
}

func TestMimeTypeOf(t *testing.T) {
	assert.Equal(t, "application/xml", mimeTypeOf("a/T7.XML", ""))
	assert.Equal(t, "application/pdf", mimeTypeOf("a.pdf", "text/plain"))
	assert.Equal(t, "application/xml", mimeTypeOf("https://x/doc", "text/xml; charset=utf-8"))
	assert.Equal(t, "text/plain", mimeTypeOf("https://x/doc", "text/plain"))
	assert.Equal(t, "application/octet-stream", mimeTypeOf("doc", ""))
}

func TestCatalogWatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "t7.xml", title7)
	writeFile(t, dir, "t7.pdf", "%PDF-1.4")
	manifest := writeFile(t, dir, "manifest.yaml", `
documents:
  - path: us/usc/t7
    doc_type: statute
    file: t7.xml
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan *CatalogStats, 4)
	c := NewCataloger(newTestArchive(t), nil, 1, nil)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, manifest, 20*time.Millisecond, func(_ []CatalogResult, stats *CatalogStats, err error) {
			if err == nil {
				runs <- stats
			}
		})
	}()

	next := func() *CatalogStats {
		t.Helper()
		select {
		case s := <-runs:
			return s
		case <-time.After(5 * time.Second):
			t.Fatal("catalog did not run")
			return nil
		}
	}

	assert.Equal(t, &CatalogStats{Total: 1, Stored: 1}, next())

	writeFile(t, dir, "manifest.yaml", `
documents:
  - path: us/usc/t7
    doc_type: statute
    file: t7.xml
  - path: us/usc/t7/print
    doc_type: statute
    file: t7.pdf
`)
	assert.Equal(t, &CatalogStats{Total: 2, Stored: 1, Duplicates: 1}, next())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
