package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, defaults Settings) (*Resolver, string) {
	t.Helper()
	dir := t.TempDir()
	clock := func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return NewResolver(defaults, WithWorkDir(dir), WithClock(clock)), dir
}

func TestResolveDomainPaths(t *testing.T) {
	tests := []struct {
		domain string
		paths  []string
		want   []string
	}{
		{"https://a.com/", []string{"b", "/c"}, []string{"https://a.com/b", "https://a.com/c"}},
		{"https://a.com", []string{"b"}, []string{"https://a.com/b"}},
		{"https://a.com", []string{"/b", "https://other.com/c"}, []string{"https://a.com/b", "https://other.com/c"}},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			r, _ := newTestResolver(t, Defaults())
			job, err := r.Resolve(Settings{Domain: tt.domain, Paths: tt.paths})
			require.NoError(t, err)
			assert.Equal(t, tt.want, job.URLs)
		})
	}
}

func TestResolveURLSources(t *testing.T) {
	r, dir := newTestResolver(t, Defaults())
	xmlPath := filepath.Join(dir, "sitemap.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte(`<urlset>
<url><loc>https://example.com/one</loc></url>
<url><loc>/two</loc></url>
</urlset>`), 0o644))

	// absolute urls win over everything else
	job, err := r.Resolve(Settings{URLs: []string{"https://x.com/a"}, Domain: "https://y.com", XML: "sitemap.xml"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://x.com/a"}, job.URLs)

	// relative urls act as paths when a domain is set
	job, err = r.Resolve(Settings{URLs: []string{"a"}, Domain: "https://y.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://y.com/a"}, job.URLs)

	// sitemap locations are joined to the domain
	job, err = r.Resolve(Settings{Domain: "https://y.com", XML: xmlPath})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/one", "https://y.com/two"}, job.URLs)

	// the sitemap alone must hold absolute urls
	_, err = r.Resolve(Settings{XML: "sitemap.xml"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(FieldURLs))

	// nothing at all
	job, err = r.Resolve(Settings{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Field{FieldURLs}, verr.Fields)
	assert.Empty(t, job.URLs)

	// a missing sitemap is treated as absent
	_, err = r.Resolve(Settings{XML: "nope.xml"})
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(FieldURLs))
}

func TestResolveMissingThreshold(t *testing.T) {
	defaults := Defaults()
	defaults.Threshold = nil

	r, _ := newTestResolver(t, defaults)
	job, err := r.Resolve(Settings{URLs: []string{"https://a.com/"}})

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []Field{FieldThreshold}, verr.Fields)
	assert.Contains(t, err.Error(), "threshold")
	require.NotNil(t, job)
}

func TestResolveValidation(t *testing.T) {
	r, _ := newTestResolver(t, Settings{})
	_, err := r.Resolve(Settings{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Field{
		FieldSameDomainDelay,
		FieldOutputFolder,
		FieldParallel,
		FieldThreshold,
		FieldTimeout,
		FieldViewportHeight,
		FieldViewportWidth,
		FieldWait,
		FieldURLs,
		FieldFolder,
	}, verr.Fields)

	r, _ = newTestResolver(t, Defaults())
	_, err = r.Resolve(Settings{
		URLs:      []string{"https://a.com/"},
		Parallel:  Ptr(0),
		Threshold: Ptr(101.0),
		Wait:      Ptr(-1.0),
	})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Field{FieldParallel, FieldThreshold, FieldWait}, verr.Fields)
}

func TestResolveFolder(t *testing.T) {
	r, dir := newTestResolver(t, Defaults())

	job, err := r.Resolve(Settings{
		URLs:          []string{"https://a.com/"},
		Label:         "nightly",
		DateSubfolder: Ptr(true),
		Reference:     "https://staging.a.com",
	})
	require.NoError(t, err)

	want := filepath.Join(dir, "screenshots", "nightly", "20240309", "140507")
	assert.Equal(t, want, job.Folder)
	assert.DirExists(t, want)
	assert.DirExists(t, filepath.Join(want, ReferenceDir))
	assert.Equal(t, filepath.Join(want, ReferenceDir), job.ReferenceFolder())

	abs := filepath.Join(t.TempDir(), "out")
	job, err = r.Resolve(Settings{URLs: []string{"https://a.com/"}, OutputFolder: Ptr(abs)})
	require.NoError(t, err)
	assert.Equal(t, abs, job.Folder)
	assert.NoDirExists(t, filepath.Join(abs, ReferenceDir))

	explicit := filepath.Join(t.TempDir(), "explicit")
	job, err = r.Resolve(Settings{URLs: []string{"https://a.com/"}, Folder: explicit, Label: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, explicit, job.Folder)
}

func TestResolveUnwritableFolder(t *testing.T) {
	r, dir := newTestResolver(t, Defaults())

	// a regular file where the folder should be
	blocker := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := r.Resolve(Settings{URLs: []string{"https://a.com/"}, Folder: blocker})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Field{FieldFolder}, verr.Fields)
}

func TestResolveConfigFile(t *testing.T) {
	r, dir := newTestResolver(t, Defaults())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
domain: https://file.example.com
paths: [a]
parallel: 2
wait: 0.5
`), 0o644))

	job, err := r.Resolve(Settings{})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://file.example.com/a"}, job.URLs)
	assert.Equal(t, 2, job.Parallel)
	assert.Equal(t, 500*time.Millisecond, job.Wait)

	// overrides beat the config file
	job, err = r.Resolve(Settings{Parallel: Ptr(7), Paths: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, 7, job.Parallel)
	assert.Equal(t, []string{"https://file.example.com/b"}, job.URLs)

	// an alternate config file
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{"urls":["https://json.example.com/"]}`), 0o644))
	job, err = r.Resolve(Settings{Config: "other.json"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://json.example.com/"}, job.URLs)
	assert.Equal(t, 10, job.Parallel)
}

func TestResolveClearInput(t *testing.T) {
	r, dir := newTestResolver(t, Defaults())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("urls: [https://file.example.com/]\n"), 0o644))

	job, err := r.Resolve(Settings{ClearInput: true})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []Field{FieldURLs}, verr.Fields)
	assert.Empty(t, job.URLs)
}

func TestResolveOnloadScript(t *testing.T) {
	r, dir := newTestResolver(t, Defaults())

	job, err := r.Resolve(Settings{URLs: []string{"https://a.com/"}})
	require.NoError(t, err)
	assert.Nil(t, job.OnLoad)
	assert.Empty(t, job.OnloadScript)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "onload.js"), []byte("() => window.scrollTo(0, 0)"), 0o644))
	job, err = r.Resolve(Settings{URLs: []string{"https://a.com/"}})
	require.NoError(t, err)
	assert.NotNil(t, job.OnLoad)
	assert.Equal(t, filepath.Join(dir, "onload.js"), job.OnloadScript)
	assert.NotNil(t, job.CaptureOptions().OnLoad)
}

func TestJobOptions(t *testing.T) {
	r, _ := newTestResolver(t, Defaults())
	job, err := r.Resolve(Settings{
		URLs:              []string{"https://a.com/"},
		ViewportWidth:     Ptr(800),
		Timeout:           Ptr(1.5),
		SameDomainDelay:   Ptr(0.25),
		Stealth:           Ptr(true),
		RespectCertErrors: Ptr(true),
		Captions:          Ptr(true),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.RunID)
	assert.Equal(t, 1500*time.Millisecond, job.Timeout)
	assert.Equal(t, 250*time.Millisecond, job.SameDomainDelay)

	opts := job.CaptureOptions()
	assert.Equal(t, 800, opts.ViewportWidth)
	assert.Equal(t, 768, opts.ViewportHeight)
	assert.Equal(t, 2*time.Second, opts.Wait)
	assert.Equal(t, 10, opts.Parallel)
	assert.True(t, opts.Stealth)
	assert.True(t, opts.RespectCertificateErrors)
	assert.False(t, opts.UseHTTP2)

	cmp := job.CompareOptions()
	assert.Equal(t, 1.0, cmp.Threshold)
	assert.True(t, cmp.Caption)
}
