package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/screendiff"
	"github.com/root4loot/screendiff/pkg/config"
	"github.com/root4loot/screendiff/pkg/screener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

type stubEngine struct {
	options screener.Options
	closed  bool

	mutex    sync.Mutex
	captured []string
}

func (e *stubEngine) Capture(_ context.Context, targetURL string) (*screener.Capture, error) {
	e.mutex.Lock()
	e.captured = append(e.captured, targetURL)
	e.mutex.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.Black)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return &screener.Capture{TargetURL: targetURL, Title: "stub", Image: buf.Bytes()}, nil
}

func (e *stubEngine) Close() error {
	e.closed = true
	return nil
}

// parse runs the command with args and returns the overrides it produced.
func parse(t *testing.T, args ...string) (config.Settings, error) {
	t.Helper()

	var got config.Settings
	cmd := (&app{}).command()
	cmd.Action = func(_ context.Context, cmd *cli.Command) error {
		if err := checkInputFlags(cmd); err != nil {
			return err
		}
		got = overrides(cmd)
		return nil
	}
	err := cmd.Run(context.Background(), append([]string{"screendiff"}, args...))
	return got, err
}

func TestOverridesOnlySetFlags(t *testing.T) {
	s, err := parse(t, "--urls", "https://a.com/x", "--parallel", "3", "--vw", "800", "--wait", "0.5", "--date-subfolder")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.com/x"}, s.URLs)
	assert.Equal(t, 3, *s.Parallel)
	assert.Equal(t, 800, *s.ViewportWidth)
	assert.Equal(t, 0.5, *s.Wait)
	assert.True(t, *s.DateSubfolder)

	assert.Nil(t, s.Threshold)
	assert.Nil(t, s.Timeout)
	assert.Nil(t, s.OutputFolder)
	assert.Nil(t, s.Stealth)
	assert.Empty(t, s.Config)
	assert.Empty(t, s.Engine)
	assert.Empty(t, s.OnloadScript)
}

func TestOverridesFromEnv(t *testing.T) {
	t.Setenv("SCREENDIFF_THRESHOLD", "5")
	t.Setenv("SCREENDIFF_REFERENCE", "https://staging.a.com")
	t.Setenv("SCREENDIFF_STEALTH", "true")

	s, err := parse(t, "--domain", "https://a.com", "--paths", "one", "--path", "two")
	require.NoError(t, err)

	assert.Equal(t, "https://a.com", s.Domain)
	assert.Equal(t, []string{"one", "two"}, s.Paths)
	assert.Equal(t, 5.0, *s.Threshold)
	assert.Equal(t, "https://staging.a.com", s.Reference)
	assert.True(t, *s.Stealth)
}

func TestOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paths.txt")
	require.NoError(t, os.WriteFile(path, []byte("/a\n/b\n"), 0o644))

	s, err := parse(t, "--domain", "https://a.com", "--file", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, s.URLs)

	s, err = parse(t, "--file", filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, s.URLs)
	assert.True(t, s.ClearInput)
}

func TestInputConflicts(t *testing.T) {
	tests := [][]string{
		{"--urls", "https://a.com/", "--xml", "sitemap.xml"},
		{"--urls", "https://a.com/", "--file", "urls.txt"},
		{"--file", "urls.txt", "--xml", "sitemap.xml"},
		{"--domain", "https://a.com", "--paths", "a", "--xml", "sitemap.xml"},
		{"--urls", "https://a.com/", "--domain", "https://a.com"},
		{"--paths", "a"},
	}

	for _, args := range tests {
		_, err := parse(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	engine := &stubEngine{}
	a := &app{
		newEngine: func(name string, options screener.Options) (screener.Engine, error) {
			assert.Equal(t, "chromedp", name)
			engine.options = options
			return engine, nil
		},
		resolver: []config.Option{config.WithWorkDir(dir)},
		runner:   []screendiff.Option{screendiff.WithWorkDir(dir)},
	}

	var out bytes.Buffer
	cmd := a.command()
	cmd.Writer = &out

	err := cmd.Run(context.Background(), []string{"screendiff",
		"--urls", "https://a.com/page",
		"--reference", "https://ref.a.com",
		"--engine", "chromedp",
		"--vh", "600",
		"--wait", "0",
		"--silence",
	})
	require.NoError(t, err)

	assert.True(t, engine.closed)
	assert.ElementsMatch(t, []string{"https://a.com/page", "https://ref.a.com/page"}, engine.captured)
	assert.Equal(t, 600, engine.options.ViewportHeight)

	var results screendiff.Results
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	for _, res := range results {
		assert.Equal(t, "./screenshots/page.png", res.Filename)
		assert.Equal(t, "./screenshots/reference/page.png", res.RefFilename)
		require.NotNil(t, res.DifferenceData)
		assert.False(t, res.DifferenceData.Changed)
		assert.Equal(t, "./screenshots/reference/page-diff.png", res.DifferenceData.DiffFilename)
	}
	assert.FileExists(t, filepath.Join(dir, "screenshots", "reference", "page-diff.png"))
}

func TestRunReport(t *testing.T) {
	dir := t.TempDir()
	a := &app{
		newEngine: func(string, screener.Options) (screener.Engine, error) { return &stubEngine{}, nil },
		resolver:  []config.Option{config.WithWorkDir(dir)},
	}

	report := filepath.Join(dir, "report.json")
	var out bytes.Buffer
	cmd := a.command()
	cmd.Writer = &out

	err := cmd.Run(context.Background(), []string{"screendiff", "--urls", "https://a.com/", "--wait", "0", "--report", report, "--silence"})
	require.NoError(t, err)
	assert.Empty(t, out.String())

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var results screendiff.Results
	require.NoError(t, json.Unmarshal(data, &results))
	assert.Len(t, results, 1)
}

func TestRunInvalidSettings(t *testing.T) {
	created := false
	a := &app{
		newEngine: func(string, screener.Options) (screener.Engine, error) {
			created = true
			return &stubEngine{}, nil
		},
		resolver: []config.Option{config.WithWorkDir(t.TempDir())},
	}

	var errOut bytes.Buffer
	cmd := a.command()
	cmd.ErrWriter = &errOut

	err := cmd.Run(context.Background(), []string{"screendiff", "--urls", "https://a.com/", "--threshold=-1", "--parallel=0", "--silence"})
	assert.ErrorIs(t, err, errInvalidSettings)
	assert.False(t, created)
	assert.Contains(t, errOut.String(), "  - parallel\n  - threshold\n")
}

func TestRunUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("urls: [https://a.com/]\n"), 0o644))

	engine := &stubEngine{}
	a := &app{
		newEngine: func(string, screener.Options) (screener.Engine, error) { return engine, nil },
		resolver:  []config.Option{config.WithWorkDir(dir)},
	}

	var errOut bytes.Buffer
	cmd := a.command()
	cmd.ErrWriter = &errOut

	err := cmd.Run(context.Background(), []string{"screendiff", "--file", filepath.Join(dir, "missing.txt"), "--silence"})
	assert.ErrorIs(t, err, errInvalidSettings)
	assert.Contains(t, errOut.String(), "  - urls\n")
	assert.Empty(t, engine.captured)
}

func TestSetLogLevel(t *testing.T) {
	defer log.SetLevel(log.InfoLevel)

	tests := []struct {
		args []string
		want log.Level
	}{
		{nil, log.InfoLevel},
		{[]string{"--debug"}, log.DebugLevel},
		{[]string{"--silence"}, log.FatalLevel},
		{[]string{"--debug", "--silence"}, log.FatalLevel},
	}

	for _, tt := range tests {
		cmd := (&app{}).command()
		cmd.Action = func(_ context.Context, cmd *cli.Command) error {
			setLogLevel(cmd)
			return nil
		}
		require.NoError(t, cmd.Run(context.Background(), append([]string{"screendiff"}, tt.args...)))
		assert.Equal(t, tt.want, log.GetLevel(), "%v", tt.args)
	}
}
