// Package screendiff captures a list of URLs, optionally alongside the same
// paths on a reference domain, and diffs each pair.
package screendiff

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/screendiff/pkg/compare"
	"github.com/root4loot/screendiff/pkg/config"
	"github.com/root4loot/screendiff/pkg/naming"
	"github.com/root4loot/screendiff/pkg/screener"
	"golang.org/x/sync/errgroup"
)

// Result holds a URL's capture and, when a reference is configured, the
// capture of its reference counterpart and their difference.
type Result struct {
	URL            string              `json:"url,omitempty"`
	Filename       string              `json:"filename,omitempty"`
	Title          string              `json:"title,omitempty"`
	Skipped        bool                `json:"skipped,omitempty"`
	Error          string              `json:"error,omitempty"`
	RefURL         string              `json:"refUrl,omitempty"`
	RefFilename    string              `json:"refFilename,omitempty"`
	RefTitle       string              `json:"refTitle,omitempty"`
	RefSkipped     bool                `json:"refSkipped,omitempty"`
	RefError       string              `json:"refError,omitempty"`
	DifferenceData *compare.Difference `json:"differenceData,omitempty"`

	path    string
	refPath string
}

// Results maps stable ids to results.
type Results map[string]*Result

// IDs returns the result ids in sorted order.
func (rs Results) IDs() []string {
	ids := make([]string, 0, len(rs))
	for id := range rs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Changed returns the ids whose difference exceeded the threshold.
func (rs Results) Changed() []string {
	var ids []string
	for _, id := range rs.IDs() {
		if d := rs[id].DifferenceData; d != nil && d.Changed {
			ids = append(ids, id)
		}
	}
	return ids
}

// Runner drives capture and comparison for a Job.
type Runner struct {
	job     *config.Job
	engine  screener.Engine
	pacer   *pacer
	workDir string

	results Results
	mutex   sync.Mutex
}

// Option configures a Runner.
type Option func(*Runner)

// WithWorkDir sets the directory reported filenames are relative to.
func WithWorkDir(dir string) Option {
	return func(r *Runner) {
		r.workDir = dir
	}
}

// NewRunner returns a runner for job capturing with engine.
func NewRunner(job *config.Job, engine screener.Engine, opts ...Option) *Runner {
	log.Debug("Creating new runner...")

	r := &Runner{
		job:     job,
		engine:  engine,
		results: make(Results),
	}
	if job != nil {
		r.pacer = newPacer(job.SameDomainDelay)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workDir == "" {
		r.workDir, _ = os.Getwd()
	}
	return r
}

// Run captures every URL of the job, then compares each pair once all
// captures are done. Capture and comparison failures are recorded on the
// result rather than returned.
func (r *Runner) Run(ctx context.Context) (Results, error) {
	if r.job == nil {
		return nil, errors.New("no job to run")
	}
	if r.engine == nil {
		return nil, errors.New("no capture engine")
	}
	if len(r.job.URLs) == 0 {
		return nil, errors.New("job has no urls")
	}

	tasks, err := r.tasks()
	if err != nil {
		return nil, err
	}

	log.Debugf("Capturing %d pages with %d in parallel", len(tasks), r.job.Parallel)

	g := new(errgroup.Group)
	g.SetLimit(max(r.job.Parallel, 1))
	for _, t := range tasks {
		g.Go(func() error {
			r.capture(ctx, t)
			return nil
		})
	}
	g.Wait()

	if r.job.Reference != "" {
		r.compareAll(ctx)
	}

	return r.results, nil
}

// tasks returns one capture per URL, plus one per reference counterpart.
func (r *Runner) tasks() ([]task, error) {
	var tasks []task
	for _, u := range r.job.URLs {
		id, err := naming.StableID(u)
		if err != nil {
			return nil, err
		}
		filename, err := naming.FilenameFor(u, naming.DefaultExtension)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, task{
			id:   id,
			url:  u,
			path: filepath.Join(r.job.Folder, filename),
		})

		if r.job.Reference == "" {
			continue
		}

		refURL, err := naming.SwapOrigin(u, r.job.Reference)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task{
			id:        id,
			url:       refURL,
			path:      filepath.Join(r.job.ReferenceFolder(), filename),
			reference: true,
		})
	}
	return tasks, nil
}

// compareAll diffs every result holding both captures.
func (r *Runner) compareAll(ctx context.Context) {
	opts := r.job.CompareOptions()

	g := new(errgroup.Group)
	g.SetLimit(max(r.job.Parallel, 1))
	for _, id := range r.results.IDs() {
		result := r.results[id]
		if result.path == "" || result.refPath == "" {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			diffPath := compare.DiffFilename(result.refPath)
			diff, err := compare.Files(result.path, result.refPath, diffPath, opts)
			if err != nil {
				log.Warnf("Could not compare %s: %v", result.URL, err)
				return nil
			}
			diff.DiffFilename = r.relative(diffPath)
			result.DifferenceData = diff

			if diff.Changed {
				log.Warnf("%s differs from %s by %.2f%%", result.URL, result.RefURL, diff.MisMatchPercentage)
			} else {
				log.Debugf("%s matches %s (%.2f%%)", result.URL, result.RefURL, diff.MisMatchPercentage)
			}
			return nil
		})
	}
	g.Wait()
}

// relative returns path relative to the work dir, prefixed with "./".
func (r *Runner) relative(path string) string {
	rel, err := filepath.Rel(r.workDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "." + string(filepath.Separator) + rel
}
