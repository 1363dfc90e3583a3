package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/screendiff/pkg/compare"
	"github.com/root4loot/screendiff/pkg/naming"
	"github.com/root4loot/screendiff/pkg/screener"
)

// ReferenceDir is the subfolder holding reference captures and diffs.
const ReferenceDir = "reference"

// Job is a fully resolved run.
type Job struct {
	RunID           string          `json:"runId"`
	URLs            []string        `json:"urls"`
	Reference       string          `json:"reference,omitempty"`
	Folder          string          `json:"folder"`
	Label           string          `json:"label,omitempty"`
	DateSubfolder   bool            `json:"dateSubfolder"`
	ViewportWidth   int             `json:"viewportWidth"`
	ViewportHeight  int             `json:"viewportHeight"`
	Wait            time.Duration   `json:"wait"`
	Timeout         time.Duration   `json:"timeout"`
	Parallel        int             `json:"parallel"`
	SameDomainDelay time.Duration   `json:"sameDomainDelay"`
	Threshold       float64         `json:"threshold"`
	ExecTime        time.Time       `json:"execTime"`
	OnloadScript    string          `json:"onloadScript,omitempty"`
	OnLoad          screener.OnLoad `json:"-"`

	Engine            string `json:"engine"`
	Stealth           bool   `json:"stealth"`
	UserAgent         string `json:"userAgent,omitempty"`
	RespectCertErrors bool   `json:"respectCertErrors"`
	UseHTTP2          bool   `json:"useHTTP2"`
	Captions          bool   `json:"captions"`
}

// ReferenceFolder returns the folder reference captures are written to.
func (j *Job) ReferenceFolder() string {
	return filepath.Join(j.Folder, ReferenceDir)
}

// CaptureOptions returns the engine options for the job.
func (j *Job) CaptureOptions() screener.Options {
	return screener.Options{
		ViewportWidth:            j.ViewportWidth,
		ViewportHeight:           j.ViewportHeight,
		Wait:                     j.Wait,
		Parallel:                 j.Parallel,
		OnLoad:                   j.OnLoad,
		UserAgent:                j.UserAgent,
		RespectCertificateErrors: j.RespectCertErrors,
		UseHTTP2:                 j.UseHTTP2,
		Stealth:                  j.Stealth,
	}
}

// CompareOptions returns the comparison options for the job.
func (j *Job) CompareOptions() compare.Options {
	return compare.Options{
		Threshold: j.Threshold,
		Caption:   j.Captions,
	}
}

// Resolver builds Jobs from a fixed set of defaults.
type Resolver struct {
	defaults Settings
	workDir  string
	now      func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithWorkDir sets the directory relative paths are resolved against.
func WithWorkDir(dir string) Option {
	return func(r *Resolver) {
		r.workDir = dir
	}
}

// WithClock sets the clock used for the execution time.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver returns a Resolver using defaults as the lowest layer.
func NewResolver(defaults Settings, opts ...Option) *Resolver {
	r := &Resolver{
		defaults: defaults,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workDir == "" {
		if wd, err := os.Getwd(); err == nil {
			r.workDir = wd
		} else {
			r.workDir = "."
		}
	}
	return r
}

// Resolve merges the defaults, the config file and overrides into a Job,
// creates its output folders and validates it. On validation failure the
// error is a *ValidationError and the partially resolved Job is returned
// alongside it.
func (r *Resolver) Resolve(overrides Settings) (*Job, error) {
	s := r.defaults

	configPath := overrides.Config
	if configPath == "" {
		configPath = r.defaults.Config
	}
	if configPath != "" {
		fromFile, err := ReadConfig(r.abs(configPath))
		if err != nil {
			log.Debugf("Skipping config file %s: %v", configPath, err)
		} else {
			log.Debugf("Loaded config file %s", configPath)
			s = s.Merge(fromFile)
		}
	}

	s = s.Merge(overrides)

	job := &Job{
		RunID:             uuid.NewString(),
		Reference:         s.Reference,
		Label:             s.Label,
		DateSubfolder:     deref(s.DateSubfolder),
		ViewportWidth:     deref(s.ViewportWidth),
		ViewportHeight:    deref(s.ViewportHeight),
		Wait:              seconds(s.Wait),
		Timeout:           seconds(s.Timeout),
		Parallel:          deref(s.Parallel),
		SameDomainDelay:   seconds(s.SameDomainDelay),
		Threshold:         deref(s.Threshold),
		ExecTime:          r.now(),
		Engine:            s.Engine,
		Stealth:           deref(s.Stealth),
		UserAgent:         s.UserAgent,
		RespectCertErrors: deref(s.RespectCertErrors),
		UseHTTP2:          deref(s.UseHTTP2),
		Captions:          deref(s.Captions),
	}

	xmlPath := ""
	if s.XML != "" {
		xmlPath = r.abs(s.XML)
	}
	job.URLs = deriveURLs(s, xmlPath)
	job.Folder = r.folder(s, job.ExecTime)
	writable := r.initFolders(job)

	if s.OnloadScript != "" {
		job.OnloadScript = r.abs(s.OnloadScript)
		onload, err := screener.LoadOnLoadScript(job.OnloadScript)
		if err != nil {
			log.Debugf("Skipping on-load script %s: %v", job.OnloadScript, err)
			job.OnloadScript = ""
		} else {
			job.OnLoad = onload
		}
	}

	if err := validate(s, job, writable); err != nil {
		return job, err
	}
	return job, nil
}

func (r *Resolver) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.workDir, path)
}

// folder returns the explicit folder, or outputFolder[/label][/date/time].
func (r *Resolver) folder(s Settings, execTime time.Time) string {
	if s.Folder != "" {
		return r.abs(s.Folder)
	}
	if s.OutputFolder == nil || *s.OutputFolder == "" {
		return ""
	}

	folder := r.abs(*s.OutputFolder)
	if s.Label != "" {
		folder = filepath.Join(folder, s.Label)
	}
	if deref(s.DateSubfolder) {
		folder = filepath.Join(folder, filepath.FromSlash(naming.DateSubfolder(execTime)))
	}
	return filepath.Clean(folder)
}

// initFolders creates the output folders. Creation errors are logged; the
// returned writability check is what validation relies on.
func (r *Resolver) initFolders(job *Job) bool {
	if job.Folder == "" {
		return false
	}

	dirs := []string{job.Folder}
	if job.Reference != "" {
		dirs = append(dirs, job.ReferenceFolder())
	}

	ok := true
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Errorf("Error creating the output folder: %v", err)
		}
		ok = ok && isWritableDir(dir)
	}
	return ok
}

func isWritableDir(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}

	f, err := os.CreateTemp(dir, ".screendiff-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

func validate(s Settings, job *Job, writable bool) error {
	verr := &ValidationError{}

	if s.SameDomainDelay == nil || *s.SameDomainDelay < 0 {
		verr.add(FieldSameDomainDelay)
	}
	if s.OutputFolder == nil && s.Folder == "" {
		verr.add(FieldOutputFolder)
	}
	if s.Parallel == nil || *s.Parallel < 1 {
		verr.add(FieldParallel)
	}
	if s.Threshold == nil || *s.Threshold < 0 || *s.Threshold > 100 {
		verr.add(FieldThreshold)
	}
	if s.Timeout == nil || *s.Timeout <= 0 {
		verr.add(FieldTimeout)
	}
	if s.ViewportHeight == nil || *s.ViewportHeight <= 0 {
		verr.add(FieldViewportHeight)
	}
	if s.ViewportWidth == nil || *s.ViewportWidth <= 0 {
		verr.add(FieldViewportWidth)
	}
	if s.Wait == nil || *s.Wait < 0 {
		verr.add(FieldWait)
	}
	if len(job.URLs) == 0 || !allAbsolute(job.URLs) {
		verr.add(FieldURLs)
	}
	if !writable {
		verr.add(FieldFolder)
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

func seconds(v *float64) time.Duration {
	return time.Duration(deref(v) * float64(time.Second))
}
