// Package config resolves defaults, a config file and overrides into a Job.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is one layer of configuration. Nil pointers and empty values are
// unset and leave the layer below untouched when merged.
type Settings struct {
	// Config is the config file to read. It is never read from a file.
	Config string `json:"-" yaml:"-"`

	// ClearInput drops the URL sources of the layers below, leaving an
	// empty URL list unless this layer sets one.
	ClearInput bool `json:"-" yaml:"-"`

	// Input
	Domain string   `json:"domain,omitempty" yaml:"domain,omitempty"`
	Paths  []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	URLs   []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	XML    string   `json:"xml,omitempty" yaml:"xml,omitempty"`

	// Output
	DateSubfolder *bool   `json:"dateSubfolder,omitempty" yaml:"dateSubfolder,omitempty"`
	Label         string  `json:"label,omitempty" yaml:"label,omitempty"`
	OnloadScript  string  `json:"onloadScript,omitempty" yaml:"onloadScript,omitempty"`
	OutputFolder  *string `json:"outputFolder,omitempty" yaml:"outputFolder,omitempty"`
	Folder        string  `json:"folder,omitempty" yaml:"folder,omitempty"`
	Reference     string  `json:"reference,omitempty" yaml:"reference,omitempty"`

	// Processing
	Parallel        *int     `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	SameDomainDelay *float64 `json:"sameDomainDelay,omitempty" yaml:"sameDomainDelay,omitempty"` // seconds
	Threshold       *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`             // percent
	Timeout         *float64 `json:"timeout,omitempty" yaml:"timeout,omitempty"`                 // seconds
	ViewportHeight  *int     `json:"viewportHeight,omitempty" yaml:"viewportHeight,omitempty"`
	ViewportWidth   *int     `json:"viewportWidth,omitempty" yaml:"viewportWidth,omitempty"`
	Wait            *float64 `json:"wait,omitempty" yaml:"wait,omitempty"` // seconds

	// Browser
	Engine            string `json:"engine,omitempty" yaml:"engine,omitempty"`
	Stealth           *bool  `json:"stealth,omitempty" yaml:"stealth,omitempty"`
	UserAgent         string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	RespectCertErrors *bool  `json:"respectCertErrors,omitempty" yaml:"respectCertErrors,omitempty"`
	UseHTTP2          *bool  `json:"useHTTP2,omitempty" yaml:"useHTTP2,omitempty"`
	Captions          *bool  `json:"captions,omitempty" yaml:"captions,omitempty"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Config:            "config.yaml",
		DateSubfolder:     Ptr(false),
		OnloadScript:      "onload.js",
		OutputFolder:      Ptr("screenshots"),
		Parallel:          Ptr(10),
		SameDomainDelay:   Ptr(0.0),
		Threshold:         Ptr(1.0),
		Timeout:           Ptr(30.0),
		ViewportHeight:    Ptr(768),
		ViewportWidth:     Ptr(1366),
		Wait:              Ptr(2.0),
		Engine:            "rod",
		Stealth:           Ptr(false),
		UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
		RespectCertErrors: Ptr(false),
		UseHTTP2:          Ptr(false),
		Captions:          Ptr(false),
	}
}

// Merge returns s with every set field of over applied on top.
func (s Settings) Merge(over Settings) Settings {
	setString(&s.Config, over.Config)
	setString(&s.Domain, over.Domain)
	if over.ClearInput {
		s.Paths, s.URLs, s.XML = nil, nil, ""
	}
	setSlice(&s.Paths, over.Paths)
	setSlice(&s.URLs, over.URLs)
	setString(&s.XML, over.XML)

	setPtr(&s.DateSubfolder, over.DateSubfolder)
	setString(&s.Label, over.Label)
	setString(&s.OnloadScript, over.OnloadScript)
	setPtr(&s.OutputFolder, over.OutputFolder)
	setString(&s.Folder, over.Folder)
	setString(&s.Reference, over.Reference)

	setPtr(&s.Parallel, over.Parallel)
	setPtr(&s.SameDomainDelay, over.SameDomainDelay)
	setPtr(&s.Threshold, over.Threshold)
	setPtr(&s.Timeout, over.Timeout)
	setPtr(&s.ViewportHeight, over.ViewportHeight)
	setPtr(&s.ViewportWidth, over.ViewportWidth)
	setPtr(&s.Wait, over.Wait)

	setString(&s.Engine, over.Engine)
	setPtr(&s.Stealth, over.Stealth)
	setString(&s.UserAgent, over.UserAgent)
	setPtr(&s.RespectCertErrors, over.RespectCertErrors)
	setPtr(&s.UseHTTP2, over.UseHTTP2)
	setPtr(&s.Captions, over.Captions)
	return s
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setSlice(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = append([]string(nil), v...)
	}
}

func setPtr[T any](dst **T, v *T) {
	if v != nil {
		c := *v
		*dst = &c
	}
}

// ReadConfig reads a JSON or YAML config file, chosen by extension.
func ReadConfig(path string) (Settings, error) {
	var s Settings

	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return s, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	return s, nil
}
