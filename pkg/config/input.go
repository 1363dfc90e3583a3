package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/root4loot/goutils/fileutil"
	"gopkg.in/yaml.v3"
)

// LoadInputList reads a list of URLs or paths. JSON and YAML files hold a
// string list, XML files are sitemaps, anything else is one entry per line.
// Blank lines and lines starting with # are skipped.
func LoadInputList(path string) ([]string, error) {
	var entries []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := fileutil.DeserializeFromFile(path, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".xml":
		return ParseSitemapFile(path)
	default:
		lines, err := fileutil.ReadFile(path)
		if err != nil {
			return nil, err
		}
		entries = lines
	}

	return clean(entries), nil
}

func clean(entries []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || strings.HasPrefix(e, "#") {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ParseSitemap returns the text of every <loc> element in an XML sitemap.
func ParseSitemap(r io.Reader) ([]string, error) {
	var locs []string

	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse sitemap: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "loc" {
			continue
		}

		var loc string
		if err := dec.DecodeElement(&loc, &start); err != nil {
			return nil, fmt.Errorf("failed to parse sitemap: %w", err)
		}
		if loc = strings.TrimSpace(loc); loc != "" {
			locs = append(locs, loc)
		}
	}

	return locs, nil
}

// ParseSitemapFile reads the sitemap at path.
func ParseSitemapFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseSitemap(f)
}
