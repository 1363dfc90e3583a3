package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/root4loot/goutils/log"
)

var absoluteURL = regexp.MustCompile(`^https?://[^/]+`)

// IsAbsolute reports whether u is an absolute http(s) URL.
func IsAbsolute(u string) bool {
	return absoluteURL.MatchString(u)
}

func allAbsolute(urls []string) bool {
	for _, u := range urls {
		if !IsAbsolute(u) {
			return false
		}
	}
	return true
}

// JoinDomain joins path to domain with exactly one separator. Absolute
// URLs are returned unchanged.
func JoinDomain(domain, path string) string {
	if IsAbsolute(path) {
		return path
	}
	switch slashDomain, slashPath := strings.HasSuffix(domain, "/"), strings.HasPrefix(path, "/"); {
	case slashDomain && slashPath:
		return domain + strings.TrimPrefix(path, "/")
	case slashDomain || slashPath:
		return domain + path
	default:
		return domain + "/" + path
	}
}

// deriveURLs picks the first source that applies: a fully absolute URL
// list, paths (or URLs) joined to the domain, then the sitemap.
func deriveURLs(s Settings, xmlPath string) []string {
	if len(s.URLs) > 0 && allAbsolute(s.URLs) {
		return append([]string(nil), s.URLs...)
	}

	if s.Domain != "" {
		paths := s.Paths
		if len(paths) == 0 {
			paths = s.URLs
		}
		if len(paths) == 0 && xmlPath != "" {
			paths = readSitemap(xmlPath)
		}

		urls := make([]string, 0, len(paths))
		for _, p := range paths {
			urls = append(urls, JoinDomain(s.Domain, p))
		}
		return urls
	}

	if xmlPath != "" {
		return readSitemap(xmlPath)
	}

	return []string{}
}

func readSitemap(path string) []string {
	if _, err := os.Stat(path); err != nil {
		log.Debugf("Skipping sitemap %s: %v", path, err)
		return nil
	}

	locs, err := ParseSitemapFile(path)
	if err != nil {
		log.Warnf("Could not read sitemap %s: %v", path, err)
		return nil
	}
	return locs
}
