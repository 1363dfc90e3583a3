// Package naming derives output filenames and result keys from URLs.
package naming

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Homepage is the key used for a URL without path or query.
const Homepage = "_homepage"

// DefaultExtension is appended by FilenameFor when none is given.
const DefaultExtension = "png"

var unsafeChars = regexp.MustCompile(`[^a-z0-9-_]`)

// Normalize returns the lower-cased path and query of rawURL, leading slash
// removed and every character outside [a-z0-9-_] replaced by an underscore.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}

	key := u.EscapedPath()
	if u.RawQuery != "" {
		key += "?" + escapeQuery(u.RawQuery)
	}
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		key = Homepage
	}

	return unsafeChars.ReplaceAllString(strings.ToLower(key), "_"), nil
}

// escapeQuery percent-encodes the bytes a browser encodes in a query string,
// leaving existing escapes alone.
func escapeQuery(q string) string {
	var b strings.Builder
	for i := 0; i < len(q); i++ {
		c := q[i]
		if c <= 0x20 || c >= 0x7f || c == '"' || c == '#' || c == '<' || c == '>' || c == '\'' {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// FilenameFor returns the file name a capture of rawURL is stored under.
func FilenameFor(rawURL, ext string) (string, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	key, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}
	return key + "." + ext, nil
}

// StableID returns the hex MD5 of the normalized path and query. URLs on
// different hosts sharing a path and query get the same id.
func StableID(rawURL string) (string, error) {
	key, err := Normalize(rawURL)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]), nil
}

// DateSubfolder formats t as /YYYYMMDD/HHMMSS.
func DateSubfolder(t time.Time) string {
	return t.Format("/20060102/150405")
}

// SwapOrigin replaces the scheme and host of rawURL with origin. A path on
// origin is kept as a prefix.
func SwapOrigin(rawURL, origin string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", rawURL, err)
	}
	o, err := url.Parse(strings.TrimSuffix(origin, "/"))
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", origin, err)
	}
	if o.Scheme == "" || o.Host == "" {
		return "", fmt.Errorf("reference %q is not an absolute URL", origin)
	}

	swapped := o.Scheme + "://" + o.Host + o.EscapedPath() + u.EscapedPath()
	if u.RawQuery != "" {
		swapped += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		swapped += "#" + u.EscapedFragment()
	}
	return swapped, nil
}
