// Package urlpolicy implements scheme/extension/keyword filtering and the
// dedup-key normalization shared by the queue, the worker, and the HTML
// processor.
package urlpolicy

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

var ErrInvalidURL = errors.New("invalid URL")

// deniedExtensions is a fixed set of binary/asset suffixes rejected
// case-insensitively.
var deniedExtensions = map[string]bool{
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".svg": true,
	".bmp": true, ".webp": true, ".ico": true,
	".mp3": true, ".wav": true, ".flac": true,
	".mp4": true, ".avi": true, ".mov": true, ".wmv": true, ".mkv": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".exe": true, ".dmg": true, ".apk": true, ".deb": true, ".rpm": true,
	".css": true, ".js": true, ".jar": true, ".class": true, ".wasm": true,
}

// deniedKeywords are rejected anywhere in the lowercased URL.
var deniedKeywords = []string{"download", "file", "attachment", "binary", "install"}

// Accept reports whether rawURL passes the scheme, extension, and keyword
// filters. It does not normalize; callers that need the dedup key should
// also call Normalize.
func Accept(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	lower := strings.ToLower(rawURL)
	for _, kw := range deniedKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if deniedExtensions[ext] {
		return false
	}

	return true
}

// Normalize produces the dedup key for a URL: lowercase scheme and host,
// fragment stripped, trailing slash removed from non-root paths, query
// strings retained. Idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrInvalidURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.Path != "" && u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// ResolveURL resolves a relative href against a page's base URL and returns
// its normalized, absolute form.
func ResolveURL(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	rel, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	resolved := base.ResolveReference(rel)
	return Normalize(resolved.String())
}

// IsSameDomain compares hosts after stripping a leading "www." from each.
// Not used in the core enqueue path; useful for extensions such as
// domain-scoped discovery.
func IsSameDomain(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return stripWWW(strings.ToLower(ua.Host)) == stripWWW(strings.ToLower(ub.Host))
}

func stripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}
