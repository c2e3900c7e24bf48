package parser

import (
	"html"
	"iter"
	"net/url"
	"regexp"
	"strings"
)

// imgSrcPattern matches <img ... src="..."> with a double-quoted src.
// Single-quoted or unquoted src attributes are not matched.
var imgSrcPattern = regexp.MustCompile(`(?i)<img\s+[^>]*src="([^"]+)"`)

// ExtractImageURLs scans text for image sources and yields them resolved
// against baseURL, in document order and without deduplication. The
// sequence is lazy and can be ranged over more than once.
func ExtractImageURLs(text, baseURL string) iter.Seq[string] {
	return func(yield func(string) bool) {
		base, err := url.Parse(baseURL)
		if err != nil {
			return
		}

		rest := text
		for {
			loc := imgSrcPattern.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			src := rest[loc[2]:loc[3]]
			rest = rest[loc[1]:]

			resolved, ok := resolveReference(base, src)
			if !ok {
				continue
			}
			if !yield(resolved) {
				return
			}
		}
	}
}

// FirstImageURL returns the first image source in text
func FirstImageURL(text, baseURL string) (string, bool) {
	for u := range ExtractImageURLs(text, baseURL) {
		return u, true
	}
	return "", false
}

// ResolveReference resolves ref against base; absolute references are
// returned unchanged.
func ResolveReference(base, ref string) (string, bool) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	return resolveReference(baseURL, ref)
}

func resolveReference(base *url.URL, ref string) (string, bool) {
	ref = strings.TrimSpace(html.UnescapeString(ref))
	if ref == "" {
		return "", false
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		return ref, true
	}

	return base.ResolveReference(u).String(), true
}
