package export

import (
	"encoding/xml"
	"fmt"
	"os"
	"time"

	"github.com/BenjaminSRussell/urlmon/internal/parser"
	"github.com/BenjaminSRussell/urlmon/internal/types"
)

// SitemapConfig holds export configuration
type SitemapConfig struct {
	OutputFile        string
	IncludeLastmod    bool
	IncludeChangefreq bool
	DefaultPriority   float64
}

// URLSet represents the XML sitemap structure
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// URL represents a single URL in the sitemap
type URL struct {
	Loc        string  `xml:"loc"`
	Lastmod    string  `xml:"lastmod,omitempty"`
	Changefreq string  `xml:"changefreq,omitempty"`
	Priority   float64 `xml:"priority,omitempty"`
}

// BuildURLSet keeps the URLs whose latest visit answered 2xx, in order of
// first appearance
func BuildURLSet(visits []types.Visit, config SitemapConfig) URLSet {
	latest := make(map[string]types.Visit)
	order := make([]string, 0)

	for _, v := range visits {
		prev, seen := latest[v.URL]
		if !seen {
			order = append(order, v.URL)
		}
		if !seen || !v.CheckedAt.Before(prev.CheckedAt) {
			latest[v.URL] = v
		}
	}

	urlSet := URLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  make([]URL, 0),
	}

	for _, loc := range order {
		v := latest[loc]
		// Only live pages belong in a sitemap
		if v.Kind != types.KindOK || !parser.IsSuccess(v.StatusCode) {
			continue
		}

		u := URL{
			Loc:      v.URL,
			Priority: config.DefaultPriority,
		}

		if config.IncludeLastmod && !v.CheckedAt.IsZero() {
			u.Lastmod = v.CheckedAt.UTC().Format(time.RFC3339)
		}

		if config.IncludeChangefreq {
			u.Changefreq = "weekly"
		}

		urlSet.URLs = append(urlSet.URLs, u)
	}

	return urlSet
}

// WriteSitemap writes the sitemap for visits and returns the URL count
func WriteSitemap(visits []types.Visit, config SitemapConfig) (int, error) {
	urlSet := BuildURLSet(visits, config)

	output, err := xml.MarshalIndent(urlSet, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to marshal XML: %w", err)
	}

	xmlContent := []byte(xml.Header + string(output) + "\n")

	if err := os.WriteFile(config.OutputFile, xmlContent, 0644); err != nil {
		return 0, fmt.Errorf("failed to write sitemap: %w", err)
	}

	return len(urlSet.URLs), nil
}
