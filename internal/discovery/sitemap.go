package discovery

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// sitemapPaths are tried in order; the first one that parses wins.
var sitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemaps.xml",
}

type sitemapURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// fetchSitemapURLs returns same-host URLs listed in the site's sitemap.
// Sitemap index files are followed one level deep. A missing or garbled
// sitemap returns nil; discovery then falls back to link patterns.
func (e *Engine) fetchSitemapURLs(ctx context.Context, base *url.URL) []string {
	for _, path := range sitemapPaths {
		urls := e.loadSitemap(ctx, base.Scheme+"://"+base.Host+path, base, true)
		if len(urls) > 0 {
			zap.L().Debug("discovery: sitemap found",
				zap.String("path", path),
				zap.Int("urls", len(urls)),
			)
			return urls
		}
	}
	return nil
}

func (e *Engine) loadSitemap(ctx context.Context, sitemapURL string, base *url.URL, followIndex bool) []string {
	doc, err := e.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		zap.L().Debug("discovery: sitemap fetch failed",
			zap.String("url", sitemapURL),
			zap.Error(err),
		)
		return nil
	}
	content := []byte(doc.Content)

	var set sitemapURLSet
	if err := xml.Unmarshal(content, &set); err == nil && len(set.URLs) > 0 {
		var out []string
		for _, u := range set.URLs {
			loc := strings.TrimSpace(u.Loc)
			if loc == "" || !sameHost(loc, base) {
				continue
			}
			out = append(out, loc)
		}
		return out
	}

	if !followIndex {
		return nil
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(content, &idx); err != nil || len(idx.Sitemaps) == 0 {
		return nil
	}

	var out []string
	for _, sm := range idx.Sitemaps {
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		out = append(out, e.loadSitemap(ctx, loc, base, false)...)
		if len(out) >= e.maxSitemapURLs {
			break
		}
	}
	return out
}

func sameHost(rawURL string, base *url.URL) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}
