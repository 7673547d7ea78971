// Package discovery locates a competitor's commercially relevant pages.
// Sitemap parsing is tried first (cheap, authoritative); when the sitemap
// is missing or yields no high-value pages it falls back to link-pattern
// matching over the homepage and one hop of internal links. Manual
// overrides always win and are never downgraded by automated discovery.
package discovery

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compintel/internal/fetch"
	"github.com/sells-group/compintel/internal/model"
)

// Confidence levels by discovery method.
const (
	confidenceManual  = 1.0
	confidenceSitemap = 0.9
	confidencePattern = 0.6
)

// Result is the outcome of a discovery pass. Incomplete is a non-fatal
// status: zero high-value pages were found, and the run proceeds with
// whatever is here at reduced overall confidence.
type Result struct {
	Pages      []model.DiscoveredPage `json:"pages"`
	Incomplete bool                   `json:"incomplete"`
}

// Engine runs discovery through the fetch layer.
type Engine struct {
	fetcher        *fetch.Fetcher
	maxSitemapURLs int
	maxLinkFetches int
}

// NewEngine creates a discovery Engine. maxSitemapURLs caps how many
// sitemap entries are considered; maxLinkFetches caps the second-hop
// fetches in pattern mode.
func NewEngine(fetcher *fetch.Fetcher, maxSitemapURLs, maxLinkFetches int) *Engine {
	if maxSitemapURLs <= 0 {
		maxSitemapURLs = 200
	}
	if maxLinkFetches <= 0 {
		maxLinkFetches = 10
	}
	return &Engine{
		fetcher:        fetcher,
		maxSitemapURLs: maxSitemapURLs,
		maxLinkFetches: maxLinkFetches,
	}
}

// Discover classifies the competitor's site into commercial page
// categories. The returned page set is keyed by normalized URL; within a
// run it only ever grows.
func (e *Engine) Discover(ctx context.Context, profile model.CompetitorProfile) (*Result, error) {
	base, err := url.Parse(profile.RootURL)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: bad root url %q", profile.RootURL)
	}
	if base.Host == "" {
		return nil, eris.Errorf("discovery: bad root url %q", profile.RootURL)
	}

	set := newPageSet()

	// Manual overrides first: maximum confidence, never overridden.
	for _, override := range profile.ManualOverrides {
		cat := classifyPath(override)
		set.add(model.DiscoveredPage{
			URL:        normalizeURL(override),
			Category:   cat,
			Method:     model.DiscoveryMethodManual,
			Confidence: confidenceManual,
		})
	}

	// Sitemap pass.
	sitemapURLs := e.fetchSitemapURLs(ctx, base)
	if len(sitemapURLs) > e.maxSitemapURLs {
		sitemapURLs = sitemapURLs[:e.maxSitemapURLs]
	}
	for _, su := range sitemapURLs {
		cat := classifyPath(su)
		if cat == model.PageCategoryUnknown {
			continue
		}
		set.add(model.DiscoveredPage{
			URL:        normalizeURL(su),
			Category:   cat,
			Method:     model.DiscoveryMethodSitemap,
			Confidence: confidenceSitemap,
		})
	}

	// Fall back to link patterns when the sitemap gave us nothing of
	// value. The homepage plus one hop of internal links is enough to
	// find a nav-linked pricing page on most marketing sites.
	if !set.hasHighValue() {
		e.discoverByPatterns(ctx, base, set)
	}

	pages := set.pages()
	incomplete := !set.hasHighValue()
	if incomplete {
		zap.L().Warn("discovery: no high-value pages found",
			zap.String("competitor", profile.Name),
			zap.Int("pages", len(pages)),
		)
	} else {
		zap.L().Info("discovery: complete",
			zap.String("competitor", profile.Name),
			zap.Int("pages", len(pages)),
		)
	}

	return &Result{Pages: pages, Incomplete: incomplete}, nil
}

// discoverByPatterns matches keywords over homepage links, then fetches a
// bounded number of still-unknown candidates one hop deep to classify
// their own links.
func (e *Engine) discoverByPatterns(ctx context.Context, base *url.URL, set *pageSet) {
	home, err := e.fetcher.Fetch(ctx, base.String())
	if err != nil {
		zap.L().Warn("discovery: homepage fetch failed", zap.Error(err))
		return
	}

	links := extractLinks(home.Content, base)
	var hop []string
	for _, l := range links {
		cat := classifyPath(l.URL)
		if cat == model.PageCategoryUnknown {
			cat = classifyText(l.Anchor)
		}
		if cat != model.PageCategoryUnknown {
			set.add(model.DiscoveredPage{
				URL:        l.URL,
				Category:   cat,
				Method:     model.DiscoveryMethodLinkPattern,
				Confidence: confidencePattern,
			})
			continue
		}
		if len(hop) < e.maxLinkFetches {
			hop = append(hop, l.URL)
		}
	}

	if set.hasHighValue() || len(hop) == 0 {
		return
	}

	// Second hop: nav pages sometimes link pricing from an inner page.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, hu := range hop {
		g.Go(func() error {
			doc, err := e.fetcher.Fetch(gCtx, hu)
			if err != nil {
				return nil // per-URL failures don't abort the hop
			}
			for _, l := range extractLinks(doc.Content, base) {
				cat := classifyPath(l.URL)
				if cat == model.PageCategoryUnknown {
					cat = classifyText(l.Anchor)
				}
				if cat == model.PageCategoryUnknown {
					continue
				}
				set.add(model.DiscoveredPage{
					URL:        l.URL,
					Category:   cat,
					Method:     model.DiscoveryMethodLinkPattern,
					Confidence: confidencePattern,
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

// pageSet is an add-only set of discovered pages keyed by normalized URL.
// Re-adding a page may raise its confidence but never lowers it, and a
// manual-override entry is never replaced.
type pageSet struct {
	mu    sync.Mutex
	byURL map[string]model.DiscoveredPage
}

func newPageSet() *pageSet {
	return &pageSet{byURL: make(map[string]model.DiscoveredPage)}
}

func (s *pageSet) add(p model.DiscoveredPage) {
	if p.URL == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byURL[p.URL]
	if !ok {
		s.byURL[p.URL] = p
		return
	}
	if existing.Method == model.DiscoveryMethodManual {
		return
	}
	if p.Confidence > existing.Confidence {
		s.byURL[p.URL] = p
	}
}

func (s *pageSet) hasHighValue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byURL {
		for _, hv := range model.HighValueCategories() {
			if p.Category == hv {
				return true
			}
		}
	}
	return false
}

func (s *pageSet) pages() []model.DiscoveredPage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.DiscoveredPage, 0, len(s.byURL))
	for _, p := range s.byURL {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
