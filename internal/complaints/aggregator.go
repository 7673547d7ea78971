// Package complaints collects customer complaints about a competitor from
// social platforms, review sites, and forums. Search queries come from an
// embedded template set; every hit is fetched, stripped to text, scored
// against a complaint heuristic, and near-duplicates are collapsed with
// all source URLs retained as provenance.
package complaints

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compintel/internal/fetch"
	"github.com/sells-group/compintel/internal/model"
	"github.com/sells-group/compintel/internal/quota"
	"github.com/sells-group/compintel/pkg/search"
)

// PageFetcher retrieves a URL as a raw document. Satisfied by *fetch.Fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.RawDocument, error)
}

// Options tune the aggregator. Zero values fall back to defaults.
type Options struct {
	// PerSourceQuota caps fetched hits per source type for one run.
	PerSourceQuota int64
	// HitsPerQuery is how many results to request per search query.
	HitsPerQuery int
	// MinScore drops documents scoring below the complaint heuristic.
	MinScore float64
	// Concurrency bounds the number of platforms processed in parallel.
	Concurrency int
	// MaxComplaintBytes truncates stored complaint text.
	MaxComplaintBytes int
}

// DefaultOptions returns the aggregator defaults used when unconfigured.
func DefaultOptions() Options {
	return Options{
		PerSourceQuota:    40,
		HitsPerQuery:      5,
		MinScore:          0.3,
		Concurrency:       3,
		MaxComplaintBytes: 2000,
	}
}

// Result is the output of one collection pass. Failures holds every
// source that degraded or died; it never aborts the pass.
type Result struct {
	Complaints []model.Complaint
	Failures   []model.StageFailure
}

// Aggregator runs the complaint collection stage.
type Aggregator struct {
	searcher search.Client
	fetcher  PageFetcher
	quota    *quota.Counter
	opts     Options
}

// NewAggregator builds an aggregator over a search client and a fetcher.
func NewAggregator(searcher search.Client, fetcher PageFetcher, opts Options) *Aggregator {
	def := DefaultOptions()
	if opts.PerSourceQuota <= 0 {
		opts.PerSourceQuota = def.PerSourceQuota
	}
	if opts.HitsPerQuery <= 0 {
		opts.HitsPerQuery = def.HitsPerQuery
	}
	if opts.MinScore <= 0 {
		opts.MinScore = def.MinScore
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.MaxComplaintBytes <= 0 {
		opts.MaxComplaintBytes = def.MaxComplaintBytes
	}
	return &Aggregator{
		searcher: searcher,
		fetcher:  fetcher,
		quota:    quota.NewCounter(),
		opts:     opts,
	}
}

// Collect gathers complaints for the competitor across all configured
// platforms. Platforms run concurrently; a platform failing is recorded
// in Result.Failures and the rest continue. The returned error is non-nil
// only for malformed inputs or a cancelled context.
func (a *Aggregator) Collect(ctx context.Context, profile model.CompetitorProfile) (*Result, error) {
	if profile.Name == "" {
		return nil, eris.New("complaints: competitor name required")
	}

	platforms, err := buildQueries(profile.Name)
	if err != nil {
		return nil, err
	}

	// Localize search results to the competitor's market.
	searcher := search.ForCountry(a.searcher, profile.Country())

	var (
		mu       sync.Mutex
		raw      []model.Complaint
		failures []model.StageFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)

	for _, pq := range platforms {
		g.Go(func() error {
			found, fail := a.collectPlatform(gctx, searcher, pq)
			mu.Lock()
			raw = append(raw, found...)
			if fail != nil {
				failures = append(failures, *fail)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "complaints: collection cancelled")
	}

	// Dedupe order must not depend on which platform worker finished first.
	sort.SliceStable(raw, func(i, j int) bool {
		if !raw[i].FirstSeen.Equal(raw[j].FirstSeen) {
			return raw[i].FirstSeen.Before(raw[j].FirstSeen)
		}
		return raw[i].SourceURLs[0] < raw[j].SourceURLs[0]
	})

	d := newDeduper()
	var merged int
	for _, c := range raw {
		if d.Add(c) {
			merged++
		}
	}

	result := &Result{Complaints: d.Complaints(), Failures: failures}
	zap.L().Info("complaint collection finished",
		zap.String("competitor", profile.Name),
		zap.Int("collected", len(raw)),
		zap.Int("merged_duplicates", merged),
		zap.Int("retained", len(result.Complaints)),
		zap.Int("failed_sources", len(failures)),
	)
	return result, nil
}

// collectPlatform runs every query for one platform and turns hits into
// candidate complaints. At most one StageFailure is returned per platform.
func (a *Aggregator) collectPlatform(ctx context.Context, searcher search.Client, pq platformQueries) ([]model.Complaint, *model.StageFailure) {
	log := zap.L().With(
		zap.String("platform", pq.Platform),
		zap.String("source_type", string(pq.SourceType)),
	)

	var found []model.Complaint
	seen := make(map[string]struct{})

	for _, query := range pq.Queries {
		if ctx.Err() != nil {
			return found, nil
		}

		hits, err := searcher.Search(ctx, query, a.opts.HitsPerQuery)
		if err != nil {
			return found, a.failure(pq, eris.Wrap(err, "search"))
		}

		for _, hit := range hits {
			if _, dup := seen[hit.Link]; dup {
				continue
			}
			seen[hit.Link] = struct{}{}

			if !a.quota.TryAcquire(string(pq.SourceType), a.opts.PerSourceQuota) {
				log.Warn("source quota exhausted, stopping platform",
					zap.Int64("quota", a.opts.PerSourceQuota))
				return found, a.failure(pq, eris.Errorf("quota of %d hits exhausted", a.opts.PerSourceQuota))
			}

			c, blocked := a.hitToComplaint(ctx, pq, hit)
			if blocked != nil {
				return found, a.failure(pq, blocked)
			}
			if c != nil {
				found = append(found, *c)
			}
		}
	}
	return found, nil
}

// hitToComplaint fetches one search hit and converts it into a complaint
// if it passes the signal score. A blocked host is returned as an error
// so the platform stops; any other fetch failure falls back to the search
// snippet, which still names the source.
func (a *Aggregator) hitToComplaint(ctx context.Context, pq platformQueries, hit search.Hit) (*model.Complaint, error) {
	text := hit.Snippet
	firstSeen := time.Now().UTC()

	doc, err := a.fetcher.Fetch(ctx, hit.Link)
	switch {
	case err == nil:
		text = stripMarkup(doc.Content)
		firstSeen = doc.FetchedAt
	case fetch.IsBlocked(err):
		return nil, eris.Wrap(err, "host blocked")
	default:
		var fe *fetch.Error
		if errors.As(err, &fe) && fe.Kind == fetch.KindPolicy {
			return nil, nil
		}
		if text == "" {
			return nil, nil
		}
		zap.L().Debug("hit fetch failed, using search snippet",
			zap.String("url", hit.Link), zap.Error(err))
	}

	normalized := normalizeText(text)
	if complaintScore(normalized) < a.opts.MinScore {
		return nil, nil
	}

	if len(normalized) > a.opts.MaxComplaintBytes {
		normalized = truncateText(normalized, a.opts.MaxComplaintBytes)
	}
	return &model.Complaint{
		Text:       normalized,
		SourceType: pq.SourceType,
		SourceURLs: []string{hit.Link},
		FirstSeen:  firstSeen,
	}, nil
}

func (a *Aggregator) failure(pq platformQueries, err error) *model.StageFailure {
	return &model.StageFailure{
		Stage:  "complaints:" + pq.Platform,
		Reason: err.Error(),
		At:     time.Now().UTC(),
	}
}
