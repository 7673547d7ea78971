// Package pipeline orchestrates a competitor analysis run through its
// state machine: pending, discovering, collecting, extracting, merging,
// then a terminal status. Discovery and complaint collection run in
// parallel branches; the three extraction types run concurrently and
// fail independently. A run fails outright only when both input
// branches starve.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compintel/internal/categorize"
	"github.com/sells-group/compintel/internal/complaints"
	"github.com/sells-group/compintel/internal/discovery"
	"github.com/sells-group/compintel/internal/extract"
	"github.com/sells-group/compintel/internal/model"
	"github.com/sells-group/compintel/internal/store"
)

// RunFailedError means the run produced no usable inputs at all: zero
// discovered pages and zero complaints.
type RunFailedError struct {
	RunID string
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("run %s failed: no pages discovered and no complaints collected", e.RunID)
}

// Stage names recorded in failures and cache keys.
const (
	stageDiscovery  = "discovery"
	stageCollection = "collection"
	stageExtraction = "extraction"
	stageMerge      = "merge"
)

// Discoverer finds commercial pages on a competitor's site.
type Discoverer interface {
	Discover(ctx context.Context, profile model.CompetitorProfile) (*discovery.Result, error)
}

// Collector gathers complaints from external platforms.
type Collector interface {
	Collect(ctx context.Context, profile model.CompetitorProfile) (*complaints.Result, error)
}

// Categorizer assigns taxonomy categories to complaints.
type Categorizer interface {
	CategorizeAll(ctx context.Context, cs []model.Complaint) ([]model.Complaint, error)
}

// Extractor runs one structured analysis over fetched documents.
type Extractor interface {
	Extract(ctx context.Context, typ model.AnalysisType, docs []extract.Document) (*extract.Extraction, error)
}

// PageFetcher retrieves discovered page bodies.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*model.RawDocument, error)
}

// Pipeline wires the stages together over a Store.
type Pipeline struct {
	store       store.Store
	discoverer  Discoverer
	fetcher     PageFetcher
	collector   Collector
	categorizer Categorizer
	extractor   Extractor
}

// New assembles a pipeline.
func New(st store.Store, d Discoverer, f PageFetcher, c Collector, cat Categorizer, ex Extractor) *Pipeline {
	return &Pipeline{
		store:       st,
		discoverer:  d,
		fetcher:     f,
		collector:   c,
		categorizer: cat,
		extractor:   ex,
	}
}

// cachedDiscovery is the persisted payload for the discovery stage.
type cachedDiscovery struct {
	Pages      []model.DiscoveredPage `json:"pages"`
	Incomplete bool                   `json:"incomplete"`
}

// Run executes a full analysis for the competitor and persists the run
// through every status transition. The returned result is also saved;
// err is non-nil only for infrastructure failures, cancellation, or a
// fully starved run (*RunFailedError). A starved run returns no result
// body; its failure detail lives on the persisted run record.
func (p *Pipeline) Run(ctx context.Context, profile model.CompetitorProfile) (*model.AnalysisResult, error) {
	run, err := p.store.CreateRun(ctx, profile)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("competitor", profile.Name))
	log.Info("run created")

	var failures []model.StageFailure

	// Discovering.
	if err := p.transition(ctx, run.ID, model.RunStatusDiscovering); err != nil {
		return nil, err
	}
	disc, err := p.discoverPages(ctx, profile)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(err, "pipeline: discovery cancelled")
		}
		failures = append(failures, stageFailure(stageDiscovery, "", err))
		disc = &discovery.Result{}
	}
	if disc.Incomplete {
		failures = append(failures, stageFailure(stageDiscovery, "",
			eris.New("no pricing or features pages found, proceeding at reduced confidence")))
	}

	// Collecting: page bodies and complaints in parallel.
	if err := p.transition(ctx, run.ID, model.RunStatusCollecting); err != nil {
		return nil, err
	}

	var (
		docs      []extract.Document
		collected []model.Complaint
		collectMu sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched := p.fetchPages(gctx, disc.Pages)
		collectMu.Lock()
		docs = fetched
		collectMu.Unlock()
		return gctx.Err()
	})
	g.Go(func() error {
		res, err := p.collector.Collect(gctx, profile)
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			collectMu.Lock()
			failures = append(failures, stageFailure(stageCollection, "", err))
			collectMu.Unlock()
			return nil
		}
		categorized, err := p.categorizer.CategorizeAll(gctx, res.Complaints)
		if err != nil {
			return err
		}
		collectMu.Lock()
		collected = categorized
		failures = append(failures, res.Failures...)
		collectMu.Unlock()
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "pipeline: collection cancelled")
	}

	// Total input starvation fails the run. The failed run record keeps
	// the stage failures, but no result body leaves the pipeline.
	if len(docs) == 0 && len(collected) == 0 {
		failed := p.buildResult(run.ID, profile, nil, nil, nil, failures, model.RunStatusFailed, 0)
		if saveErr := p.store.SaveResult(ctx, run.ID, failed); saveErr != nil {
			log.Error("failed to persist failed run", zap.Error(saveErr))
		}
		log.Warn("run failed: no inputs survived collection")
		return nil, &RunFailedError{RunID: run.ID}
	}

	// Extracting: the three analysis types run concurrently, isolated.
	if err := p.transition(ctx, run.ID, model.RunStatusExtracting); err != nil {
		return nil, err
	}
	extractions, extractFailures := p.extractAll(ctx, docs)
	if ctx.Err() != nil {
		return nil, eris.Wrap(ctx.Err(), "pipeline: extraction cancelled")
	}
	failures = append(failures, extractFailures...)

	// Merging.
	if err := p.transition(ctx, run.ID, model.RunStatusMerging); err != nil {
		return nil, err
	}
	status := model.RunStatusComplete
	if len(failures) > 0 {
		status = model.RunStatusPartial
	}
	confidence := overallConfidence(disc, extractions)
	result := p.buildResult(run.ID, profile, disc.Pages, extractions, collected, failures, status, confidence)

	// A result none of whose findings point back to a source must not be
	// presented as a clean success.
	if !result.HasProvenance() {
		result.Status = model.RunStatusPartial
		result.Failures = append(result.Failures, stageFailure(stageMerge, "",
			eris.New("no finding carries a source pointer")))
	}

	if err := p.store.SaveResult(ctx, run.ID, result); err != nil {
		return nil, err
	}
	log.Info("run finished",
		zap.String("status", string(result.Status)),
		zap.Float64("overall_confidence", confidence),
		zap.Int("pages", len(disc.Pages)),
		zap.Int("complaints", len(collected)),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// discoverPages serves discovery from the stage cache when the profile
// is unchanged, otherwise discovers and caches. A re-run against an
// unchanged profile costs zero fetches.
func (p *Pipeline) discoverPages(ctx context.Context, profile model.CompetitorProfile) (*discovery.Result, error) {
	hash := profileHash(profile)

	if payload, ok, err := p.store.CacheGet(ctx, profile.Name, stageDiscovery, hash); err == nil && ok {
		var cached cachedDiscovery
		if err := json.Unmarshal(payload, &cached); err == nil {
			zap.L().Info("discovery served from cache",
				zap.String("competitor", profile.Name),
				zap.Int("pages", len(cached.Pages)))
			return &discovery.Result{Pages: cached.Pages, Incomplete: cached.Incomplete}, nil
		}
	}

	res, err := p.discoverer.Discover(ctx, profile)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedDiscovery{Pages: res.Pages, Incomplete: res.Incomplete})
	if err == nil {
		if putErr := p.store.CachePut(ctx, profile.Name, stageDiscovery, hash, payload); putErr != nil {
			zap.L().Warn("discovery cache write failed", zap.Error(putErr))
		}
	}
	return res, nil
}

// fetchPages retrieves the body of every discovered page. Individual
// fetch failures drop the page and log; the rest continue.
func (p *Pipeline) fetchPages(ctx context.Context, pages []model.DiscoveredPage) []extract.Document {
	var (
		mu   sync.Mutex
		docs []extract.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, page := range pages {
		g.Go(func() error {
			doc, err := p.fetcher.Fetch(gctx, page.URL)
			if err != nil {
				zap.L().Warn("page fetch failed, dropping from analysis",
					zap.String("url", page.URL), zap.Error(err))
				return nil
			}
			mu.Lock()
			docs = append(docs, extract.Document{Page: page, Doc: *doc})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

// extractAll runs the three analysis types concurrently. Each failure
// is isolated to its type.
func (p *Pipeline) extractAll(ctx context.Context, docs []extract.Document) (map[model.AnalysisType]*extract.Extraction, []model.StageFailure) {
	var (
		mu          sync.Mutex
		extractions = make(map[model.AnalysisType]*extract.Extraction)
		failures    []model.StageFailure
	)

	var wg sync.WaitGroup
	for _, typ := range model.AllAnalysisTypes() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ext, err := p.extractor.Extract(ctx, typ, docs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, stageFailure(stageExtraction, typ, err))
				return
			}
			extractions[typ] = ext
		}()
	}
	wg.Wait()
	return extractions, failures
}

func (p *Pipeline) buildResult(
	runID string,
	profile model.CompetitorProfile,
	pages []model.DiscoveredPage,
	extractions map[model.AnalysisType]*extract.Extraction,
	collected []model.Complaint,
	failures []model.StageFailure,
	status model.RunStatus,
	confidence float64,
) *model.AnalysisResult {
	result := &model.AnalysisResult{
		RunID:             runID,
		Competitor:        profile,
		Status:            status,
		Pages:             pages,
		Complaints:        collected,
		OverallConfidence: confidence,
		Failures:          failures,
		CompletedAt:       time.Now().UTC(),
	}
	if len(collected) > 0 {
		result.CategoryBreakdown = categorize.Breakdown(collected)
	}
	if ext, ok := extractions[model.AnalysisTypePricing]; ok {
		result.Pricing = ext.Pricing
	}
	if ext, ok := extractions[model.AnalysisTypeMonetization]; ok {
		result.Monetization = ext.Monetization
	}
	if ext, ok := extractions[model.AnalysisTypeVision]; ok {
		result.Vision = ext.Vision
	}
	return result
}

func (p *Pipeline) transition(ctx context.Context, runID string, status model.RunStatus) error {
	if err := p.store.UpdateRunStatus(ctx, runID, status); err != nil {
		return eris.Wrapf(err, "pipeline: transition to %s", status)
	}
	zap.L().Debug("run status", zap.String("run_id", runID), zap.String("status", string(status)))
	return nil
}

// overallConfidence averages the confidences of the analyses that
// succeeded, discounted when discovery was incomplete.
func overallConfidence(disc *discovery.Result, extractions map[model.AnalysisType]*extract.Extraction) float64 {
	if len(extractions) == 0 {
		return 0
	}
	var sum float64
	for _, ext := range extractions {
		sum += ext.Confidence
	}
	conf := sum / float64(len(extractions))
	if disc.Incomplete {
		conf *= 0.75
	}
	return conf
}

func stageFailure(stage string, typ model.AnalysisType, err error) model.StageFailure {
	return model.StageFailure{
		Stage:        stage,
		AnalysisType: typ,
		Reason:       err.Error(),
		At:           time.Now().UTC(),
	}
}

// profileHash content-addresses the discovery inputs: any change to the
// profile (root URL, overrides, country) produces a new cache key.
func profileHash(profile model.CompetitorProfile) string {
	payload, _ := json.Marshal(profile)
	return model.HashContent(string(payload))
}
