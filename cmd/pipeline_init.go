package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compintel/internal/categorize"
	"github.com/sells-group/compintel/internal/complaints"
	"github.com/sells-group/compintel/internal/discovery"
	"github.com/sells-group/compintel/internal/extract"
	"github.com/sells-group/compintel/internal/fetch"
	"github.com/sells-group/compintel/internal/pipeline"
	"github.com/sells-group/compintel/internal/store"
	"github.com/sells-group/compintel/pkg/anthropic"
	"github.com/sells-group/compintel/pkg/search"
)

// pipelineEnv holds the initialized store, clients, and pipeline needed by
// the analyze/discover/complaints/serve commands.
type pipelineEnv struct {
	Store      store.Store
	Fetcher    *fetch.Fetcher
	Discovery  *discovery.Engine
	Aggregator *complaints.Aggregator
	Pipeline   *pipeline.Pipeline
}

// Close releases resources held by the environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url required for postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, fetch layer, API clients, and pipeline.
// Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic.key is required (COMPINTEL_ANTHROPIC_KEY)")
	}
	if cfg.Search.Key == "" || cfg.Search.EngineID == "" {
		return nil, eris.New("search.key and search.engine_id are required (COMPINTEL_SEARCH_KEY, COMPINTEL_SEARCH_ENGINE_ID)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	fetcher := newFetcher()
	disc := discovery.NewEngine(fetcher, cfg.Discovery.MaxSitemapURLs, cfg.Discovery.MaxLinkFetches)

	searchClient := search.NewClient(cfg.Search.Key, cfg.Search.EngineID,
		search.WithBaseURL(cfg.Search.BaseURL),
		search.WithDailyQuota(cfg.Search.DailyQuota))

	agg := complaints.NewAggregator(searchClient, fetcher, complaints.Options{
		PerSourceQuota: cfg.Complaints.PerSourceQuota,
		HitsPerQuery:   cfg.Complaints.HitsPerQuery,
		MinScore:       cfg.Complaints.MinScore,
		Concurrency:    cfg.Complaints.Concurrency,
	})

	llm := anthropic.NewClient(cfg.Anthropic.Key)
	cat := categorize.NewCategorizer(llm, categorize.Options{
		Model:           cfg.Anthropic.HaikuModel,
		ConfidenceFloor: cfg.Categorize.ConfidenceFloor,
		Concurrency:     cfg.Categorize.Concurrency,
	})
	ext := extract.NewEngine(llm, extract.Options{
		Model:        cfg.Anthropic.SonnetModel,
		MaxTokens:    cfg.Extract.MaxTokens,
		ContextBytes: cfg.Extract.ContextKilobytes * 1024,
	})

	p := pipeline.New(st, disc, fetcher, agg, cat, ext)

	return &pipelineEnv{
		Store:      st,
		Fetcher:    fetcher,
		Discovery:  disc,
		Aggregator: agg,
		Pipeline:   p,
	}, nil
}

func newFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Policy{
		PerHostRate:   cfg.Fetch.PerHostRate,
		Burst:         cfg.Fetch.Burst,
		PerHostBudget: cfg.Fetch.PerHostBudget,
		MaxRetries:    cfg.Fetch.MaxRetries,
		Timeout:       time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		WaitTimeout:   time.Duration(cfg.Fetch.WaitTimeoutSecs) * time.Second,
		RespectRobots: cfg.Fetch.RespectRobots,
		MaxBodyBytes:  cfg.Fetch.MaxBodyKilobytes * 1024,
	})
}
