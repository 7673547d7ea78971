// Package store persists runs and the content-addressed stage cache.
// Two backends implement Store: SQLite for local single-binary use and
// Postgres for shared deployments.
package store

import (
	"context"

	"github.com/sells-group/compintel/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status     model.RunStatus `json:"status,omitempty"`
	Competitor string          `json:"competitor,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
}

// Store defines persistence for the analysis pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, competitor model.CompetitorProfile) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	SaveResult(ctx context.Context, runID string, result *model.AnalysisResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Content-addressed stage cache, keyed (competitor, stage, content
	// hash). Entries are immutable: CachePut is insert-or-ignore and an
	// existing payload is never overwritten.
	CacheGet(ctx context.Context, competitor, stage, hash string) ([]byte, bool, error)
	CachePut(ctx context.Context, competitor, stage, hash string, payload []byte) error
	CacheExists(ctx context.Context, competitor, stage, hash string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
