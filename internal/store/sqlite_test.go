package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compintel/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func testProfile(name string) model.CompetitorProfile {
	return model.CompetitorProfile{Name: name, RootURL: "https://" + name + ".example.com"}
}

func TestSQLite_CreateAndGetRun(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	created, err := s.CreateRun(ctx, testProfile("acme"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.RunStatusPending, created.Status)

	got, err := s.GetRun(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "acme", got.Competitor.Name)
	assert.Nil(t, got.Result)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateRunStatus(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, testProfile("acme"))
	require.NoError(t, err)

	require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusDiscovering))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDiscovering, got.Status)

	// Unknown run IDs error rather than silently updating nothing.
	err = s.UpdateRunStatus(ctx, "missing", model.RunStatusFailed)
	require.Error(t, err)
}

func TestSQLite_SaveResultRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, testProfile("acme"))
	require.NoError(t, err)

	result := &model.AnalysisResult{
		RunID:      run.ID,
		Competitor: testProfile("acme"),
		Status:     model.RunStatusPartial,
		Pages: []model.DiscoveredPage{
			{URL: "https://acme.example.com/pricing", Category: model.PageCategoryPricing, Method: model.DiscoveryMethodSitemap, Confidence: 0.9},
		},
		Pricing: &model.PricingAnalysis{Currency: "USD", Summary: "monthly tiers"},
		Complaints: []model.Complaint{{
			Text:       "crashes constantly",
			SourceType: model.SourceTypeForum,
			SourceURLs: []string{"https://reddit.com/r/pos/1"},
			FirstSeen:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			Category:   model.CategoryPerformance,
		}},
		CategoryBreakdown: map[model.ComplaintCategory]int{model.CategoryPerformance: 1},
		OverallConfidence: 0.72,
		Failures: []model.StageFailure{
			{Stage: "extraction", AnalysisType: model.AnalysisTypeVision, Reason: "response invalid after repair", At: time.Now().UTC()},
		},
		CompletedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveResult(ctx, run.ID, result))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "USD", got.Result.Pricing.Currency)
	assert.Len(t, got.Result.Complaints, 1)
	assert.Equal(t, model.CategoryPerformance, got.Result.Complaints[0].Category)
	assert.InDelta(t, 0.72, got.Result.OverallConfidence, 1e-9)
	require.Len(t, got.Result.Failures, 1)
	assert.Equal(t, model.AnalysisTypeVision, got.Result.Failures[0].AnalysisType)
}

func TestSQLite_ListRuns_Filters(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, testProfile("acme"))
	require.NoError(t, err)
	_, err = s.CreateRun(ctx, testProfile("bravo"))
	require.NoError(t, err)
	require.NoError(t, s.UpdateRunStatus(ctx, a.ID, model.RunStatusComplete))

	t.Run("by status", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, a.ID, runs[0].ID)
	})

	t.Run("by competitor name", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, RunFilter{Competitor: "bravo"})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, "bravo", runs[0].Competitor.Name)
	})

	t.Run("limit", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("no match", func(t *testing.T) {
		runs, err := s.ListRuns(ctx, RunFilter{Competitor: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func TestSQLite_CacheRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	hash := model.HashContent("profile-v1")

	_, ok, err := s.CacheGet(ctx, "acme", "discovery", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CachePut(ctx, "acme", "discovery", hash, []byte(`{"pages":[]}`)))

	payload, ok, err := s.CacheGet(ctx, "acme", "discovery", hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"pages":[]}`, string(payload))

	exists, err := s.CacheExists(ctx, "acme", "discovery", hash)
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestSQLite_CachePutIsInsertOrIgnore verifies cache entries are immutable:
// a second put for the same key keeps the original payload.
func TestSQLite_CachePutIsInsertOrIgnore(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	hash := model.HashContent("x")

	require.NoError(t, s.CachePut(ctx, "acme", "discovery", hash, []byte("original")))
	require.NoError(t, s.CachePut(ctx, "acme", "discovery", hash, []byte("overwrite attempt")))

	payload, ok, err := s.CacheGet(ctx, "acme", "discovery", hash)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "original", string(payload))
}

// TestSQLite_CacheKeyedByAllThreeParts verifies an entry is only a hit when
// competitor, stage, and hash all match.
func TestSQLite_CacheKeyedByAllThreeParts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	hash := model.HashContent("x")

	require.NoError(t, s.CachePut(ctx, "acme", "discovery", hash, []byte("p")))

	_, ok, err := s.CacheGet(ctx, "bravo", "discovery", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.CacheGet(ctx, "acme", "extraction", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.CacheGet(ctx, "acme", "discovery", model.HashContent("y"))
	require.NoError(t, err)
	assert.False(t, ok)
}
