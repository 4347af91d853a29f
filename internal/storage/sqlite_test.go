package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrcode/glucose-insights/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "insights.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// fixedClock returns a clock that advances one second per call
func fixedClock(start time.Time) func() time.Time {
	n := 0
	return func() time.Time {
		n++
		return start.Add(time.Duration(n) * time.Second)
	}
}

func TestSaveAndRecentInsights(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.now = fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	generated := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		bundle := &models.InsightBundle{
			GeneratedAt:     generated,
			Confidence:      0.1 * float64(i+1),
			Risks:           []models.Risk{{Kind: models.RiskHighStress, Level: models.RiskLevelMedium}},
			Recommendations: []string{"Consider stress management techniques"},
			Patterns: []models.Pattern{{
				Type:       models.PatternGlucoseStats,
				Data:       models.GlucoseStats{Count: 10 + i},
				Confidence: 0.1,
			}},
		}
		require.NoError(t, store.SaveInsights(ctx, bundle))
		assert.NotEmpty(t, bundle.ID, "id should be assigned")
	}

	records, err := store.RecentInsights(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first
	assert.InDelta(t, 0.3, records[0].Bundle.Confidence, 1e-9)
	assert.InDelta(t, 0.2, records[1].Bundle.Confidence, 1e-9)
	assert.True(t, records[0].StoredAt.After(records[1].StoredAt))
	assert.True(t, records[0].Bundle.GeneratedAt.Equal(generated))
	assert.True(t, records[0].Bundle.HasRisk(models.RiskHighStress))

	p, ok := records[0].Bundle.Pattern(models.PatternGlucoseStats)
	require.True(t, ok)
	data, ok := p.Data.(map[string]any)
	require.True(t, ok, "pattern data decodes as generic JSON")
	assert.Equal(t, float64(12), data["count"])
}

func TestSaveInsights_KeepsID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	bundle := &models.InsightBundle{ID: "bundle-1"}
	require.NoError(t, store.SaveInsights(ctx, bundle))
	assert.Equal(t, "bundle-1", bundle.ID)

	// Duplicate ids are rejected
	assert.Error(t, store.SaveInsights(ctx, &models.InsightBundle{ID: "bundle-1"}))
}

func TestSaveInsights_Nil(t *testing.T) {
	store := newTestStore(t)
	assert.Error(t, store.SaveInsights(context.Background(), nil))
	assert.Error(t, store.SaveOutcome(context.Background(), nil, models.SystemStatus{}))
}

func TestSaveAndRecentOutcomes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	store.now = fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	status := models.SystemStatus{
		MemorySizes:     map[string]int{"glucose": 5},
		MaxMemorySize:   10000,
		ModelAccuracies: models.ModelAccuracy{"glucose_prediction": 0.85},
		AdaptiveWeights: models.AdaptiveWeights{models.MethodNeural: 0.4, models.MethodStatistical: 0.6},
		LearningRate:    0.011,
	}

	first := &models.LearningOutcome{
		Timestamp:       time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
		Summary:         "Processed 5 observations across 1 domains; total improvement 0.900",
		AdaptationLevel: models.AdaptationHigh,
	}
	second := &models.LearningOutcome{
		Summary:         "Learning failed; engine state unchanged",
		AdaptationLevel: models.AdaptationLow,
		Degraded:        true,
	}
	require.NoError(t, store.SaveOutcome(ctx, first, status))
	require.NoError(t, store.SaveOutcome(ctx, second, models.SystemStatus{}))

	records, err := store.RecentOutcomes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.True(t, records[0].Outcome.Degraded)
	assert.Equal(t, second.ID, records[0].Outcome.ID)

	got := records[1]
	assert.Equal(t, first.Summary, got.Outcome.Summary)
	assert.Equal(t, models.AdaptationHigh, got.Outcome.AdaptationLevel)
	assert.Equal(t, 5, got.Status.MemorySizes["glucose"])
	assert.InDelta(t, 0.85, got.Status.ModelAccuracies["glucose_prediction"], 1e-9)
	assert.InDelta(t, 0.011, got.Status.LearningRate, 1e-12)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "insights.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.SaveInsights(ctx, &models.InsightBundle{Confidence: 0.5}))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	records, err := store.RecentInsights(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecent_Empty(t *testing.T) {
	store := newTestStore(t)

	insights, err := store.RecentInsights(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, insights)

	outcomes, err := store.RecentOutcomes(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestTimeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 15, 123456789, time.FixedZone("CET", 3600))

	got, err := parseTime(formatTime(ts))
	require.NoError(t, err)
	assert.True(t, got.Equal(ts))

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
