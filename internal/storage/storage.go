// Package storage persists insight bundles and learning outcomes
package storage

import (
	"context"
	"time"

	"github.com/mrcode/glucose-insights/internal/models"
)

// Store defines the interface for result storage backends
type Store interface {
	// Insights
	SaveInsights(ctx context.Context, bundle *models.InsightBundle) error
	RecentInsights(ctx context.Context, limit int) ([]*InsightRecord, error)

	// Learning
	SaveOutcome(ctx context.Context, outcome *models.LearningOutcome, status models.SystemStatus) error
	RecentOutcomes(ctx context.Context, limit int) ([]*OutcomeRecord, error)

	Close() error
}

// InsightRecord is a stored insight bundle. Pattern data decodes as
// generic JSON values.
type InsightRecord struct {
	StoredAt time.Time             `json:"storedAt" yaml:"storedAt"`
	Bundle   *models.InsightBundle `json:"bundle" yaml:"bundle"`
}

// OutcomeRecord is a stored learning outcome with the engine status after it
type OutcomeRecord struct {
	StoredAt time.Time               `json:"storedAt" yaml:"storedAt"`
	Outcome  *models.LearningOutcome `json:"outcome" yaml:"outcome"`
	Status   models.SystemStatus     `json:"status" yaml:"status"`
}
