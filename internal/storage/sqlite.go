package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/mrcode/glucose-insights/internal/models"
)

// DefaultLimit is used by the Recent queries when limit is not positive
const DefaultLimit = 10

// SQLiteStore implements Store on an SQLite database file
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// Open creates or opens the database at path and initializes the schema
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// SaveInsights stores a bundle, assigning an ID when it has none
func (s *SQLiteStore) SaveInsights(ctx context.Context, bundle *models.InsightBundle) error {
	if bundle == nil {
		return fmt.Errorf("saving insights: nil bundle")
	}
	if bundle.ID == "" {
		bundle.ID = uuid.NewString()
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encoding bundle %s: %w", bundle.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insights (id, generated_at, stored_at, confidence, risk_count, bundle)
		VALUES (?, ?, ?, ?, ?, ?)
	`, bundle.ID, formatTime(bundle.GeneratedAt), formatTime(s.now()), bundle.Confidence, len(bundle.Risks), string(data))
	if err != nil {
		return fmt.Errorf("saving bundle %s: %w", bundle.ID, err)
	}
	return nil
}

// RecentInsights returns stored bundles, newest first
func (s *SQLiteStore) RecentInsights(ctx context.Context, limit int) ([]*InsightRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT stored_at, bundle FROM insights
		ORDER BY stored_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*InsightRecord
	for rows.Next() {
		var storedAt, data string
		if err := rows.Scan(&storedAt, &data); err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}

		rec := &InsightRecord{Bundle: &models.InsightBundle{}}
		if rec.StoredAt, err = parseTime(storedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), rec.Bundle); err != nil {
			return nil, fmt.Errorf("decoding bundle: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveOutcome stores a learning outcome together with the engine status
func (s *SQLiteStore) SaveOutcome(ctx context.Context, outcome *models.LearningOutcome, status models.SystemStatus) error {
	if outcome == nil {
		return fmt.Errorf("saving outcome: nil outcome")
	}
	if outcome.ID == "" {
		outcome.ID = uuid.NewString()
	}

	outcomeData, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encoding outcome %s: %w", outcome.ID, err)
	}
	statusData, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outcomes (id, created_at, stored_at, adaptation_level, degraded, outcome, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, outcome.ID, formatTime(outcome.Timestamp), formatTime(s.now()), string(outcome.AdaptationLevel),
		outcome.Degraded, string(outcomeData), string(statusData))
	if err != nil {
		return fmt.Errorf("saving outcome %s: %w", outcome.ID, err)
	}
	return nil
}

// RecentOutcomes returns stored outcomes, newest first
func (s *SQLiteStore) RecentOutcomes(ctx context.Context, limit int) ([]*OutcomeRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT stored_at, outcome, status FROM outcomes
		ORDER BY stored_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*OutcomeRecord
	for rows.Next() {
		var storedAt, outcomeData, statusData string
		if err := rows.Scan(&storedAt, &outcomeData, &statusData); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}

		rec := &OutcomeRecord{Outcome: &models.LearningOutcome{}}
		if rec.StoredAt, err = parseTime(storedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(outcomeData), rec.Outcome); err != nil {
			return nil, fmt.Errorf("decoding outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(statusData), &rec.Status); err != nil {
			return nil, fmt.Errorf("decoding status: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing stored time %q: %w", s, err)
	}
	return t, nil
}
