package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/mrcode/glucose-insights/internal/analysis"
	"github.com/mrcode/glucose-insights/internal/learning"
	"github.com/mrcode/glucose-insights/internal/models"
	"github.com/mrcode/glucose-insights/internal/nightscout"
	"github.com/mrcode/glucose-insights/internal/notifications"
	"github.com/mrcode/glucose-insights/internal/storage"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Periodically fetch, analyze, learn and alert",
	Long: `Run on the configured schedule (watch.schedule, cron syntax or @every):
fetch recent Nightscout data, analyze it with the current ensemble weights,
store the bundle, alert on risks and learn from readings not seen before.
Runs until interrupted. --test-notify sends one desktop notification first.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runWatch(cmd.Context())
	},
}

var watchTestNotify bool

func init() {
	watchCmd.Flags().BoolVar(&watchTestNotify, "test-notify", false, "Send a test notification before watching")
	rootCmd.AddCommand(watchCmd)
}

type seriesFetcher interface {
	FetchSeries(ctx context.Context, hours int) (*nightscout.FetchResult, error)
}

type alerter interface {
	CheckAndNotify(bundle *models.InsightBundle) (int, error)
}

// watcher runs one fetch-analyze-learn cycle per tick. The engine lives as
// long as the watcher, so learning accumulates across ticks.
type watcher struct {
	fetcher    seriesFetcher
	aggregator *analysis.Aggregator
	engine     *learning.Engine
	store      storage.Store // nil when storage is disabled
	alerts     alerter       // nil when notifications are disabled
	hours      int
	threshold  float64
	logger     *slog.Logger

	lastSeen time.Time
}

func runWatch(ctx context.Context) error {
	client, err := newNightscoutClient()
	if err != nil {
		return err
	}

	if err := client.TestConnection(ctx); err != nil {
		// Cycles retry on schedule, so an unreachable server is not fatal
		appLogger.Warn("nightscout not reachable", "url", cfg.Nightscout.URL, "error", err)
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	w := &watcher{
		fetcher:    client,
		aggregator: analysis.NewAggregator(analysis.WithClusters(cfg.Analysis.Clusters), analysis.WithLogger(appLogger)),
		engine:     learning.New(cfg.EngineConfig(), learning.WithLogger(appLogger)),
		store:      store,
		hours:      cfg.Nightscout.Hours,
		threshold:  cfg.Analysis.AnomalyThreshold,
		logger:     appLogger,
	}
	if cfg.Notifications.Enabled || watchTestNotify {
		manager := notifications.NewManager(cfg.NotificationSettings(), nil, appLogger)
		if watchTestNotify {
			if err := manager.SendTestNotification(); err != nil {
				return fmt.Errorf("test notification: %w", err)
			}
			appLogger.Info("test notification sent")
		}
		if cfg.Notifications.Enabled {
			w.alerts = manager
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.Watch.Schedule, func() {
		if err := w.tick(ctx); err != nil {
			appLogger.Error("watch cycle failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling %q: %w", cfg.Watch.Schedule, err)
	}

	appLogger.Info("watching", "schedule", cfg.Watch.Schedule, "hours", cfg.Nightscout.Hours, "storage", store != nil)

	// First cycle right away, then on schedule
	if err := w.tick(ctx); err != nil {
		appLogger.Error("watch cycle failed", "error", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	appLogger.Info("watch stopped")
	return nil
}

// tick runs one cycle
func (w *watcher) tick(ctx context.Context) error {
	res, err := w.fetcher.FetchSeries(ctx, w.hours)
	if err != nil {
		return err
	}
	warnRejected(res.Rejected)

	glucose := res.Glucose.Sorted().Readings
	bundle, err := w.aggregator.Analyze(ctx, analysis.Input{
		Glucose:          glucose,
		Insulin:          alignInsulin(glucose, res.Insulin.Readings),
		AnomalyThreshold: w.threshold,
		Weights:          w.engine.Weights(),
	})
	if err != nil {
		return err
	}
	w.logger.Info("analyzed", "readings", len(glucose), "risks", len(bundle.Risks), "confidence", bundle.Confidence)

	if w.store != nil {
		if err := w.store.SaveInsights(ctx, bundle); err != nil {
			return err
		}
	}
	if w.alerts != nil {
		if _, err := w.alerts.CheckAndNotify(bundle); err != nil {
			w.logger.Warn("notification failed", "error", err)
		}
	}

	fresh := w.unseen(glucose)
	if len(fresh) == 0 {
		w.logger.Debug("no new readings to learn from")
		return nil
	}

	outcome := w.engine.Learn(ctx, models.GlucoseBatch(fresh))
	if outcome.Degraded {
		// Readings stay unseen so the next cycle retries them
		w.logger.Warn("learning degraded", "summary", outcome.Summary)
		return nil
	}
	w.lastSeen = fresh[len(fresh)-1].Timestamp
	w.logger.Info("learned", "readings", len(fresh), "adaptation", outcome.AdaptationLevel)

	status := w.engine.Status()
	w.logger.Info("learning trend",
		"trend", status.Insights.Trend,
		"change", status.Insights.Change,
		"calls", status.Insights.MetricsConsidered)

	if w.store != nil {
		if err := w.store.SaveOutcome(ctx, &outcome, status); err != nil {
			return err
		}
	}
	return nil
}

// unseen returns the sorted readings newer than the last learned one
func (w *watcher) unseen(readings []models.Reading) []models.Reading {
	sorted := models.SortReadings(readings)
	for i, r := range sorted {
		if r.Timestamp.After(w.lastSeen) {
			return sorted[i:]
		}
	}
	return nil
}
