package notifications

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mrcode/glucose-insights/internal/models"
)

type sentNotification struct {
	title   string
	message string
	urgent  bool
}

type fakeNotifier struct {
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(title, message string, urgent bool) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{title, message, urgent})
	return nil
}

func newTestManager(settings Settings) (*Manager, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return NewManager(settings, notifier, slog.New(slog.NewTextHandler(io.Discard, nil))), notifier
}

func riskBundle(kinds ...models.RiskKind) *models.InsightBundle {
	bundle := &models.InsightBundle{Recommendations: []string{"Keep fast-acting glucose available"}}
	for _, k := range kinds {
		level := models.RiskLevelMedium
		if k == models.RiskSevereHypoglycemia {
			level = models.RiskLevelHigh
		}
		bundle.Risks = append(bundle.Risks, models.Risk{Kind: k, Level: level, Message: string(k)})
	}
	return bundle
}

func TestManager_shouldAlert(t *testing.T) {
	manager, _ := newTestManager(DefaultSettings())

	tests := []struct {
		name     string
		kind     models.RiskKind
		level    string
		expected string
	}{
		{"Severe hypoglycemia", models.RiskSevereHypoglycemia, models.RiskLevelHigh, alertUrgent},
		{"High level", models.RiskAnomalyRate, models.RiskLevelHigh, alertUrgent},
		{"Rising trend", models.RiskIncreasingTrend, models.RiskLevelMedium, alertNormal},
		{"Stress", models.RiskHighStress, models.RiskLevelMedium, alertNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := manager.shouldAlert(models.Risk{Kind: tt.kind, Level: tt.level})
			if result != tt.expected {
				t.Errorf("shouldAlert() = %s, want %s", result, tt.expected)
			}
		})
	}
}

func TestManager_shouldAlert_UrgentOnly(t *testing.T) {
	settings := DefaultSettings()
	settings.UrgentOnly = true
	manager, _ := newTestManager(settings)

	if result := manager.shouldAlert(models.Risk{Kind: models.RiskIncreasingTrend, Level: models.RiskLevelMedium}); result != "" {
		t.Errorf("shouldAlert() = %s, want empty (urgent only)", result)
	}
	if result := manager.shouldAlert(models.Risk{Kind: models.RiskSevereHypoglycemia}); result != alertUrgent {
		t.Errorf("shouldAlert() = %s, want %s", result, alertUrgent)
	}
}

func TestManager_CheckAndNotify(t *testing.T) {
	manager, notifier := newTestManager(DefaultSettings())

	sent, err := manager.CheckAndNotify(riskBundle(models.RiskSevereHypoglycemia, models.RiskHighStress))
	if err != nil {
		t.Fatalf("CheckAndNotify() error = %v", err)
	}
	if sent != 2 || len(notifier.sent) != 2 {
		t.Fatalf("sent = %d, want 2", sent)
	}
	if !notifier.sent[0].urgent {
		t.Error("severe hypoglycemia should be urgent")
	}
	if notifier.sent[1].urgent {
		t.Error("stress should not be urgent")
	}
	if !strings.Contains(notifier.sent[0].message, "Keep fast-acting glucose available") {
		t.Errorf("message should carry the first recommendation, got: %s", notifier.sent[0].message)
	}
}

func TestManager_CheckAndNotify_Repeat(t *testing.T) {
	settings := DefaultSettings()
	settings.RepeatMinutes = 30
	manager, notifier := newTestManager(settings)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	bundle := riskBundle(models.RiskIncreasingTrend)
	_, _ = manager.CheckAndNotify(bundle)

	now = now.Add(10 * time.Minute)
	_, _ = manager.CheckAndNotify(bundle)
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d notifications within the repeat interval, want 1", len(notifier.sent))
	}

	now = now.Add(25 * time.Minute)
	_, _ = manager.CheckAndNotify(bundle)
	if len(notifier.sent) != 2 {
		t.Errorf("sent %d notifications after the repeat interval, want 2", len(notifier.sent))
	}
}

func TestManager_CheckAndNotify_NoRepeat(t *testing.T) {
	settings := DefaultSettings()
	settings.RepeatMinutes = 0
	manager, notifier := newTestManager(settings)

	bundle := riskBundle(models.RiskInsufficientSleep)
	_, _ = manager.CheckAndNotify(bundle)
	_, _ = manager.CheckAndNotify(bundle)

	if len(notifier.sent) != 1 {
		t.Errorf("sent %d notifications, want 1", len(notifier.sent))
	}
}

func TestManager_CheckAndNotify_Disabled(t *testing.T) {
	settings := DefaultSettings()
	settings.Enabled = false
	manager, notifier := newTestManager(settings)

	sent, err := manager.CheckAndNotify(riskBundle(models.RiskSevereHypoglycemia))
	if err != nil || sent != 0 || len(notifier.sent) != 0 {
		t.Errorf("sent = %d err = %v, want nothing sent", sent, err)
	}
}

func TestManager_CheckAndNotify_Error(t *testing.T) {
	manager, notifier := newTestManager(DefaultSettings())
	notifier.err = errors.New("no notification daemon")

	sent, err := manager.CheckAndNotify(riskBundle(models.RiskHighStress))
	if err == nil {
		t.Fatal("Expected error from notifier")
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}

	// A failed alert is retried on the next check
	notifier.err = nil
	if sent, _ := manager.CheckAndNotify(riskBundle(models.RiskHighStress)); sent != 1 {
		t.Errorf("sent = %d after recovery, want 1", sent)
	}
}

func TestManager_formatNotification(t *testing.T) {
	manager, _ := newTestManager(DefaultSettings())

	tests := []struct {
		kind          models.RiskKind
		expectedTitle string
	}{
		{models.RiskSevereHypoglycemia, "⚠️ SEVERE HYPOGLYCEMIA RISK"},
		{models.RiskIncreasingTrend, "⬆️ Rising Glucose Trend"},
		{models.RiskAnomalyRate, "❗ Unusual Glucose Readings"},
		{models.RiskInsufficientSleep, "Insufficient Sleep"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			title, _ := manager.formatNotification(&models.InsightBundle{}, models.Risk{Kind: tt.kind})
			if title != tt.expectedTitle {
				t.Errorf("title = %s, want %s", title, tt.expectedTitle)
			}
		})
	}
}

func TestManager_formatNotification_MmolL(t *testing.T) {
	settings := DefaultSettings()
	settings.Unit = models.UnitMmolL
	manager, _ := newTestManager(settings)

	bundle := &models.InsightBundle{
		Patterns: []models.Pattern{{
			Type: models.PatternHypoglycemia,
			Data: models.HypoglycemiaResult{Episodes: 2, MinValue: 36},
		}},
	}

	_, message := manager.formatNotification(bundle, models.Risk{Kind: models.RiskSevereHypoglycemia})
	if !strings.Contains(message, "2.0 mmol/L") {
		t.Errorf("Message should contain mmol/L value, got: %s", message)
	}
}

func TestManager_CheckAndNotify_ResolvedRiskAlertsAgain(t *testing.T) {
	settings := DefaultSettings()
	settings.RepeatMinutes = 0
	manager, notifier := newTestManager(settings)

	severe := riskBundle(models.RiskSevereHypoglycemia)
	if sent, _ := manager.CheckAndNotify(severe); sent != 1 {
		t.Fatalf("first alert sent = %d, want 1", sent)
	}
	if sent, _ := manager.CheckAndNotify(severe); sent != 0 {
		t.Errorf("ongoing risk sent = %d, want 0", sent)
	}

	// The risk clears, then returns
	_, _ = manager.CheckAndNotify(riskBundle())
	if len(manager.lastAlertTime) != 0 {
		t.Errorf("alert state not cleared: %v", manager.lastAlertTime)
	}
	if sent, _ := manager.CheckAndNotify(severe); sent != 1 {
		t.Errorf("returning risk sent = %d, want 1", sent)
	}
	if len(notifier.sent) != 2 {
		t.Errorf("sent %d notifications in total, want 2", len(notifier.sent))
	}
}

func TestManager_CheckAndNotify_ClearsOnlyResolvedKinds(t *testing.T) {
	settings := DefaultSettings()
	settings.RepeatMinutes = 30
	manager, notifier := newTestManager(settings)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	_, _ = manager.CheckAndNotify(riskBundle(models.RiskHighStress, models.RiskIncreasingTrend))
	now = now.Add(5 * time.Minute)
	_, _ = manager.CheckAndNotify(riskBundle(models.RiskIncreasingTrend))

	if _, ok := manager.lastAlertTime[models.RiskHighStress]; ok {
		t.Error("stress alert should be cleared once the risk is gone")
	}
	if _, ok := manager.lastAlertTime[models.RiskIncreasingTrend]; !ok {
		t.Error("trend alert should still be rate limited")
	}

	// Stress returns inside the repeat window of the trend
	now = now.Add(5 * time.Minute)
	sent, _ := manager.CheckAndNotify(riskBundle(models.RiskHighStress, models.RiskIncreasingTrend))
	if sent != 1 || len(notifier.sent) != 3 {
		t.Errorf("sent = %d (total %d), want only the returning stress alert", sent, len(notifier.sent))
	}
}

func TestManager_SendTestNotification(t *testing.T) {
	manager, notifier := newTestManager(DefaultSettings())

	if err := manager.SendTestNotification(); err != nil {
		t.Fatalf("SendTestNotification() error = %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("sent %d notifications, want 1", len(notifier.sent))
	}
}
