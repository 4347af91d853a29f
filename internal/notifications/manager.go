// Package notifications raises desktop alerts for risks found in insight bundles
package notifications

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/mrcode/glucose-insights/internal/models"
)

// Alert level constants
const (
	alertUrgent = "urgent"
	alertNormal = "normal"
)

// Settings controls which risks are surfaced and how often
type Settings struct {
	Enabled       bool   `yaml:"enabled"`
	UrgentOnly    bool   `yaml:"urgentOnly"`
	RepeatMinutes int    `yaml:"repeatMinutes"` // 0 alerts once until the risk resolves
	Unit          string `yaml:"unit"`
}

// DefaultSettings returns the default notification settings
func DefaultSettings() Settings {
	return Settings{
		Enabled:       true,
		RepeatMinutes: 30,
		Unit:          models.UnitMgDL,
	}
}

// Notifier delivers a notification to the user
type Notifier interface {
	Notify(title, message string, urgent bool) error
}

// DesktopNotifier sends notifications through the OS notification service
type DesktopNotifier struct{}

// Notify shows a notification; urgent ones also play the alert sound
func (DesktopNotifier) Notify(title, message string, urgent bool) error {
	if urgent {
		return beeep.Alert(title, message, "")
	}
	return beeep.Notify(title, message, "")
}

// Manager decides which risks warrant an alert and rate-limits them
type Manager struct {
	settings      Settings
	notifier      Notifier
	lastAlertTime map[models.RiskKind]time.Time
	logger        *slog.Logger
	now           func() time.Time
	mu            sync.Mutex
}

// NewManager creates a new notification manager. A nil notifier selects
// the desktop notifier.
func NewManager(settings Settings, notifier Notifier, logger *slog.Logger) *Manager {
	if notifier == nil {
		notifier = DesktopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		settings:      settings,
		notifier:      notifier,
		lastAlertTime: make(map[models.RiskKind]time.Time),
		logger:        logger,
		now:           time.Now,
	}
}

// CheckAndNotify alerts on the risks of a bundle and returns how many
// notifications were sent. Risk kinds absent from the bundle are treated as
// resolved, so they alert again as soon as they come back.
func (m *Manager) CheckAndNotify(bundle *models.InsightBundle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if bundle == nil || !m.settings.Enabled {
		return 0, nil
	}

	m.clearResolved(bundle.Risks)

	sent := 0
	var errs []error
	for _, risk := range bundle.Risks {
		level := m.shouldAlert(risk)
		if level == "" || !m.due(risk.Kind) {
			continue
		}

		title, message := m.formatNotification(bundle, risk)
		if err := m.notifier.Notify(title, message, level == alertUrgent); err != nil {
			errs = append(errs, fmt.Errorf("notifying %s: %w", risk.Kind, err))
			continue
		}

		m.lastAlertTime[risk.Kind] = m.now()
		sent++
		m.logger.Info("notification sent", "risk", risk.Kind, "level", level)
	}

	return sent, errors.Join(errs...)
}

// due reports whether a risk kind may be alerted again
func (m *Manager) due(kind models.RiskKind) bool {
	lastTime, ok := m.lastAlertTime[kind]
	if !ok {
		return true
	}
	if m.settings.RepeatMinutes <= 0 {
		// No repeat, only alert once per risk kind
		return false
	}
	repeatDuration := time.Duration(m.settings.RepeatMinutes) * time.Minute
	return m.now().Sub(lastTime) >= repeatDuration
}

// shouldAlert determines the alert level of a risk, empty for none
func (m *Manager) shouldAlert(risk models.Risk) string {
	if risk.Kind == models.RiskSevereHypoglycemia || risk.Level == models.RiskLevelHigh {
		return alertUrgent
	}
	if m.settings.UrgentOnly {
		return ""
	}
	return alertNormal
}

// formatGlucose renders a mg/dL value in the configured unit
func (m *Manager) formatGlucose(mgdl float64) string {
	if m.settings.Unit == models.UnitMmolL {
		return fmt.Sprintf("%.1f mmol/L", models.ToMmol(mgdl))
	}
	return fmt.Sprintf("%.0f mg/dL", mgdl)
}

// formatNotification creates the notification title and message
func (m *Manager) formatNotification(bundle *models.InsightBundle, risk models.Risk) (string, string) {
	var title, message string

	switch risk.Kind {
	case models.RiskSevereHypoglycemia:
		title = "⚠️ SEVERE HYPOGLYCEMIA RISK"
		message = risk.Message
		if p, ok := bundle.Pattern(models.PatternHypoglycemia); ok {
			if hypo, ok := p.Data.(models.HypoglycemiaResult); ok {
				message = fmt.Sprintf("%d low readings, lowest %s", hypo.Episodes, m.formatGlucose(hypo.MinValue))
			}
		}
	case models.RiskIncreasingTrend:
		title = "⬆️ Rising Glucose Trend"
		message = risk.Message
	case models.RiskAnomalyRate:
		title = "❗ Unusual Glucose Readings"
		message = risk.Message
	case models.RiskHighStress:
		title = "High Stress"
		message = risk.Message
	case models.RiskInsufficientSleep:
		title = "Insufficient Sleep"
		message = risk.Message
	default:
		title = "Glucose Insights"
		message = risk.Message
	}

	if len(bundle.Recommendations) > 0 {
		message += "\n" + bundle.Recommendations[0]
	}
	return title, message
}

// clearResolved forgets the alert time of every kind not in risks
func (m *Manager) clearResolved(risks []models.Risk) {
	active := make(map[models.RiskKind]bool, len(risks))
	for _, r := range risks {
		active[r.Kind] = true
	}
	for kind := range m.lastAlertTime {
		if !active[kind] {
			delete(m.lastAlertTime, kind)
			m.logger.Debug("risk resolved", "risk", kind)
		}
	}
}

// SendTestNotification sends a test notification
func (m *Manager) SendTestNotification() error {
	return m.notifier.Notify("Glucose Insights", "Test notification - alerts are working!", false)
}
