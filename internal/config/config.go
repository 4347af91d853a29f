// Package config provides configuration management for glucose-insights.
// Configuration is loaded from (highest to lowest priority):
// 1. Environment variables (GI_*), including those from a .env file
// 2. YAML file (--config, GLUCOSE_INSIGHTS_CONFIG or the user config dir)
// 3. Defaults
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/mrcode/glucose-insights/internal/learning"
	"github.com/mrcode/glucose-insights/internal/logger"
	"github.com/mrcode/glucose-insights/internal/models"
	"github.com/mrcode/glucose-insights/internal/notifications"
)

const (
	appName        = "glucose-insights"
	configFileName = "config.yaml"
	dotEnvFile     = ".env"
	envConfigPath  = "GLUCOSE_INSIGHTS_CONFIG"
)

// Config holds all configuration
type Config struct {
	// Unit for display, "mg/dL" or "mmol/L". Analysis always runs on mg/dL.
	Unit string `yaml:"unit"`

	Nightscout    NightscoutConfig    `yaml:"nightscout"`
	Learning      LearningConfig      `yaml:"learning"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Storage       StorageConfig       `yaml:"storage"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Watch         WatchConfig         `yaml:"watch"`
	Log           LogConfig           `yaml:"log"`
}

// NightscoutConfig holds connection settings for the upstream server
type NightscoutConfig struct {
	URL       string `yaml:"url"`
	APISecret string `yaml:"apiSecret"` // Plain API secret (will be hashed)
	APIToken  string `yaml:"apiToken"`
	UseToken  bool   `yaml:"useToken"`
	Hours     int    `yaml:"hours"` // Lookback window for fetches
}

// LearningConfig holds the learning engine tunables
type LearningConfig struct {
	LearningRate        float64 `yaml:"learningRate"`
	AdaptationThreshold float64 `yaml:"adaptationThreshold"`
	MaxMemorySize       int     `yaml:"maxMemorySize"`
}

// AnalysisConfig holds aggregator settings
type AnalysisConfig struct {
	AnomalyThreshold float64 `yaml:"anomalyThreshold"`
	Clusters         int     `yaml:"clusters"`
}

// StorageConfig holds the result sink settings
type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NotificationsConfig holds desktop alert settings
type NotificationsConfig struct {
	Enabled       bool `yaml:"enabled"`
	UrgentOnly    bool `yaml:"urgentOnly"`
	RepeatMinutes int  `yaml:"repeatMinutes"` // 0 = no repeat
}

// WatchConfig holds the schedule of the watch loop
type WatchConfig struct {
	Schedule string `yaml:"schedule"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration
func Default() *Config {
	lc := learning.DefaultConfig()
	ns := notifications.DefaultSettings()

	dbPath := "insights.db"
	if dir, err := Dir(); err == nil {
		dbPath = filepath.Join(dir, "insights.db")
	}

	return &Config{
		Unit: models.UnitMgDL,
		Nightscout: NightscoutConfig{
			Hours: 24,
		},
		Learning: LearningConfig{
			LearningRate:        lc.LearningRate,
			AdaptationThreshold: lc.AdaptationThreshold,
			MaxMemorySize:       lc.MaxMemorySize,
		},
		Analysis: AnalysisConfig{
			AnomalyThreshold: 2.0,
			Clusters:         3,
		},
		Storage: StorageConfig{
			Enabled: true,
			Path:    dbPath,
		},
		Notifications: NotificationsConfig{
			Enabled:       ns.Enabled,
			RepeatMinutes: ns.RepeatMinutes,
		},
		Watch: WatchConfig{
			Schedule: "@every 5m",
		},
		Log: LogConfig{
			Level:  "info",
			Format: logger.FormatText,
		},
	}
}

// Dir returns the configuration directory path
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

// Load loads configuration with proper precedence. An explicit path must
// exist; the default file is optional.
func Load(path string) (*Config, error) {
	return load(path, dotEnvFile)
}

func load(path, dotEnv string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = strings.TrimSpace(os.Getenv(envConfigPath))
		explicit = path != ""
	}
	if !explicit {
		if dir, err := Dir(); err == nil {
			path = filepath.Join(dir, configFileName)
		}
	}

	if err := loadFile(cfg, path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// .env never overrides variables already set in the environment
	if err := godotenv.Load(dotEnv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", dotEnv, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays a YAML file onto cfg
func loadFile(cfg *Config, path string) error {
	if path == "" {
		return fs.ErrNotExist
	}

	data, err := os.ReadFile(path) //nolint:gosec // Config path is chosen by the user
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnv applies environment variable overrides
func applyEnv(cfg *Config) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("GI_UNIT", &cfg.Unit)
	str("GI_NIGHTSCOUT_URL", &cfg.Nightscout.URL)
	str("GI_API_SECRET", &cfg.Nightscout.APISecret)
	str("GI_API_TOKEN", &cfg.Nightscout.APIToken)
	boolean("GI_USE_TOKEN", &cfg.Nightscout.UseToken)
	integer("GI_HOURS", &cfg.Nightscout.Hours)

	float("GI_LEARNING_RATE", &cfg.Learning.LearningRate)
	float("GI_ADAPTATION_THRESHOLD", &cfg.Learning.AdaptationThreshold)
	integer("GI_MAX_MEMORY_SIZE", &cfg.Learning.MaxMemorySize)

	float("GI_ANOMALY_THRESHOLD", &cfg.Analysis.AnomalyThreshold)
	integer("GI_CLUSTERS", &cfg.Analysis.Clusters)

	boolean("GI_STORAGE_ENABLED", &cfg.Storage.Enabled)
	str("GI_STORAGE_PATH", &cfg.Storage.Path)

	boolean("GI_NOTIFICATIONS", &cfg.Notifications.Enabled)
	boolean("GI_URGENT_ONLY", &cfg.Notifications.UrgentOnly)
	integer("GI_REPEAT_MINUTES", &cfg.Notifications.RepeatMinutes)

	str("GI_WATCH_SCHEDULE", &cfg.Watch.Schedule)
	str("GI_LOG_LEVEL", &cfg.Log.Level)
	str("GI_LOG_FORMAT", &cfg.Log.Format)

	return errors.Join(errs...)
}

// Validate reports every out-of-range setting
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Unit != models.UnitMgDL && c.Unit != models.UnitMmolL {
		fail("unit must be %s or %s, got %q", models.UnitMgDL, models.UnitMmolL, c.Unit)
	}
	if c.Nightscout.Hours <= 0 {
		fail("nightscout.hours must be positive, got %d", c.Nightscout.Hours)
	}
	if c.Nightscout.UseToken && c.Nightscout.APIToken == "" {
		fail("nightscout.apiToken is required when useToken is set")
	}

	if r := c.Learning.LearningRate; r < learning.MinLearningRate || r > learning.MaxLearningRate {
		fail("learning.learningRate must be within [%g, %g], got %g", learning.MinLearningRate, learning.MaxLearningRate, r)
	}
	if c.Learning.AdaptationThreshold <= 0 {
		fail("learning.adaptationThreshold must be positive, got %g", c.Learning.AdaptationThreshold)
	}
	if c.Learning.MaxMemorySize <= 0 {
		fail("learning.maxMemorySize must be positive, got %d", c.Learning.MaxMemorySize)
	}

	if c.Analysis.AnomalyThreshold <= 0 {
		fail("analysis.anomalyThreshold must be positive, got %g", c.Analysis.AnomalyThreshold)
	}
	if c.Analysis.Clusters < 1 {
		fail("analysis.clusters must be at least 1, got %d", c.Analysis.Clusters)
	}

	if c.Storage.Enabled && c.Storage.Path == "" {
		fail("storage.path is required when storage is enabled")
	}
	if c.Notifications.RepeatMinutes < 0 {
		fail("notifications.repeatMinutes must not be negative, got %d", c.Notifications.RepeatMinutes)
	}

	if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
		fail("watch.schedule %q: %w", c.Watch.Schedule, err)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		fail("log.level: %w", err)
	}
	if f := strings.ToLower(c.Log.Format); f != logger.FormatText && f != logger.FormatJSON {
		fail("log.format must be %s or %s, got %q", logger.FormatText, logger.FormatJSON, c.Log.Format)
	}

	return errors.Join(errs...)
}

// NightscoutConfigured reports whether a server URL is set
func (c *Config) NightscoutConfigured() bool {
	return c.Nightscout.URL != ""
}

// EngineConfig returns the learning engine tunables
func (c *Config) EngineConfig() learning.Config {
	return learning.Config{
		LearningRate:        c.Learning.LearningRate,
		AdaptationThreshold: c.Learning.AdaptationThreshold,
		MaxMemorySize:       c.Learning.MaxMemorySize,
	}
}

// NotificationSettings returns the notification manager settings
func (c *Config) NotificationSettings() notifications.Settings {
	return notifications.Settings{
		Enabled:       c.Notifications.Enabled,
		UrgentOnly:    c.Notifications.UrgentOnly,
		RepeatMinutes: c.Notifications.RepeatMinutes,
		Unit:          c.Unit,
	}
}
