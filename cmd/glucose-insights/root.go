package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrcode/glucose-insights/internal/config"
	"github.com/mrcode/glucose-insights/internal/logger"
	"github.com/mrcode/glucose-insights/internal/nightscout"
	"github.com/mrcode/glucose-insights/internal/storage"
)

var (
	// Global flags
	verbose bool
	output  string
	cfgFile string

	// Set up by the root pre-run
	cfg       *config.Config
	appLogger = logger.Discard()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "glucose-insights",
	Short: "Glucose analytics and adaptive learning",
	Long: `glucose-insights turns CGM readings, insulin doses and lifestyle data
into insight bundles (patterns, risks, recommendations) and learns from
observed outcomes to tune its ensemble weights.

Commands:
  analyze   Analyze a records file or recent Nightscout data
  learn     Feed a batch of observations to the learning engine
  status    Show stored outcomes and the current reading
  watch     Periodically fetch, analyze, learn and alert`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setup(cmd)
	},
}

// Execute adds all child commands to the root command and runs it until
// interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", outputTable, "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: <user config dir>/glucose-insights/config.yaml)")
}

// setup loads and validates configuration and builds the logger
func setup(cmd *cobra.Command) error {
	if err := checkOutput(output); err != nil {
		return err
	}

	c, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := c.Log.Level
	if verbose {
		level = slog.LevelDebug.String()
	}
	l, err := logger.New(level, c.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg, appLogger = c, l
	return nil
}

// newNightscoutClient builds a client from the configuration
func newNightscoutClient() (*nightscout.Client, error) {
	if !cfg.NightscoutConfigured() {
		return nil, fmt.Errorf("nightscout.url is not configured (set it in the config file or GI_NIGHTSCOUT_URL)")
	}
	ns := cfg.Nightscout
	return nightscout.NewClient(ns.URL, ns.APISecret, ns.APIToken, ns.UseToken), nil
}

// openStore opens the configured sink, or returns nil when storage is disabled
func openStore(ctx context.Context) (storage.Store, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	store, err := storage.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	appLogger.Debug("storage opened", "path", cfg.Storage.Path)
	return store, nil
}
