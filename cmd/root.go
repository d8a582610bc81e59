// Package cmd contains the CLI commands for trendsync
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ethpandaops/trendsync/pkg/engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Global vars needed for cobra CLI
var (
	cfgFile string
	logger  *logrus.Logger
)

// rootCmd represents the base command
//
//nolint:gochecknoglobals // Cobra commands are typically global
var rootCmd = &cobra.Command{
	Use:   "trendsync",
	Short: "Harvest keyword popularity into an analytical store",
	Long: `trendsync harvests keyword popularity metrics per geography from a signal
provider and merges them into an analytical store. Each run resumes from the
store's watermark, so re-running is safe.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error, fatal, panic), overrides the config file")

	logger = logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = "./config.yaml"
	}
}

// loadConfig reads the config file and applies the log level, the flag winning over the file
func loadConfig(cmd *cobra.Command) (*engine.Config, error) {
	cfg, err := engine.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging
	if flag, err := cmd.Flags().GetString("log-level"); err == nil && flag != "" {
		level = flag
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, defaulting to info")
		parsed = logrus.InfoLevel
	}

	logger.SetLevel(parsed)
	cfg.Logging = parsed.String()

	return cfg, nil
}

// newEngine loads the config and builds the engine service
func newEngine(ctx context.Context, cmd *cobra.Command, opts ...engine.Option) (*engine.Service, *engine.Config, error) {
	// Silence usage on error
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	svc, err := engine.NewService(ctx, logger, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}

	return svc, cfg, nil
}
