// Package cmd holds the tradedash command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tradedash/config"
	"tradedash/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "tradedash",
	Short:         "Trading dashboard client for the accumulation backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log := logger.GetLogger()

		// .env is optional
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("Error loading .env file")
		}

		loaded, err := config.LoadConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded

		if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
			return fmt.Errorf("failed to configure logger: %w", err)
		}

		if cw := cfg.Logging.CloudWatch; cw.Enabled {
			logger.InitCloudWatch(cw.Region, cw.Namespace)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd, tableCmd, bookCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// startReport begins the periodic runtime report when logging.level is "report".
func startReport(ctx context.Context, log *logger.Log) {
	level := cfg.Logging.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if strings.ToLower(level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
}
