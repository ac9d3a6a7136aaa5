package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/cityinfo-api/pkg/config"
	"github.com/FACorreiaa/cityinfo-api/pkg/logger"
)

var (
	// Global flags
	configPath string
	logLevel   string

	cfg *config.Config
	appLog *slog.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cityinfo",
	Short: "CityInfo - cities and their points of interest over HTTP",
	Long: `CityInfo serves a catalog of cities and the points of interest they own.

Commands:
  serve    - Run the HTTP API
  migrate  - Manage the database schema
  token    - Mint a development bearer token`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			loaded.Observability.LogLevel = logLevel
		}
		cfg = loaded
		appLog = logger.New(logger.Options{
			Writer: os.Stderr,
			Level:  cfg.Observability.LogLevel,
			Format: cfg.Observability.LogFormat,
		}).With(slog.String("service", cfg.Observability.ServiceName))
		slog.SetDefault(appLog)
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file (defaults to $"+config.FileEnv+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
}
