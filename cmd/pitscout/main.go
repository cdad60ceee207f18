package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pitscout/internal/config"
	"pitscout/internal/logging"
)

var (
	cfgFile  string
	envFile  string
	logLevel string

	cfg       *config.Config
	logger    zerolog.Logger
	logCloser io.Closer
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pitscout",
		Short: "Golden pit and panic wash formation scanner for A-shares",
		Long: `Pitscout finds "golden pit" formations in daily bars: a sharp decline,
a short base and a rebound. Fast, deep pits are labelled panic wash.

Examples:
  pitscout detect 603212 600519
  pitscout scan --stocks sources/stock_list.csv --publish
  pitscout backtest 601969.SS --look-ahead 20
  pitscout serve --addr :8080
  pitscout daemon`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level: trace, debug, info, warn, error")

	rootCmd.AddCommand(detectCmd(), scanCmd(), backtestCmd(), serveCmd(), daemonCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, logCloser, err = logging.FromConfig(cfg.Log)
	if err != nil {
		return err
	}
	return nil
}
