// Command coupler is the CLI front end for the logical-coupling miner: it
// registers repositories, runs and watches analysis tasks, and queries the
// resulting coupling graph and hotspot list. Its root-command bootstrap
// (load config, build a logger, wire a Service) mirrors the teacher's
// cmd/crisk/main.go PersistentPreRun pattern.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coderisk/coupler/internal/config"
	"github.com/coderisk/coupler/internal/logging"
	"github.com/coderisk/coupler/internal/orchestrator"
	"github.com/coderisk/coupler/internal/storage"
)

var (
	Version = "dev"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
	svc     orchestrator.Service
	store   storage.Store
	closeFn func() error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if closeFn != nil {
			_ = closeFn()
		}
		os.Exit(1)
	}
	if closeFn != nil {
		_ = closeFn()
	}
}

var rootCmd = &cobra.Command{
	Use:     "coupler",
	Short:   "Logical coupling miner - find files that change together",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("failed to load config, using defaults")
			cfg = config.Default()
		}

		level := logging.INFO
		if verbose {
			level = logging.DEBUG
		}
		if err := logging.Initialize(logging.Config{
			Level:      level,
			OutputFile: filepath.Join(cfg.LogDir, fmt.Sprintf("run-%d.log", time.Now().Unix())),
			AddSource:  verbose,
		}); err != nil {
			logger.WithError(err).Warn("failed to initialize file logger, continuing with console logging only")
		}

		switch cfg.Storage.Type {
		case "postgres":
			store, err = storage.NewPostgresStore(cfg.Storage.PostgresDSN, logger)
		default:
			store, err = storage.NewSQLiteStore(cfg.Storage.SQLitePath, logger)
		}
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		closeFn = store.Close

		svc = orchestrator.New(store, cfg, logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .coupler/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(couplingCmd)
	rootCmd.AddCommand(hotspotsCmd)
	rootCmd.AddCommand(clusterCmd)
}
