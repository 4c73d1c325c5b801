package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/kgraph/internal/config"
	"github.com/rohankatakam/kgraph/internal/errors"
	"github.com/rohankatakam/kgraph/internal/logging"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile     string
	verbose     bool
	backendFlag string
	logger      *logrus.Logger
	cfg         *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if e, ok := errors.As(err); ok && verbose {
			fmt.Fprintf(os.Stderr, "Error: %s\n", e.DetailedString())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		logging.Close()
		os.Exit(exitCode(err))
	}
	logging.Close()
}

// exitCode lets scripts tell bad input from an outage worth retrying
func exitCode(err error) int {
	if _, typed := errors.As(err); !typed {
		return 1
	}
	switch errors.GetType(err) {
	case errors.ErrorTypeConfig, errors.ErrorTypeValidation:
		return 2
	case errors.ErrorTypeStoreUnavailable:
		return 3
	case errors.ErrorTypeQuery:
		return 4
	default:
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:   "kgraph",
	Short: "kgraph - merge extracted news entities into a knowledge graph and query it",
	Long: `kgraph ingests batches of entities and relationships extracted from news
articles, deduplicates people, organisations and locations against what is
already stored, and writes everything in one transaction per batch.

The read side runs a graph query and turns the rows into a report with a
summary, key findings and an optional LLM analysis.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			if cfgFile != "" {
				return err
			}
			logger.WithError(err).Warn("Failed to load config, using defaults")
			cfg = config.Default()
		}
		if backendFlag != "" {
			cfg.Store.Backend = backendFlag
		}
		if verbose {
			cfg.Log.Level = "debug"
		}

		if err := logging.Initialize(logConfig(cfg.Log)); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return cfg.Validate()
	},
}

func logConfig(lc config.LogConfig) logging.Config {
	return logging.Config{
		Level:      logging.ParseLevel(lc.Level),
		OutputFile: lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		JSONFormat: lc.Format == "json",
		AddSource:  lc.Level == "debug",
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .kgraph/config.yaml, then ~/.kgraph/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "graph store: neo4j or sqlite (overrides store.backend)")

	rootCmd.SetVersionTemplate(`kgraph {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(wipeCmd)
	rootCmd.AddCommand(serveMCPCmd)
	rootCmd.AddCommand(configureCmd)
}
