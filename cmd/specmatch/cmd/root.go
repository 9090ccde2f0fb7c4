// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/specmatch/specmatch/internal/batch"
	"github.com/specmatch/specmatch/internal/binning"
	"github.com/specmatch/specmatch/internal/cache"
	"github.com/specmatch/specmatch/internal/config"
	"github.com/specmatch/specmatch/internal/library"
	"github.com/specmatch/specmatch/internal/logger"
	"github.com/specmatch/specmatch/internal/similarity"
	"github.com/specmatch/specmatch/internal/store"
)

var (
	configPath string

	// Flags for ingest command
	replaceExisting bool
	batchSize       int

	// Flags for compare command
	outputDir   string
	workers     int
	includeSelf bool
)

var rootCmd = &cobra.Command{
	Use:   "specmatch",
	Short: "specmatch - GC-MS spectral comparison engine",
	Long: `specmatch loads, indexes and compares mass spectra.

It maintains a spectral library backed by SQLite, ranks spectra by
similarity (cosine, dot or euclidean metrics over binned vectors), runs
bulk library-against-library comparisons, and serves prepared series and
reports to a viewer over HTTP.`,
	Version: "0.2.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(statsCmd)

	ingestCmd.Flags().BoolVar(&replaceExisting, "replace", false, "Replace spectra with duplicate identifiers")
	ingestCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Batch size for processing (0 = from config)")

	compareCmd.Flags().StringVarP(&outputDir, "out", "o", ".", "Directory for report files")
	compareCmd.Flags().IntVar(&workers, "workers", 0, "Number of worker goroutines (0 = from config)")
	compareCmd.Flags().BoolVar(&includeSelf, "include-self", false, "Keep flagged self matches in rankings")
}

// setup loads configuration and the logger shared by all commands.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}

// binningConfig translates the configuration surface into the engine type.
func binningConfig(cfg *config.Config) (binning.Config, error) {
	mode, err := binning.ParseMode(cfg.Binning.Normalization)
	if err != nil {
		return binning.Config{}, err
	}
	bc := binning.Config{
		MassMin:       cfg.Binning.MassMin,
		MassMax:       cfg.Binning.MassMax,
		BinWidth:      cfg.Binning.BinWidth,
		Normalization: mode,
	}
	return bc, bc.Validate()
}

// newScorer builds the similarity scorer from configuration.
func newScorer(cfg *config.Config) (*similarity.Scorer, error) {
	metric, err := similarity.ParseMetric(cfg.Similarity.Metric)
	if err != nil {
		return nil, err
	}
	return similarity.NewScorer(metric), nil
}

// newComparator builds the batch comparator from configuration.
func newComparator(cfg *config.Config, log *logger.Logger, onProgress func(int, int)) (*batch.Comparator, error) {
	scorer, err := newScorer(cfg)
	if err != nil {
		return nil, err
	}
	w := cfg.Batch.Workers
	if workers > 0 {
		w = workers
	}
	return batch.NewComparator(scorer, batch.Config{
		Workers:    w,
		OnProgress: onProgress,
	}, log.WithComponent("batch").Logger), nil
}

// openIndex opens the persistent library and loads it into an index.
func openIndex(cfg *config.Config, log *logger.Logger) (*library.Index, *store.Store, error) {
	scorer, err := newScorer(cfg)
	if err != nil {
		return nil, nil, err
	}

	var shared *cache.VectorCache
	if cfg.Cache.Enabled {
		shared, err = cache.New(&cache.Config{
			RedisURL:   cfg.Cache.RedisURL,
			KeyPrefix:  cfg.Cache.KeyPrefix,
			DefaultTTL: cfg.Cache.DefaultTTL,
			MaxConns:   cfg.Cache.MaxConns,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			// The cache is an optional tier; run without it.
			fmt.Fprintf(os.Stderr, "Warning: vector cache unavailable: %v\n", err)
			shared = nil
		}
	}

	st, err := store.NewStore(&store.Config{
		Path:         cfg.Store.Path,
		MaxOpenConns: cfg.Store.MaxOpenConns,
		MaxIdleConns: cfg.Store.MaxIdleConns,
		BusyTimeout:  cfg.Store.BusyTimeout,
	}, log.WithComponent("store").Logger)
	if err != nil {
		return nil, nil, err
	}

	index := library.New(cfg.Store.Path, scorer, shared, log.WithComponent("library").WithLibrary(cfg.Store.Path).Logger)
	return index, st, nil
}
