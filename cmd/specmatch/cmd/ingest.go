package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Load spectra into the library database",
	Long: `Reads spectra from MSP, CSV, JSON or Parquet files, validates them,
and loads them into the library database. The format is detected from
each file's extension.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	index, st, err := openIndex(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	size := cfg.Ingest.BatchSize
	if batchSize > 0 {
		size = batchSize
	}
	pipeline := ingest.NewPipeline(index, st, &ingest.Config{
		BatchSize:      size,
		ProgressReport: cfg.Batch.ProgressReport,
		Replace:        replaceExisting,
	}, log.WithComponent("ingest").Logger)

	var loaded, failed int64
	for _, path := range args {
		result, err := pipeline.ProcessFile(ctx, path)
		if err != nil {
			return fmt.Errorf("ingest of %s failed: %w", path, err)
		}
		loaded += result.Loaded
		failed += result.Failed

		fmt.Printf("%s: %d loaded, %d failed in %s\n",
			path, result.Loaded, result.Failed, result.Duration.Round(time.Millisecond))
		for _, msg := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", msg)
		}
	}

	log.Info("Ingest complete",
		zap.Int64("loaded", loaded),
		zap.Int64("failed", failed),
		zap.Int("library_size", index.Len()))
	return nil
}
