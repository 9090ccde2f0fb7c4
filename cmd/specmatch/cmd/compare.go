package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/batch"
	"github.com/specmatch/specmatch/internal/config"
	"github.com/specmatch/specmatch/internal/export"
	"github.com/specmatch/specmatch/internal/ingest"
	"github.com/specmatch/specmatch/internal/library"
	"github.com/specmatch/specmatch/internal/logger"
	"github.com/specmatch/specmatch/internal/spectrum"
)

var compareCmd = &cobra.Command{
	Use:   "compare [query-file]",
	Short: "Run a batch comparison against the library",
	Long: `Compares query spectra against every spectrum in the library and
writes forward and reverse match factors for all pairs.

With a query file argument the file's spectra are compared against the
library. Without one the library is compared against itself, which is
useful for finding near duplicates.

Reports are written to the output directory as report.csv and
report.parquet, with any per-pair failures in failures.csv.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompare,
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	_, st, err := openIndex(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	candidates, err := st.LoadLibrary(ctx)
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("library %s is empty, run ingest first", cfg.Store.Path)
	}

	queries := candidates
	if len(args) == 1 {
		queries, err = loadQueries(ctx, cfg, log, args[0])
		if err != nil {
			return err
		}
	}

	binCfg, err := binningConfig(cfg)
	if err != nil {
		return err
	}

	progress := func(completed, total int) {
		if cfg.Batch.ProgressReport > 0 && completed%cfg.Batch.ProgressReport == 0 {
			log.Info("Comparison progress",
				zap.Int("completed", completed),
				zap.Int("total", total))
		}
	}
	comparator, err := newComparator(cfg, log, progress)
	if err != nil {
		return err
	}

	report, err := comparator.CompareAll(ctx, queries, candidates, binCfg)
	if err != nil {
		return fmt.Errorf("comparison failed: %w", err)
	}

	if err := st.SaveReport(ctx, report); err != nil {
		log.Warn("Failed to persist report", zap.Error(err))
	}
	if err := writeReports(report); err != nil {
		return err
	}

	fmt.Printf("Compared %d queries against %d candidates (%d pairs, %d failed)\n",
		len(report.Queries), len(report.Candidates), report.Size(), report.FailedCount())
	printTopMatches(report)
	return nil
}

// loadQueries reads query spectra from a file into a transient index,
// leaving the library database untouched.
func loadQueries(ctx context.Context, cfg *config.Config, log *logger.Logger, path string) ([]*spectrum.Spectrum, error) {
	scorer, err := newScorer(cfg)
	if err != nil {
		return nil, err
	}
	queryIndex := library.New("queries", scorer, nil, log.WithComponent("library").WithLibrary("queries").Logger)

	pipeline := ingest.NewPipeline(queryIndex, nil, &ingest.Config{
		BatchSize:      cfg.Ingest.BatchSize,
		ProgressReport: cfg.Batch.ProgressReport,
	}, log.WithComponent("ingest").Logger)

	result, err := pipeline.ProcessFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries from %s: %w", path, err)
	}
	if result.Loaded == 0 {
		return nil, fmt.Errorf("no usable spectra in %s", path)
	}

	queries := make([]*spectrum.Spectrum, 0, queryIndex.Len())
	for _, id := range queryIndex.IDs() {
		spec, err := queryIndex.Get(id)
		if err != nil {
			continue
		}
		queries = append(queries, spec)
	}
	return queries, nil
}

func writeReports(report *batch.Report) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeReportFile("report.csv", func(f *os.File) error {
		return export.WriteCSVReport(f, report)
	}); err != nil {
		return err
	}
	if err := writeReportFile("report.parquet", func(f *os.File) error {
		return export.WriteParquetReport(f, report)
	}); err != nil {
		return err
	}
	if report.FailedCount() > 0 {
		if err := writeReportFile("failures.csv", func(f *os.File) error {
			return export.WriteCSVFailures(f, report)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeReportFile(name string, write func(*os.File) error) error {
	path := filepath.Join(outputDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func printTopMatches(report *batch.Report) {
	for _, query := range report.Queries {
		rankings := report.TopK(query, 3, includeSelf)
		if len(rankings) == 0 {
			continue
		}
		fmt.Printf("%s:\n", query)
		for i, r := range rankings {
			fmt.Printf("  %d. %-30s forward=%.4f reverse=%.4f\n",
				i+1, r.Candidate, r.Forward, r.Reverse)
		}
	}
}
