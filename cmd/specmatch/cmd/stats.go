package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/specmatch/specmatch/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := store.NewStore(&store.Config{
		Path:         cfg.Store.Path,
		MaxOpenConns: cfg.Store.MaxOpenConns,
		MaxIdleConns: cfg.Store.MaxIdleConns,
		BusyTimeout:  cfg.Store.BusyTimeout,
	}, log.WithComponent("store").Logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	count, err := st.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count spectra: %w", err)
	}

	fmt.Printf("Library:  %s\n", cfg.Store.Path)
	fmt.Printf("Spectra:  %d\n", count)
	fmt.Printf("Binning:  [%g, %g) width %g, %s normalization\n",
		cfg.Binning.MassMin, cfg.Binning.MassMax, cfg.Binning.BinWidth,
		cfg.Binning.Normalization)
	fmt.Printf("Metric:   %s\n", cfg.Similarity.Metric)
	return nil
}
