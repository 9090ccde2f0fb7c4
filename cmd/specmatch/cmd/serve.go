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

	"github.com/specmatch/specmatch/internal/events"
	"github.com/specmatch/specmatch/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the spectral comparison API server",
	Long: `Starts the HTTP server that exposes the spectral library, similarity
matching and batch comparison over a JSON API, with a websocket channel
for progress events. Spectra are loaded from the configured library
database on startup.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	ctx := context.Background()
	specs, err := st.LoadLibrary(ctx)
	if err != nil {
		return fmt.Errorf("failed to load library: %w", err)
	}
	for _, spec := range specs {
		if err := index.Insert(spec); err != nil {
			log.Warn("Skipping stored spectrum",
				zap.String("id", spec.ID()),
				zap.Error(err))
		}
	}
	log.Info("Library loaded",
		zap.Int("spectra", index.Len()),
		zap.String("path", cfg.Store.Path))

	// The comparator reports progress to websocket viewers; the server
	// that owns the hub is created right after.
	var srv *server.Server
	progress := func(completed, total int) {
		if srv == nil {
			return
		}
		srv.Hub().Broadcast(events.EventTypeBatchProgress, events.BatchProgressEvent{
			Completed: completed,
			Total:     total,
			Metric:    cfg.Similarity.Metric,
		})
	}
	comparator, err := newComparator(cfg, log, progress)
	if err != nil {
		return err
	}

	srv, err = server.New(cfg, log, index, comparator)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv.Hub().Broadcast(events.EventTypeLibraryUpdated, events.LibraryUpdatedEvent{
		Library: cfg.Store.Path,
		Action:  "load",
		Size:    index.Len(),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
		return err
	}

	log.Info("Server stopped")
	return nil
}
