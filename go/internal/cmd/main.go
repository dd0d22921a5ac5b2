package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas/wiring"
	"github.com/mcdev12/pixelplace/go/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.SetupLogger()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := wiring.Setup(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up canvas services")
	}
	defer services.Close()

	if err := services.StartRealtime(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start realtime fan-out")
	}

	if cfg.InProcessReconciler {
		go func() {
			if err := services.Reconciler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("reconciler stopped")
			}
		}()
	}

	server := setupServer(cfg.Port, services.Handler())

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Bool("in_process_reconciler", cfg.InProcessReconciler).
			Bool("nats", cfg.NATSURL != "").
			Msg("pixelplace server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	log.Info().Msg("pixelplace server shutdown complete")
}
