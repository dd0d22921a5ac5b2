package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pixelplace/go/internal/canvas/wiring"
	"github.com/mcdev12/pixelplace/go/internal/config"
)

// Standalone session reconciler. Run it when the API servers are started with
// IN_PROCESS_RECONCILER=false; several instances may run side by side.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.SetupLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := wiring.Setup(ctx, cfg, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up canvas services")
	}
	defer services.Close()

	log.Info().
		Str("storage", cfg.StorageBackend).
		Dur("interval", cfg.ReconcileInterval).
		Bool("nats", cfg.NATSURL != "").
		Msg("starting session reconciler")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := services.Reconciler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("reconciler scheduler failed")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		for name, check := range services.HealthChecks() {
			if err := check(r.Context()); err != nil {
				http.Error(w, fmt.Sprintf("%s: %v", name, err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	// Manual trigger, same report as GET /canvas/check-sessions.
	mux.HandleFunc("/sweep", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		report, err := services.Reconciler.Sweep(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("manual sweep failed")
			http.Error(w, "sweep failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	})

	// Health server on its own port, away from the API
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HealthPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health check server shutdown failed")
	}

	cancel()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("reconciler did not stop before the shutdown deadline")
	}

	log.Info().Msg("session reconciler shutdown complete")
}
