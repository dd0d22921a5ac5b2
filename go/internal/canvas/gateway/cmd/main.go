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

	"github.com/mcdev12/pixelplace/go/internal/canvas/gateway"
	"github.com/mcdev12/pixelplace/go/internal/canvas/wiring"
	"github.com/mcdev12/pixelplace/go/internal/config"
)

// Websocket-only gateway. It holds no storage: events arrive from JetStream,
// published by whichever API server or reconciler produced them.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.SetupLogger()

	if cfg.NATSURL == "" {
		log.Fatal().Msg("NATS_URL is required for the standalone gateway")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := gateway.NewHub(0)
	consumer, err := wiring.NewHubConsumer(ctx, hub, cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event consumer")
	}
	defer consumer.Stop()

	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("port", cfg.GatewayPort).
		Msg("starting canvas gateway")

	go hub.Start(ctx)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/canvas/ws", gateway.NewWebSocketHandler(hub, gateway.DefaultConnectionConfig()))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service":  "canvas-gateway",
			"sessions": hub.Stats(),
		})
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.GatewayPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

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

	log.Info().Msg("canvas gateway shutdown complete")
}
