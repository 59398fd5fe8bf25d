// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ihor-metko/courtflow/internal/api"
	"github.com/ihor-metko/courtflow/internal/api/reservations"
	"github.com/ihor-metko/courtflow/internal/booking"
	"github.com/ihor-metko/courtflow/internal/bus"
	"github.com/ihor-metko/courtflow/internal/config"
	"github.com/ihor-metko/courtflow/internal/observability"
	"github.com/ihor-metko/courtflow/internal/ratelimit"
	"github.com/ihor-metko/courtflow/internal/realtime"
	"github.com/rs/zerolog/log"
)

func newServer(cfg *config.Config, engine *booking.Engine, eventBus *bus.Bus, authorizer *realtime.Authorizer) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithPrincipal(cfg.App.SecretKey),
		api.WithRequestID,
	)

	registerRoutes(router, cfg, engine, eventBus, authorizer)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, engine *booking.Engine, eventBus *bus.Bus, authorizer *realtime.Authorizer) {
	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if cfg.Features.EnableMetrics {
		mux.Handle("/metrics", observability.MetricsHandler())
		log.Info().Msg("Metrics endpoint enabled")
	}

	// Reservation routes
	limiter := ratelimit.New(nil)
	resHandler, err := reservations.NewHandler(engine, limiter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build reservation handlers")
	}
	mux.HandleFunc("POST /api/v1/reservations", resHandler.HandleCreate)
	mux.HandleFunc("POST /api/v1/reservations/{id}/confirm", resHandler.HandleConfirm)
	mux.HandleFunc("DELETE /api/v1/reservations/{id}", resHandler.HandleCancel)
	mux.HandleFunc("GET /api/v1/availability", resHandler.HandleAvailability)

	// Realtime channel
	wsHandler := realtime.NewHandler(authorizer, eventBus, cfg.Heartbeat())
	mux.Handle("GET /ws", wsHandler)
}
