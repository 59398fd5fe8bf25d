// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ihor-metko/courtflow/internal/booking"
	"github.com/ihor-metko/courtflow/internal/bus"
	"github.com/ihor-metko/courtflow/internal/config"
	"github.com/ihor-metko/courtflow/internal/realtime"
	"github.com/ihor-metko/courtflow/internal/scheduler"
	"github.com/ihor-metko/courtflow/internal/store"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func loadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("No config file found, using development defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.App.Environment)

	// Storage layer. Handlers only ever see the booking.Store interface.
	var st booking.Store
	var closeStore func() error
	switch cfg.Database.Driver {
	case "sqlite":
		sqlite, err := store.OpenSQLite(cfg.Database.Filename)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open database")
		}
		st = sqlite
		closeStore = sqlite.Close
	default:
		log.Warn().Msg("Using in-memory store; nothing will be persisted")
		st = store.NewMemory()
		closeStore = func() error { return nil }
	}
	defer closeStore()

	// The bus is owned here and handed to everything that publishes or
	// subscribes; there is no shared module-level instance.
	eventBus := bus.New()

	engine, err := booking.NewEngine(st, eventBus, booking.EngineConfig{
		HoldTTL: cfg.HoldTTL(),
		Policy:  booking.ExpiryPolicy(cfg.Booking.ExpiryPolicy),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build reservation engine")
	}

	authorizer, err := realtime.NewAuthorizer(st.(realtime.RoleStore), cfg.App.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build authorizer")
	}

	var sched *scheduler.Service
	if engine.Policy() == booking.PolicyEager {
		sched, err = scheduler.New()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create scheduler")
		}
		if err := scheduler.RegisterExpirySweep(sched, engine, cfg.SweepInterval()); err != nil {
			log.Fatal().Err(err).Msg("Failed to register sweep job")
		}
		sched.Start()
	}

	server := newServer(cfg, engine, eventBus, authorizer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("expiry_policy", cfg.Booking.ExpiryPolicy).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if sched != nil {
			if err := sched.Stop(); err != nil {
				log.Error().Err(err).Msg("Scheduler shutdown error")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
