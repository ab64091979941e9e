// Meterline - Equipment Hierarchy and Time-Series Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/meterline

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/meterline/internal/api"
	"github.com/tomtom215/meterline/internal/auth"
	"github.com/tomtom215/meterline/internal/config"
	"github.com/tomtom215/meterline/internal/database"
	"github.com/tomtom215/meterline/internal/events"
	"github.com/tomtom215/meterline/internal/logging"
	"github.com/tomtom215/meterline/internal/models"
	"github.com/tomtom215/meterline/internal/source"
	"github.com/tomtom215/meterline/internal/supervisor"
	"github.com/tomtom215/meterline/internal/supervisor/services"
	"github.com/tomtom215/meterline/internal/sync"
	"github.com/tomtom215/meterline/internal/timeseries"
	ws "github.com/tomtom215/meterline/internal/websocket"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "import" {
		if err := runImport(os.Args[2:]); err != nil {
			logging.Fatal().Err(err).Msg("Import failed")
		}
		return
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	initLogging(cfg)

	if err := runServer(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
}

func initLogging(cfg *config.Config) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
}

//nolint:gocyclo // sequential wiring
func runServer(cfg *config.Config) error {
	logging.Info().
		Bool("sync_enabled", cfg.Sync.Enabled).
		Bool("server_enabled", cfg.Server.Enabled).
		Str("db_path", cfg.Database.Path).
		Str("events_backend", cfg.Events.Backend).
		Msg("Starting meterline")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	zone, err := timeseries.NewZonePolicy(cfg.Source.Timezone, cfg.Source.AmbiguousTime, cfg.Source.NonexistentTime)
	if err != nil {
		return fmt.Errorf("source timezone: %w", err)
	}

	bus, err := events.New(&cfg.Events)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	// Close is idempotent; the messaging layer normally closes the bus first.
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	hub := ws.NewHub()
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(ws.NewOutcomeSubscriber(bus, hub))
	tree.AddMessagingService(services.NewBusCloserService(bus))

	var (
		syncer  api.Syncer
		manager *sync.Manager
	)
	if cfg.Sync.Enabled {
		authenticator, closer, err := auth.NewAuthenticator(&cfg.Auth)
		if err != nil {
			return fmt.Errorf("initialize authenticator: %w", err)
		}
		defer func() {
			if err := closer.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing token cache")
			}
		}()

		fetcher := source.NewCircuitBreakerClient(source.NewClient(&cfg.Source, zone), "source-api")
		engine := sync.NewEngine(db, authenticator, fetcher, zone, &cfg.Sync)
		engine.SetPublisher(bus)

		manager = sync.NewManager(engine, db, auth.NewAuthConfig(&cfg.Source), &cfg.Sync)
		tree.AddSyncService(services.NewSyncService(manager))
		syncer = manager

		logging.Info().
			Dur("interval", cfg.Sync.Interval).
			Int("references", len(cfg.Sync.References)).
			Bool("all_equipment", cfg.Sync.AllEquipment).
			Str("token_cache", cfg.Auth.TokenCache).
			Msg("Sync manager added to supervisor tree")
	}

	if cfg.Server.Enabled {
		handler := api.NewHandler(db, syncer, hub, zone, cfg.Server.StateMarkers)
		middleware := api.NewMiddleware(api.MiddlewareConfigFromServer(&cfg.Server))
		router := api.NewRouter(handler, middleware, ws.NewHandler(hub, cfg.Server.CORSOrigins))

		server := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router.Setup(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.Timeout,
			IdleTimeout:       60 * time.Second,
		}
		// Sync requests run for as long as the upstream takes, so the write
		// timeout is left open.
		tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
		logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

		if manager != nil {
			manager.SetOnSyncCompleted(func([]*models.SyncOutcome) { handler.InvalidateCache() })
		}
	}

	if !cfg.Sync.Enabled && !cfg.Server.Enabled {
		logging.Warn().Msg("Neither sync nor server is enabled; only the event bus will run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree stopped with error")
		}
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("Meterline stopped")
	return nil
}
