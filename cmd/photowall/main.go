// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Command photowall runs a standalone read-only gallery for one event. It
// holds a realtime connection under supervision, mirrors the event's media
// state into the reconciliation cache, and serves the approved wall over
// HTTP from that cache.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/framewall/framewall/internal/api"
	"github.com/framewall/framewall/internal/broadcast"
	"github.com/framewall/framewall/internal/config"
	"github.com/framewall/framewall/internal/localstore"
	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/models"
	"github.com/framewall/framewall/internal/photowall"
	"github.com/framewall/framewall/internal/realtime"
	"github.com/framewall/framewall/internal/supervisor"
	"github.com/framewall/framewall/internal/supervisor/services"
	syncpkg "github.com/framewall/framewall/internal/sync"
)

func main() {
	eventID := flag.String("event", os.Getenv("FRAMEWALL_EVENT_ID"), "event ID to display")
	shareToken := flag.String("share-token", os.Getenv("FRAMEWALL_SHARE_TOKEN"), "event share token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if *eventID == "" {
		logging.Fatal().Msg("An event ID is required (-event or FRAMEWALL_EVENT_ID)")
	}

	logging.Info().
		Str("event_id", *eventID).
		Str("realtime_url", cfg.Realtime.URL).
		Str("listen_addr", cfg.Photowall.ListenAddr).
		Msg("Starting Framewall photowall")

	store, err := openStore(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing local store")
		}
	}()

	var apiClient *api.Client
	if cfg.API.BaseURL != "" {
		apiCfg := api.DefaultConfig(cfg.API.BaseURL)
		apiCfg.Timeout = cfg.API.Timeout
		apiCfg.MaxFailures = cfg.API.BreakerFailureThreshold
		apiCfg.OpenTimeout = cfg.API.BreakerResetTimeout
		apiClient, err = api.NewClient(apiCfg, "", *shareToken)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to build API client")
		}
	} else {
		logging.Warn().Msg("No API base URL configured; wall is delta-only")
	}

	if apiClient != nil {
		checkCtx, checkCancel := context.WithTimeout(context.Background(), 10*time.Second)
		ev, err := apiClient.GetEvent(checkCtx, *eventID)
		checkCancel()
		switch {
		case err != nil:
			// The realtime subscribe will surface a hard invalid-event error;
			// a failed pre-check only costs the early diagnostic.
			logging.Warn().Err(err).Str("event_id", *eventID).Msg("Event pre-check failed")
		default:
			logging.Info().Str("event_id", ev.ID).Str("name", ev.Name).Msg("Displaying event")
		}
	}

	bus := broadcast.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing broadcast bus")
		}
	}()

	session, err := syncpkg.NewSession(syncpkg.Options{
		EventID: *eventID,
		Cred: realtime.Credential{
			ShareToken: *shareToken,
			UserType:   models.UserTypePhotowall,
			EventID:    *eventID,
		},
		Realtime:        realtime.OptionsFromConfig(cfg.Realtime),
		API:             apiClient,
		Store:           store,
		Bus:             bus,
		StalenessWindow: cfg.Cache.StalenessWindow,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build session")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddRealtimeService(services.NewSessionService(session, 30*time.Second))
	if apiClient != nil {
		tree.AddRealtimeService(services.NewRefreshService(session, cfg.Cache.AutoRefreshInterval))
	}

	wall := photowall.NewServer(session.Cache(), session.Manager(), *eventID)
	httpServer := &http.Server{
		Addr:              cfg.Photowall.ListenAddr,
		Handler:           wall.Router(cfg.Photowall),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPService(httpServer, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Photowall stopped")
}

// openStore opens the configured store path, or an in-memory store when no
// path is set. The photowall has no credential to persist, but connection
// hints still help operators see how the last run ended.
func openStore(path string) (*localstore.Store, error) {
	if path == "" {
		return localstore.OpenInMemory()
	}
	return localstore.Open(path)
}
