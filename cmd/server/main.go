// Parley - Real-time Room Messaging Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/parley/internal/api"
	"github.com/tomtom215/parley/internal/auth"
	"github.com/tomtom215/parley/internal/authz"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/realtime"
	"github.com/tomtom215/parley/internal/store"
	"github.com/tomtom215/parley/internal/supervisor"
	"github.com/tomtom215/parley/internal/supervisor/services"
	ws "github.com/tomtom215/parley/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("environment", cfg.Server.Environment).
		Bool("store_in_memory", cfg.Store.InMemory).
		Msg("Starting Parley")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Server failed")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	st, err := store.Open(store.Options{Path: cfg.Store.Path, InMemory: cfg.Store.InMemory})
	if err != nil {
		return err
	}
	// The tree has stopped every service before this runs.
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Str("path", cfg.Store.Path).Msg("Store opened")

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		return err
	}

	enforcerCfg := authz.DefaultEnforcerConfig()
	enforcerCfg.PolicyPath = cfg.Security.PolicyPath
	enforcer, err := authz.NewEnforcer(enforcerCfg)
	if err != nil {
		return err
	}
	authzService := authz.NewService(enforcer, st)

	rt := realtime.NewRouter(st, jwtManager, realtime.Options{
		TypingTimeout: cfg.Realtime.TypingTimeout,
		Breaker: realtime.BreakerConfig{
			FailureThreshold: cfg.Store.BreakerFailures,
			Timeout:          cfg.Store.BreakerTimeout,
		},
	})

	hub := ws.NewHub()
	wsHandler := ws.NewHandler(hub, rt, ws.Config{
		WriteWait:      cfg.Realtime.WriteWait,
		PongWait:       cfg.Realtime.PongWait,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		SendBuffer:     cfg.Realtime.SendBuffer,
		EventRate:      cfg.Realtime.EventRate,
		EventBurst:     cfg.Realtime.EventBurst,
		AllowedOrigins: cfg.Security.CORSOrigins,
	})

	handler := api.NewHandler(st, jwtManager, authzService, rt, cfg)
	chiMW := api.NewChiMiddlewareFromSecurity(
		cfg.Security.CORSOrigins,
		cfg.Security.RateLimitReqs,
		cfg.Security.RateLimitWindow,
		cfg.Security.RateLimitDisabled,
	)
	router := api.NewRouter(handler, chiMW, authz.NewMiddleware(authzService), jwtManager, wsHandler)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return err
	}
	tree.AddDataService(services.NewStoreGCService(st, cfg.Store.GCInterval, cfg.Store.GCRatio))
	tree.AddRealtimeService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	return nil
}
