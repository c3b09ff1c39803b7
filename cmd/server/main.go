// Bitrix Dash - Bitrix24 Department Task Dashboard
// Copyright 2026 Roughriver74
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/Roughriver74/bitrix-dash

// Command server runs the Bitrix Dash HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Roughriver74/bitrix-dash/internal/api"
	"github.com/Roughriver74/bitrix-dash/internal/bitrix"
	"github.com/Roughriver74/bitrix-dash/internal/cache"
	"github.com/Roughriver74/bitrix-dash/internal/config"
	"github.com/Roughriver74/bitrix-dash/internal/dashboard"
	"github.com/Roughriver74/bitrix-dash/internal/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})

	client := bitrix.New(cfg.Bitrix)
	resultCache := cache.New(cfg.Cache.TTL, cfg.Cache.CleanupInterval)
	defer resultCache.Close()

	service := dashboard.NewService(client, resultCache, nil, cfg.Dashboard)
	handler := api.NewHandler(service)
	router := api.NewRouter(handler, cfg.Server)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout must cover a full streamed pipeline run, not just
		// a plain JSON response.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("addr", addr).
			Str("pipeline", service.Describe()).
			Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logging.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logging.Info().Msg("Server stopped")
	return nil
}
