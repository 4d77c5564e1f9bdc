// Package app provides application lifecycle management for placesync.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dreampalaces/placesync/internal/config"
	"github.com/dreampalaces/placesync/internal/sync/coordinator"
)

// PlaceSyncApp encapsulates all components needed to run the placesync server.
// It provides lifecycle management and graceful shutdown.
type PlaceSyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start loads the cache, then serves HTTP on the configured address.
// It blocks until the HTTP server stops or fails.
func (app *PlaceSyncApp) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(listener)
}

// Serve is Start on an existing listener, which it takes ownership of
func (app *PlaceSyncApp) Serve(listener net.Listener) error {
	if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to start sync coordinator: %w", err)
	}

	slog.Info("Server listening", "address", listener.Addr().String())
	if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// SyncOnce loads the cache and runs one authorized refresh without serving HTTP
func (app *PlaceSyncApp) SyncOnce(ctx context.Context) (*coordinator.RefreshResult, error) {
	coord := app.components.SyncCoordinator
	if err := coord.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start sync coordinator: %w", err)
	}

	result := coord.Refresh(ctx, true)
	if result.Status == coordinator.StatusFailed {
		return result, result.Err
	}
	return result, nil
}

// Stop gracefully stops the application with the given timeout.
// In-flight refreshes keep running until their own deadline.
func (app *PlaceSyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server")

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *PlaceSyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *PlaceSyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components
func (app *PlaceSyncApp) Components() *AppComponents {
	return app.components
}
