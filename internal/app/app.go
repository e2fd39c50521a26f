// Package app provides application lifecycle management for the sync service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/leadengine/instance-sync/internal/config"
	"github.com/leadengine/instance-sync/internal/logger"
)

// InstanceSyncApp holds everything needed to run the operations API and the
// background refresher, with graceful shutdown
type InstanceSyncApp struct {
	config     *config.Config
	components *Components
	httpServer *http.Server

	// Lifecycle management
	ctx         context.Context
	cancelFunc  context.CancelFunc
	cleanup     func()
	cleanupOnce sync.Once
}

// Start runs the background refresher when enabled and serves HTTP.
// It blocks until the HTTP server stops or fails.
func (app *InstanceSyncApp) Start() error {
	if app.config.Sync.Background {
		go func() {
			if err := app.components.Coordinator.Start(app.ctx); err != nil {
				logger.Errorf("Refresh coordinator failed: %v", err)
			}
		}()
	} else {
		logger.Infof("Background refresh disabled")
	}

	logger.Infof("Server listening on %s", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop shuts down the refresher, then the HTTP server, then releases storage
// and telemetry
func (app *InstanceSyncApp) Stop(timeout time.Duration) error {
	logger.Infof("Shutting down server...")

	if err := app.components.Coordinator.Stop(); err != nil {
		logger.Errorf("Failed to stop refresh coordinator: %v", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)
	app.Close()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Infof("Server shutdown complete")
	return nil
}

// Close releases storage connections and telemetry without touching the HTTP
// server. Commands that never call Start use it instead of Stop.
func (app *InstanceSyncApp) Close() {
	app.cleanupOnce.Do(func() {
		if app.cancelFunc != nil {
			app.cancelFunc()
		}
		if app.cleanup != nil {
			app.cleanup()
		}
	})
}

// GetConfig returns the application configuration
func (app *InstanceSyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *InstanceSyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components
func (app *InstanceSyncApp) Components() *Components {
	return app.components
}
