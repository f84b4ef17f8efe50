// Package server orchestrates the runtime pieces: configuration, logging,
// the service manager, the remote router and the loaded component model.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/morezero/component-runtime/internal/config"
	"github.com/morezero/component-runtime/pkg/dispatcher"
	"github.com/morezero/component-runtime/pkg/manager"
	"github.com/morezero/component-runtime/pkg/model"
	"github.com/morezero/component-runtime/pkg/router"
)

const logPrefix = "server:server"

// Options selects what the runtime hosts.
type Options struct {
	// Model is loaded after the manager starts; nil runs an empty process
	// that only participates in remote servicing.
	Model *model.Model
}

// Run starts the runtime, blocks until a shutdown signal, then cleans up.
func Run(opts Options) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	slog.Info(fmt.Sprintf("%s - Starting component-runtime", logPrefix))

	// Step 1: Dispatcher registry and service manager.
	registry := dispatcher.NewRegistry()
	mgr := manager.New(registry, nil)

	// Step 2: Remote router, wired with the manager as its consumer.
	var rt *router.CommsRouter
	if cfg.RemoteEnabled {
		rt = router.NewCommsRouter(mgr, cfg.COMMSName)
		if cfg.RouterConfigFile != "" {
			if err := rt.ConfigureRemoteServicing(cfg.RouterConfigFile); err != nil {
				return fmt.Errorf("%s - failed to configure router: %w", logPrefix, err)
			}
		} else {
			rt.SetBrokerURL(cfg.COMMSURL)
		}
		mgr.UseRouter(rt)
	}

	// Step 3: Start the manager dispatcher.
	if err := mgr.Start(); err != nil {
		return fmt.Errorf("%s - failed to start service manager: %w", logPrefix, err)
	}

	// Step 4: Bring remote servicing online.
	if cfg.RemoteEnabled {
		mgr.RequestEnableRemoteService(true)
		mgr.RequestStartConnection(cfg.RouterConfigFile)
	}

	// Step 5: Load the component model.
	loader := model.NewLoader(registry, mgr)
	if opts.Model != nil {
		if err := loader.Load(opts.Model); err != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			mgr.Stop(shutdownCtx)
			return fmt.Errorf("%s - failed to load model: %w", logPrefix, err)
		}
		slog.Info(fmt.Sprintf("%s - Model %q loaded", logPrefix, opts.Model.Name))
	}

	slog.Info(fmt.Sprintf("%s - Component-runtime is ready", logPrefix))

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown: components first, then the manager and its router.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if opts.Model != nil {
		if err := loader.Unload(shutdownCtx); err != nil {
			slog.Error(fmt.Sprintf("%s - unloading model: %v", logPrefix, err))
		}
	}
	if err := mgr.Stop(shutdownCtx); err != nil {
		slog.Error(fmt.Sprintf("%s - stopping service manager: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
