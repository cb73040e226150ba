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

	"github.com/spf13/cobra"

	grpcadapter "github.com/evnchn/3D-Print-Me/adapter/inbound/grpc"
	"github.com/evnchn/3D-Print-Me/adapter/inbound/rest"
	"github.com/evnchn/3D-Print-Me/adapter/inbound/websocket"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/filewatcher"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/logging"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/metrics"
	"github.com/evnchn/3D-Print-Me/adapter/outbound/storage/filesystem"
	"github.com/evnchn/3D-Print-Me/config"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
	"github.com/evnchn/3D-Print-Me/domain/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.NewSlogAdapter(cfg)
	if err != nil {
		return err
	}
	defer logger.Shutdown()

	logger.Info("Starting portal", "version", version, "data_dir", cfg.General.DataDir, "storage", cfg.Storage.Engine)
	if err := cfg.CheckSigningSecret(); err != nil {
		logger.Error("Startup refused", "error", err)
		return err
	}
	if cfg.UsesDefaultSecret() {
		logger.Warn("Development mode, tokens are signed with the default secret")
	}
	for role, secret := range cfg.Security.MasterPasswords {
		if secret == "" {
			logger.Warn("Registration disabled for role without master password", "role", role)
		}
	}

	for _, dir := range []string{cfg.Portal.FactoriesDir, cfg.Portal.JobsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			logger.Error("Failed to close stores", "error", err)
		}
	}()

	var (
		authMetrics    outbound.Metrics
		observer       rest.RequestObserver
		metricsHandler http.Handler
	)
	if cfg.Monitoring.Prometheus {
		prom := metrics.NewPrometheusMetrics()
		authMetrics, observer, metricsHandler = prom, prom, prom.Handler()
	}

	auth, err := newAuthServices(cfg, st, authMetrics, logger)
	if err != nil {
		return err
	}

	factoryRepo, err := filesystem.NewFactoryRepository(cfg.Portal.FactoriesDir, logger)
	if err != nil {
		return err
	}
	jobRepo, err := filesystem.NewJobRepository(cfg.Portal.JobsDir, logger)
	if err != nil {
		return err
	}

	var watcher outbound.FileWatcher
	if cfg.Portal.WatchFactories {
		if watcher, err = filewatcher.NewFSWatcher(filewatcher.DefaultDebounce); err != nil {
			return err
		}
	}

	factories := service.NewFactoryService(factoryRepo, watcher, logger)
	if err := factories.Start(ctx); err != nil {
		return err
	}
	defer factories.Stop()

	feed := websocket.NewHandler(logger, cfg.HTTP.CORS.AllowedOrigins)
	defer feed.Cleanup()

	jobs := service.NewJobService(jobRepo, factories, auth.authorization, feed, logger)

	if cfg.GRPC.Enabled {
		grpcServer := grpcadapter.NewServer(auth.credentials, auth.tokens, auth.authorization, logger)
		if err := grpcServer.Start(fmt.Sprintf("%s:%d", cfg.GRPC.Address, cfg.GRPC.Port)); err != nil {
			return err
		}
		defer grpcServer.Stop()
	}

	if !cfg.HTTP.Enabled {
		logger.Info("HTTP server disabled")
		<-ctx.Done()
		return nil
	}

	handler := rest.NewHandler(rest.Services{
		Credentials:   auth.credentials,
		Tokens:        auth.tokens,
		Authorization: auth.authorization,
		Factories:     factories,
		Jobs:          jobs,
	}, feed, cfg, observer, metricsHandler, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "address", server.Addr, "tls", cfg.HTTP.TLS)
		if cfg.HTTP.TLS {
			serveErr <- server.ListenAndServeTLS(cfg.HTTP.CertFile, cfg.HTTP.KeyFile)
		} else {
			serveErr <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}

	logger.Info("Server shutdown complete")
	return nil
}
