package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/planningpoker/internal/api"
	"github.com/Iron-Ham/planningpoker/internal/cluster"
	"github.com/Iron-Ham/planningpoker/internal/config"
	"github.com/Iron-Ham/planningpoker/internal/event"
	"github.com/Iron-Ham/planningpoker/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the planning poker server",
	Long: `Run the HTTP server.

The server keeps active teams in memory, writes them through to the
configured storage and disconnects participants that stop polling. With
cluster.enabled it joins the other nodes on the bus and takes over the
teams they already hold before serving requests for them.

Editing the config file while the server runs applies the new
poker.inactivity_timeout and logging.level without a restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	events := event.NewBus(event.WithLogger(logger.WithComponent("events")))
	defer logLifecycle(events, logger.WithComponent("lifecycle"))()
	reg := registry.New(
		registry.WithStorage(backend.storage),
		registry.WithBus(events),
		registry.WithLogger(logger.WithComponent("registry")),
		registry.WithLockTimeout(cfg.Poker.LockTimeout),
		registry.WithWaitTimeout(cfg.Poker.WaitForMessageTimeout),
		registry.WithInactivityTimeout(cfg.Poker.InactivityTimeout),
		registry.WithSweepWorkers(cfg.Poker.SweepWorkers),
	)

	if cfg.Cluster.Enabled {
		nodeBus, err := openBus(ctx, cfg, backend, logger)
		if err != nil {
			return err
		}
		syncer := cluster.New(reg, nodeBus,
			cluster.WithNodeID(cfg.Cluster.NodeID),
			cluster.WithInitializationTimeout(cfg.Cluster.InitializationTimeout),
			cluster.WithInitializationMessageTimeout(cfg.Cluster.InitializationMessageTimeout),
			cluster.WithLogger(logger),
		)
		if err := syncer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			if err := syncer.Stop(); err != nil {
				logger.Warn("failed to leave cluster", "error", err)
			}
		}()
	}

	config.Watch(func(next *config.Config) {
		reg.SetInactivityTimeout(next.Poker.InactivityTimeout)
		logger.SetLevel(next.Logging.Level)
		logger.Info("configuration reloaded",
			"inactivity_timeout", next.Poker.InactivityTimeout,
			"level", next.Logging.Level,
		)
	}, func(err error) {
		logger.Warn("ignoring invalid configuration change", "error", err)
	})

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		reg.RunSweeper(ctx, cfg.Poker.InactivityCheckInterval)
	}()

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewServer(reg,
			api.WithLogger(logger),
			api.WithWaitTimeout(cfg.Poker.WaitForMessageTimeout),
			api.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		).Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.WithComponent("http").Slog().Handler(), slog.LevelWarn),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "storage", cfg.Storage.Driver, "cluster", cfg.Cluster.Enabled)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown incomplete", "error", err)
	}
	stop()

	select {
	case <-sweepDone:
	case <-time.After(cfg.Server.ShutdownTimeout):
	}
	return nil
}
