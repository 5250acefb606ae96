// Package main implements the entry point for the wis2node dispatch node.
// wis2node consumes broker notifications about incoming observation data,
// runs the configured transform plugins and publishes the results as WIS
// notification messages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/wmo-im/wis2node/catalog"
	"github.com/wmo-im/wis2node/config"
	"github.com/wmo-im/wis2node/dispatch"
	"github.com/wmo-im/wis2node/mapping"
	"github.com/wmo-im/wis2node/metric"
	"github.com/wmo-im/wis2node/natsclient"
	"github.com/wmo-im/wis2node/storage"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "wis2node"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg, cliCfg)

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("Starting wis2node",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := metric.NewRegistry()

	broker, err := connectBroker(ctx, cfg, registry.Metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if err := broker.Close(closeCtx); err != nil {
			slog.Warn("Broker close failed", "error", err)
		}
	}()

	store, err := storage.NewStore(ctx, broker, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open object stores: %w", err)
	}

	cat := catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.Timeout, logger)

	// The mapping table must load before any message is accepted; a bad
	// table at boot is a deployment problem, not something to limp past.
	cache := mapping.NewCache(cat, logger)
	if err := cache.Load(ctx); err != nil {
		return fmt.Errorf("load data mappings: %w", err)
	}
	slog.Info("Data mappings loaded", "entries", cache.Len())

	dispatcher, err := dispatch.New(cfg, dispatch.Deps{
		Broker:    broker,
		Cache:     cache,
		Store:     store,
		Catalog:   cat,
		Metrics:   registry.Metrics,
		Logger:    logger,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	metricsServer := startMetricsServer(cfg, registry, broker, cache)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Metrics server shutdown failed", "error", err)
		}
	}()

	if err := dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	slog.Info("wis2node started")

	watchFaults(ctx, dispatcher, logger)

	<-ctx.Done()
	slog.Info("Received shutdown signal")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer stopCancel()
	if err := dispatcher.Stop(stopCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("wis2node shutdown complete")
	return nil
}

// initializeCLI parses flags and handles version/help
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	return cliCfg, false, nil
}

// applyCLIOverrides lets command-line flags win over file and environment
func applyCLIOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
}

// connectBroker creates the NATS client and establishes the connection
func connectBroker(
	ctx context.Context,
	cfg *config.Config,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.Broker.MaxReconnects),
		natsclient.WithDisconnectCallback(func(err error) {
			metrics.RecordBrokerStatus(false)
			logger.Warn("Broker disconnected", "error", err)
		}),
		natsclient.WithReconnectCallback(func() {
			metrics.RecordBrokerStatus(true)
			metrics.BrokerReconnects.Inc()
			logger.Info("Broker reconnected")
		}),
	}
	if cfg.Broker.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.Broker.ReconnectWait))
	}
	if cfg.Broker.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Broker.Username, cfg.Broker.Password))
	}

	broker, err := natsclient.NewClient(cfg.Broker.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create broker client: %w", err)
	}

	slog.Info("Connecting to broker", "url", cfg.Broker.URL)
	connCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := broker.Connect(connCtx); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	metrics.RecordBrokerStatus(true)

	return broker, nil
}

// startMetricsServer wires health checks and serves /metrics in the background
func startMetricsServer(
	cfg *config.Config,
	registry *metric.Registry,
	broker *natsclient.Client,
	cache *mapping.Cache,
) *metric.Server {
	server := metric.NewServer(cfg.Metrics.Addr, registry)
	server.AddHealthCheck("broker", broker.IsConnected)
	server.AddHealthCheck("mappings", func() bool { return cache.Len() > 0 })

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	return server
}

// watchFaults logs unexpected worker and directive failures. These are
// environment trouble or defects; the node keeps running and relies on
// the health endpoint and logs to surface them.
func watchFaults(ctx context.Context, dispatcher *dispatch.Dispatcher, logger *slog.Logger) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-dispatcher.Faults():
				logger.Error("Dispatch fault", "error", err)
			}
		}
	}()
}
