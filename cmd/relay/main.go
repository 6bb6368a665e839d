package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/AltairaLabs/gesture-relay/internal/clientpool"
	"github.com/AltairaLabs/gesture-relay/internal/config"
	"github.com/AltairaLabs/gesture-relay/internal/emitter"
	"github.com/AltairaLabs/gesture-relay/internal/gesture"
	"github.com/AltairaLabs/gesture-relay/internal/health"
	"github.com/AltairaLabs/gesture-relay/internal/metrics"
	"github.com/AltairaLabs/gesture-relay/internal/relay"
	"github.com/AltairaLabs/gesture-relay/internal/retry"
	"github.com/AltairaLabs/gesture-relay/internal/workerlink"
)

const (
	appVersion      = "0.1.0"
	collectInterval = 15 * time.Second
	badgerDirName   = "badger"
)

var (
	version    = flag.Bool("version", false, "Print version and exit")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	configPath = flag.String("config", "", "Path to config file (YAML, TOML or JSON)")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Println("Gesture Relay v" + appVersion)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup structured logging
	logger, level := newLogger(cfg.Log.Level, *debug)
	slog.SetDefault(logger)

	logger.Info("Starting Gesture Relay",
		"version", appVersion,
		"addr", cfg.Server.Addr,
		"worker_url", cfg.Worker.URL,
		"storage_backend", cfg.Storage.Backend,
		"data_dir", cfg.Storage.DataDir,
	)

	config.Watch(*configPath, logger, func(c *config.Config) {
		if *debug {
			return
		}
		level.Set(config.ParseLevel(c.Log.Level))
		logger.Info("Log level updated", "level", c.Log.Level)
	})

	metrics.InitInfo(appVersion, runtime.Version())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persister, closePersister, err := openPersister(cfg.Storage, logger)
	if err != nil {
		cancel()
		log.Fatalf("Failed to open gesture storage: %v", err)
	}
	defer func() {
		if err := closePersister(); err != nil {
			logger.Error("Failed to close gesture storage", "error", err)
		}
	}()

	store, err := gesture.NewStore(ctx, persister,
		gesture.WithSampleStore(gesture.NewSampleDir(cfg.Storage.DataDir)),
		gesture.WithLogger(logger))
	if err != nil {
		cancel()
		log.Fatalf("Failed to load gestures: %v", err)
	}
	logger.Info("Gesture store loaded", "gestures", store.Len())

	pool := clientpool.NewPool(config.DefaultSessionBuffer, logger)
	pool.OnEvict = func(sessionID string) {
		metrics.RecordEviction()
		logger.Warn("Evicted slow client", "session_id", sessionID)
	}

	routerCfg := relay.RouterConfig{
		Store:  store,
		Pool:   pool,
		Logger: logger,
	}

	var healthServer *health.Server
	if cfg.Health.GRPCAddr != "" {
		healthServer = health.NewServer(logger)
		routerCfg.Health = healthServer
	}

	var mqttEmitter *emitter.MQTTEmitter
	if cfg.MQTT.Broker != "" {
		mqttEmitter = emitter.NewMQTTEmitter(cfg.MQTT, logger)
		if err := mqttEmitter.Connect(ctx); err != nil {
			logger.Warn("MQTT emitter disabled", "error", err)
			mqttEmitter = nil
		} else {
			routerCfg.Publisher = mqttEmitter
			go mqttEmitter.Run(ctx)
		}
	}

	router := relay.NewRouter(routerCfg)
	link := workerlink.New(workerlink.Config{
		URL:         cfg.Worker.URL,
		Policy:      retryPolicy(cfg.Worker),
		DialTimeout: cfg.Worker.DialTimeout,
		Logger:      logger,
		OnDialError: func(error) { metrics.RecordDialFailure() },
	}, router)
	router.SetUpstream(link)

	server := relay.NewServer(relay.ServerConfig{
		Addr:           cfg.Server.Addr,
		PublicURL:      cfg.Server.PublicURL,
		MetricsEnabled: cfg.Metrics.Enabled,
		Version:        appVersion,
		Logger:         logger,
	}, router)

	lis, err := relay.Listen(ctx, cfg.Server.Addr)
	if err != nil {
		cancel()
		log.Fatalf("Failed to listen on %s: %v", cfg.Server.Addr, err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := router.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Router error", "error", err)
			cancel()
		}
	}()

	go func() {
		_ = link.Run(ctx)
	}()

	go func() {
		if err := server.Serve(lis); err != nil {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	if healthServer != nil {
		healthLis, err := health.Listen(ctx, cfg.Health.GRPCAddr)
		if err != nil {
			logger.Error("Health server disabled", "error", err)
			healthServer = nil
		} else {
			go func() {
				if err := healthServer.Serve(healthLis); err != nil {
					logger.Error("gRPC health server error", "error", err)
				}
			}()
		}
	}

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(
			metrics.CounterFunc(store.Len),
			metrics.CounterFunc(pool.Count),
		)
		go collector.Run(ctx, collectInterval)
	}

	// Wait for shutdown signal
	select {
	case <-sigChan:
		logger.Info("Received shutdown signal")
	case <-ctx.Done():
		logger.Info("Context canceled")
	}

	logger.Info("Shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}

	// Cancel context to stop the worker link, router and background goroutines
	cancel()

	if healthServer != nil {
		healthServer.Stop(2 * time.Second)
	}
	if mqttEmitter != nil {
		mqttEmitter.Disconnect()
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), config.DefaultCommandTimeout)
	defer flushCancel()
	if err := store.Flush(flushCtx); err != nil {
		logger.Error("Failed to flush gestures", "error", err)
	}

	logger.Info("Relay shutdown complete")
}

// newLogger builds the JSON logger. The returned LevelVar allows the level to
// change at runtime.
func newLogger(levelName string, debug bool) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(config.ParseLevel(levelName))
	if debug {
		level.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	return logger, level
}

// openPersister opens the configured gesture persistence backend
func openPersister(cfg config.StorageConfig, logger *slog.Logger) (gesture.Persister, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendBadger:
		p, err := gesture.OpenBadgerPersister(filepath.Join(cfg.DataDir, badgerDirName))
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	default:
		p, err := gesture.NewFilePersister(cfg.DataDir, logger)
		if err != nil {
			return nil, noop, err
		}
		return p, noop, nil
	}
}

// retryPolicy builds the worker reconnect policy from config
func retryPolicy(cfg config.WorkerConfig) retry.Policy {
	if cfg.BackoffMultiplier <= 1 {
		return retry.FixedPolicy(cfg.RetryDelay)
	}
	return retry.Policy{
		InitialDelay:      cfg.RetryDelay,
		MaxDelay:          cfg.MaxRetryDelay,
		BackoffMultiplier: cfg.BackoffMultiplier,
	}
}
