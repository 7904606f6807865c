package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/cache"
	"github.com/dataguard/dataguard/internal/config"
	"github.com/dataguard/dataguard/internal/events"
	"github.com/dataguard/dataguard/internal/logger"
	"github.com/dataguard/dataguard/internal/scanner"
	"github.com/dataguard/dataguard/internal/server"
	"github.com/dataguard/dataguard/internal/violations"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("DataGuard %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting DataGuard",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Create scan engine
	engine := scanner.New(cfg.Detection, log.WithComponent("scanner"))

	// Create violation store; its logging toggles always track the currently
	// active configuration snapshot
	store, err := violations.NewStore(&violations.Config{
		DatabaseURL:     cfg.Database.DatabaseURL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, func() violations.Settings { return engine.Snapshot() }, log.WithComponent("violations"))
	if err != nil {
		log.Fatal("Failed to create violation store", zap.Error(err))
	}
	defer store.Close()

	// Optional statistics cache
	var statsCache *cache.StatsCache
	if cfg.Cache.Enabled {
		statsCache, err = cache.NewStatsCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
			StatsTTL:       cfg.Cache.StatsTTL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
		}, log.WithComponent("cache"))
		if err != nil {
			log.Fatal("Failed to create statistics cache", zap.Error(err))
		}
		defer statsCache.Close()
	}

	// Event hub for the live violation stream
	hub := events.NewHub(events.Config{
		MaxConnections: cfg.Events.MaxConnections,
		AllowedOrigins: cfg.Events.AllowedOrigins,
		PingInterval:   cfg.Events.PingInterval,
		PongTimeout:    cfg.Events.PongTimeout,
		WriteTimeout:   cfg.Events.WriteTimeout,
	}, log.WithComponent("events"))

	// Apply configuration changes as whole new snapshots; scans in flight
	// keep the snapshot they started with
	var cleanupDays atomic.Int64
	cleanupDays.Store(int64(cfg.Detection.AutoCleanupDays))

	if err := config.Watch(cfg, func(newCfg *config.Config) {
		engine.Update(newCfg.Detection)
		cleanupDays.Store(int64(newCfg.Detection.AutoCleanupDays))
		log.Info("Configuration reloaded")
	}); err != nil {
		log.Error("Failed to watch configuration", zap.Error(err))
	}

	// Background retention loop
	janitorCtx, cancelJanitor := context.WithCancel(context.Background())
	defer cancelJanitor()
	janitor := violations.NewJanitor(store, func() int {
		return int(cleanupDays.Load())
	}, log.WithComponent("janitor"))
	go janitor.Run(janitorCtx)

	// Create API server
	srv := server.New(cfg, log, engine, store, statsCache, hub)

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
