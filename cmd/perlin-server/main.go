// cmd/perlin-server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opd-ai/go-perlin/pkg/config"
	"github.com/opd-ai/go-perlin/pkg/event"
	"github.com/opd-ai/go-perlin/pkg/health"
	"github.com/opd-ai/go-perlin/pkg/logging"
	"github.com/opd-ai/go-perlin/pkg/server"
)

// memoryLimitMB is the heap size above which the server reports not ready.
const memoryLimitMB = 1024

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	configPath := flag.String("config", "config.json", "Path to configuration file")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	flag.Parse()

	if *createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err,
				"config_path", *configPath,
			)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file",
			"config_path", *configPath,
		)
		return
	}

	var cfg *config.Config
	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		logger.Info(ctx, "Configuration file not found, using default configuration",
			"config_path", *configPath,
		)
		cfg = config.DefaultConfig()
	} else {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			logger.Error(ctx, "Failed to load configuration", err,
				"config_path", *configPath,
			)
			os.Exit(1)
		}
	}

	if err := config.ApplyEnvironmentOverrides(cfg); err != nil {
		logger.Error(ctx, "Failed to apply environment configuration", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "Invalid configuration", err)
		os.Exit(1)
	}

	bus := event.NewEventBus()
	bus.Subscribe(event.RunFailed, func(e event.Event) {
		r := e.(*event.RunEvent)
		logger.Warn(ctx, "Generation run failed", "run_id", r.RunID, "error", r.Err)
	})

	srv, err := server.New(cfg, server.WithLogger(logger), server.WithEventBus(bus))
	if err != nil {
		logger.Error(ctx, "Failed to create server", err)
		os.Exit(1)
	}
	srv.Health().AddCheck(health.NewMemoryHealthCheck(memoryLimitMB, nil))

	// Probes also get their own port so orchestrators can reach them when
	// the main listener is saturated.
	var healthServer *http.Server
	if cfg.Server.HealthPort > 0 {
		healthMux := http.NewServeMux()
		srv.Health().Register(healthMux)
		healthServer = &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Server.HealthPort),
			Handler:      healthMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info(ctx, "Starting health check server", "port", cfg.Server.HealthPort)
			if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "Health check server failed", err)
			}
		}()
	}

	logger.Info(ctx, "Starting server",
		"address", cfg.Server.Address,
		"max_grid_size", cfg.Server.MaxGridSize,
		"max_domain_width", cfg.Server.MaxDomainWidth,
	)
	if err := srv.Start(ctx); err != nil {
		logger.Error(ctx, "Failed to start server", err, "address", cfg.Server.Address)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if healthServer != nil {
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "Health check server shutdown failed", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Server shutdown failed", err)
		os.Exit(1)
	}
}
