package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxmn/anthropic_bridge/internal/config"
	"github.com/foxmn/anthropic_bridge/internal/debuglog"
	"github.com/foxmn/anthropic_bridge/internal/logger"
	"github.com/foxmn/anthropic_bridge/internal/monitoring"
	"github.com/foxmn/anthropic_bridge/internal/proxy"
	"github.com/foxmn/anthropic_bridge/internal/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	var log *slog.Logger
	if cfg.Server.LogJSON {
		log = logger.NewJSON(cfg.Server.LoggingLevel)
	} else {
		log = logger.New(cfg.Server.LoggingLevel)
	}

	log.Info("Starting anthropic_bridge",
		"logging_level", cfg.Server.LoggingLevel,
		"port", cfg.Server.Port,
		"upstream", cfg.Upstream.BaseURL,
		"upstream_model", cfg.Upstream.Model,
	)

	metrics := monitoring.New(cfg.Monitoring.PrometheusEnabled)
	debug := debuglog.New(cfg.Debug.Dir, cfg.Debug.MaxFieldLength, log)
	if debug.Enabled() {
		log.Info("Debug dumping enabled", "dir", cfg.Debug.Dir)
	}

	prx := proxy.New(cfg, log, metrics, debug)
	rtr := router.New(prx, log, &cfg.Monitoring)

	mux := http.NewServeMux()
	mux.Handle("/", rtr)

	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		log.Info("Prometheus metrics enabled", "path", "/metrics")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped")
}
