package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpulse/internal/bus"
	"github.com/ajitpratap0/marketpulse/internal/collectors"
	"github.com/ajitpratap0/marketpulse/internal/config"
	"github.com/ajitpratap0/marketpulse/internal/metrics"
	"github.com/ajitpratap0/marketpulse/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	log.Info().Str("environment", cfg.App.Environment).Msg("Starting MarketPulse collector service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	publisher, err := bus.NewPublisher(bus.Config{
		NATSURL: cfg.Bus.URL,
		Prefix:  cfg.Bus.TopicPrefix,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to topic bus")
	}
	defer publisher.Close()

	registry := collectors.DefaultRegistry()
	built := collectors.BuildEnabled(cfg, registry, publisher)
	if len(built) == 0 {
		log.Warn().Msg("No collectors enabled; the scheduler will idle")
	}

	sched := scheduler.New(cfg, built)
	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	adminSrv := scheduler.NewAPI(sched, registry, cfg.API.AdminAPIKey).Serve(cfg.API.GetAPIAddr())

	var metricsSrv *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsSrv = metrics.NewServer(fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort), log.Logger)
		metricsSrv.Start()
	}

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Admin API shutdown error")
	}
	sched.Stop()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}

	log.Info().Msg("Collector service stopped")
}
