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
	"github.com/ajitpratap0/marketpulse/internal/config"
	"github.com/ajitpratap0/marketpulse/internal/metrics"
	"github.com/ajitpratap0/marketpulse/internal/processor"
	"github.com/ajitpratap0/marketpulse/internal/warehouse"
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
	log.Info().Str("environment", cfg.App.Environment).Msg("Starting MarketPulse processor service")

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

	// The warehouse sink is thin by design; an unreachable database is a
	// degraded mode, not a startup failure.
	var store *warehouse.Store
	database, err := warehouse.New(ctx, &cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("Warehouse unavailable, continuing without persistence")
	} else {
		defer database.Close()
		store = warehouse.NewStore(database.Pool())
		if _, err := store.ConsumeRawEvents(publisher); err != nil {
			log.Error().Err(err).Msg("Raw event sink unavailable")
		}
	}

	proc := processorWithStore(cfg, publisher, store)
	proc.Start(ctx)
	if err := proc.WatchMarketData(publisher); err != nil {
		log.Error().Err(err).Msg("Market data watch unavailable, anomaly detection degraded")
	}

	pushSrv := processor.NewServer(proc).Serve(cfg.API.GetAPIAddr())

	var metricsSrv *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsSrv = metrics.NewServer(fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort), log.Logger)
		metricsSrv.Start()
	}

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := pushSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Push server shutdown error")
	}
	proc.Stop()
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}

	log.Info().Msg("Processor service stopped")
}

// processorWithStore keeps the nil-interface pitfall out of main: a nil
// *warehouse.Store must become a nil ContextStore, not a typed nil.
func processorWithStore(cfg *config.Config, publisher *bus.Publisher, store *warehouse.Store) *processor.Processor {
	if store == nil {
		return processor.New(&cfg.Processor, publisher, nil)
	}
	return processor.New(&cfg.Processor, publisher, store)
}
