package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridflow/config"
	"gridflow/internal/exchange"
	"gridflow/internal/exchange/bybit"
	"gridflow/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// A missing .env file is fine; credentials may already be exported.
	_ = godotenv.Load()

	log := logger.GetLogger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	logger.StartReport(ctx, log, time.Minute)

	log.WithFields(logger.Fields{
		"name":    cfg.Gridflow.Name,
		"version": cfg.Gridflow.Version,
		"symbol":  cfg.Account.Symbol,
		"env":     config.AppEnvironment(),
	}).Info("gridflow starting")

	adapter, err := bybit.NewAdapter(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("failed to build exchange adapter")
		os.Exit(1)
	}

	if err := adapter.Setup(ctx); err != nil {
		log.WithError(err).Error("exchange setup failed")
		os.Exit(1)
	}
	if err := adapter.Refresh(ctx); err != nil {
		log.WithError(err).Error("initial account refresh failed")
		os.Exit(1)
	}
	if err := adapter.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start streams")
		os.Exit(1)
	}

	runSupervisor(ctx, adapter)

	adapter.Stop()
	log.Info("gridflow stopped")
}

// runSupervisor keeps the local account view trustworthy: whenever the
// adapter flags that its book may have diverged it is rebuilt from REST.
func runSupervisor(ctx context.Context, adapter exchange.Adapter) {
	log := logger.GetLogger().WithComponent("supervisor")
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !adapter.NeedsRefresh() {
				continue
			}
			log.Warn("account view flagged stale, refreshing")
			if err := adapter.Refresh(ctx); err != nil {
				log.WithError(err).Error("account refresh failed")
			}
		}
	}
}

func handleShutdown(cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.GetLogger().Info("shutdown signal received")
	cancel()
}
