package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"signalflow/config"
	"signalflow/internal/alert"
	"signalflow/internal/archiver"
	"signalflow/internal/broadcast"
	"signalflow/internal/cache"
	"signalflow/internal/model"
	"signalflow/internal/papertrader"
	"signalflow/internal/processor"
	"signalflow/internal/reader/binance"
	"signalflow/internal/scheduler"
	"signalflow/internal/server"
	"signalflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Signalflow.Name,
		"version": cfg.Signalflow.Version,
	}).Info("starting signalflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}
	if strings.ToLower(cfg.Logging.Level) != "error" {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval())
	}

	client := binance.NewClient(cfg)
	client.DiscoverWeightLimit(ctx)

	store := cache.New(cfg.Scanner.CacheDuration())
	hub := broadcast.NewHub(func() []*model.Record { return store.Snapshot() })
	proc := processor.New(cfg, client)

	var sinks []scheduler.RecordSink

	var notifier *alert.Notifier
	if cfg.Alerts.Enabled {
		notifier = alert.New(cfg)
		sinks = append(sinks, notifier)
	}

	var trader *papertrader.Trader
	if cfg.PaperTrader.Enabled {
		trader, err = papertrader.New(cfg)
		if err != nil {
			log.WithError(err).Error("Failed to start paper trader")
			os.Exit(1)
		}
		defer trader.Close()
		sinks = append(sinks, trader)
	}

	archive, err := archiver.NewArchiver(cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create archiver")
		os.Exit(1)
	}
	if archive != nil {
		if err := archive.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start archiver")
			os.Exit(1)
		}
		sinks = append(sinks, archive)
	}

	sched := scheduler.New(cfg, client, proc, store, hub, sinks...)
	httpServer := server.NewServer(cfg, store, hub, notifier, trader)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(ctx); err != nil {
			log.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutdown signal received")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		if archive != nil {
			archive.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("signalflow stopped")
}
