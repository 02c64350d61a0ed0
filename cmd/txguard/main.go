// Command txguard scores card transactions for fraud risk as they arrive over
// REST, TCP, tailed files or Kafka, and serves the evaluation API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"txguard/internal/alerts"
	"txguard/internal/api"
	"txguard/internal/config"
	"txguard/internal/engine"
	"txguard/internal/health"
	"txguard/internal/ingest"
	"txguard/internal/logging"
	"txguard/internal/normalize"
	"txguard/internal/pipeline"
	"txguard/internal/publish"
	"txguard/internal/reputation"
	"txguard/internal/storage"
	"txguard/internal/traces"
)

// Set by ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML or JSON config file")
	flag.Parse()

	manager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting txguard", "version", Version, "config", manager.Path())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTraces, err := traces.Init(ctx, cfg.Tracing.Endpoint, Version, logger)
	if err != nil {
		logger.Error("failed to init tracing", "err", err)
		os.Exit(1)
	}

	registry := health.NewRegistry(2 * time.Second)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("failed to open storage", "err", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("failed to init storage", "err", err)
			os.Exit(1)
		}
		registry.RegisterPing("storage", store.Ping)
		logger.Info("audit storage enabled", "driver", cfg.Storage.Driver)
	}

	eng := engine.NewEngine(cfg, logger)
	alertStore := alerts.NewStore(cfg.Alerts.StoreLimit)

	var publisher pipeline.Publisher
	var kafkaPublisher *publish.Publisher
	if cfg.Publish.Enabled {
		kafkaPublisher = publish.New(publish.NewKafkaWriter(cfg.Publish))
		publisher = kafkaPublisher
		logger.Info("verdict publishing enabled", "brokers", cfg.Publish.Brokers, "topic", cfg.Publish.Topic)
	}

	if cfg.Reputation.Enabled {
		client := reputation.NewClient(cfg.Reputation)
		defer client.Close()
		registry.RegisterPing("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		go reputation.NewSyncer(client, eng, cfg.Reputation, logger).Run(ctx)
	}

	proc := pipeline.NewProcessor(eng, alertStore, store, publisher, logger)
	in := make(chan *normalize.Fields, cfg.Ingest.ChannelBuffer)
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		pipeline.New(proc, cfg.Pipeline.Workers, cfg.Pipeline.WorkerQueue, logger).Run(ctx, in)
	}()

	ingest.StartREST(ctx, manager, in, logger)
	ingest.StartTCPStream(ctx, manager, in, logger)
	ingest.StartFileTail(ctx, manager, in, logger)
	ingest.StartKafka(ctx, manager, in, logger)

	api.Start(ctx, api.Deps{
		Config:    manager,
		Engine:    eng,
		Processor: proc,
		Alerts:    alertStore,
		Store:     store,
		Health:    registry,
		Logger:    logger,
		Version:   Version,
	})

	go manager.Watch(3*time.Second, func(next *config.Config) {
		eng.UpdateConfig(next)
		logger.Info("config reloaded")
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("shutting down")

	select {
	case <-pipelineDone:
	case <-time.After(10 * time.Second):
		logger.Warn("pipeline did not drain in time")
	}

	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Warn("publisher close failed", "err", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("storage close failed", "err", err)
		}
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTraces(flushCtx); err != nil {
		logger.Warn("trace flush failed", "err", err)
	}
	logger.Info("txguard stopped")
}
