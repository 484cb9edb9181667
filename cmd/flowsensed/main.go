package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flowsense/internal/api"
	"flowsense/internal/assessments"
	"flowsense/internal/config"
	"flowsense/internal/ingest"
	"flowsense/internal/logging"
	"flowsense/internal/model"
	"flowsense/internal/service"
	"flowsense/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "flowsense.yaml", "path to config file")
	flag.Parse()

	var mgr *config.Manager
	if _, err := os.Stat(*configPath); err == nil {
		m, err := config.NewManager(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		mgr = m
	} else {
		mgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := mgr.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting flowsensed", "version", version, "config", mgr.Path())

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if store != nil {
		initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := store.Init(initCtx); err != nil {
			initCancel()
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		initCancel()
		defer store.Close()
	}

	assessmentsStore := assessments.NewStore(cfg.Assessments.StoreLimit)
	svc := service.New(cfg, logger, assessmentsStore, store)

	out := make(chan model.Sample, cfg.Ingest.ChannelBuffer)
	svc.Start(ctx, out)

	parser := ingest.NewParser()
	ingest.StartREST(ctx, mgr, out, logger)
	ingest.StartTCPStream(ctx, mgr, parser, out, logger)
	ingest.StartUDP(ctx, mgr, parser, out, logger)
	ingest.StartFileTail(ctx, mgr, parser, out, logger)
	ingest.StartKafka(ctx, mgr, parser, out, logger)
	ingest.StartNATS(ctx, mgr, parser, out, logger)

	api.Start(ctx, mgr, assessmentsStore, svc, logger, version)

	stopWatch := make(chan struct{})
	go mgr.Watch(3*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded", "path", mgr.Path())
			svc.UpdateConfig(next)
		},
		func(err error) {
			logger.Warn("config reload error", "err", err)
		},
		stopWatch,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	close(stopWatch)
	cancel()
	time.Sleep(200 * time.Millisecond)
}
