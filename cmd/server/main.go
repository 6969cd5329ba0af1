package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/integrasaude/hl7-engine/internal/config"
	"github.com/integrasaude/hl7-engine/internal/connector"
	"github.com/integrasaude/hl7-engine/internal/ingest"
	"github.com/integrasaude/hl7-engine/internal/mllp"
	"github.com/integrasaude/hl7-engine/internal/nats"
	"github.com/integrasaude/hl7-engine/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration failed to load", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Embedded NATS server backs the inbound queue and the KV buckets
	natsServer, err := nats.NewEmbeddedServer(cfg.DataPath)
	if err != nil {
		slog.Error("NATS server failed to start", "error", err)
		os.Exit(1)
	}
	defer natsServer.Shutdown()

	js := natsServer.JetStream()

	// Inbound MLLP listener: hospital systems push ADT/ORM/ORU here
	listener := mllp.NewServer(cfg.ListenPort, "default", mllp.DefaultFraming(), js)
	if err := listener.Start(ctx); err != nil {
		slog.Error("MLLP listener failed to start", "error", err)
		os.Exit(1)
	}
	defer listener.Stop()

	// Ingestion pipeline: queued raw messages become typed records
	pipeline := ingest.NewPipeline(js, ingest.LogIngestor{})
	if err := pipeline.Start(ctx); err != nil {
		slog.Error("ingest pipeline failed to start", "error", err)
		os.Exit(1)
	}

	// Outbound connectors, one instance per (org, connector) declaration
	registry := connector.NewRegistry(cfg.HealthCheckTimeout)
	for _, connCfg := range cfg.Connectors {
		if err := registry.Register(connector.New(connCfg)); err != nil {
			slog.Error("connector registration failed", "key", connCfg.Key(), "error", err)
			os.Exit(1)
		}
	}
	registry.ConnectAll(ctx)
	defer registry.Shutdown()

	webServer := web.NewServer(js, registry, cfg)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webServer.Start(ctx); err != nil {
			slog.Error("web server failed", "error", err)
		}
	}()

	slog.Info("HL7 engine started",
		"listenPort", cfg.ListenPort,
		"webPort", cfg.WebPort,
		"connectors", len(cfg.Connectors),
	)

	<-sigChan
	slog.Info("shutdown signal received, stopping")

	cancel()
	wg.Wait()

	slog.Info("HL7 engine stopped")
}
