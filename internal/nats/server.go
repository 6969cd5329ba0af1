package nats

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// EmbeddedServer runs an in-process NATS server with JetStream enabled.
// The engine uses it for durable queueing of inbound traffic and for the
// stats/history KV buckets; nothing is exposed outside the process.
type EmbeddedServer struct {
	server *server.Server
	nc     *nats.Conn
	js     jetstream.JetStream
}

func NewEmbeddedServer(dataDir string) (*EmbeddedServer, error) {
	opts := &server.Options{
		JetStream: true,
		StoreDir:  filepath.Join(dataDir, "nats-store"),
		Port:      -1, // internal use only, random port
		HTTPPort:  -1,
	}

	if err := os.MkdirAll(opts.StoreDir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		return nil, fmt.Errorf("NATS server did not become ready")
	}

	slog.Info("embedded NATS server started", "clientURL", ns.ClientURL())

	nc, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		ns.Shutdown()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	es := &EmbeddedServer{
		server: ns,
		nc:     nc,
		js:     js,
	}

	if err := es.createStreams(); err != nil {
		es.Shutdown()
		return nil, err
	}
	if err := es.createKVStores(); err != nil {
		es.Shutdown()
		return nil, err
	}

	return es, nil
}

func (es *EmbeddedServer) createStreams() error {
	inboundConfig := jetstream.StreamConfig{
		Name:        "HL7_INBOUND",
		Description: "inbound HL7 messages awaiting extraction",
		Subjects:    []string{"hl7.inbound.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		MaxMsgs:     1000000,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
	}

	if _, err := es.js.CreateOrUpdateStream(context.Background(), inboundConfig); err != nil {
		return fmt.Errorf("create inbound stream: %w", err)
	}
	slog.Info("HL7_INBOUND stream ready")
	return nil
}

func (es *EmbeddedServer) createKVStores() error {
	ctx := context.Background()

	_, err := es.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      "HL7_STATS",
		Description: "per-connector traffic statistics",
		History:     10,
		MaxBytes:    1024 * 1024,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stats KV store: %w", err)
	}

	_, err = es.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      "HL7_DLQ",
		Description: "messages that exhausted redelivery",
		History:     1,
		TTL:         7 * 24 * time.Hour,
		MaxBytes:    100 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create DLQ KV store: %w", err)
	}

	_, err = es.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      "HL7_HISTORY",
		Description: "recent message history for the dashboard API",
		History:     1,
		TTL:         24 * time.Hour,
		MaxBytes:    500 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create history KV store: %w", err)
	}

	slog.Info("KV stores ready", "buckets", []string{"HL7_STATS", "HL7_DLQ", "HL7_HISTORY"})
	return nil
}

func (es *EmbeddedServer) JetStream() jetstream.JetStream {
	return es.js
}

func (es *EmbeddedServer) Connection() *nats.Conn {
	return es.nc
}

func (es *EmbeddedServer) Shutdown() {
	if es.nc != nil {
		es.nc.Close()
	}
	if es.server != nil {
		es.server.Shutdown()
		es.server.WaitForShutdown()
	}
	slog.Info("NATS server stopped")
}
