package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/integrasaude/hl7-engine/internal/config"
	"github.com/integrasaude/hl7-engine/internal/connector"
	"github.com/integrasaude/hl7-engine/internal/db"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go/jetstream"
)

// Server exposes the engine's health/metrics surface and an outbound send
// endpoint for platform callers. The dashboard UI itself lives elsewhere;
// this is API only.
type Server struct {
	echo     *echo.Echo
	js       jetstream.JetStream
	registry *connector.Registry
	config   *config.Config
}

func NewServer(js jetstream.JetStream, registry *connector.Registry, cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	return &Server{
		echo:     e,
		js:       js,
		registry: registry,
		config:   cfg,
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.setupRoutes()

	addr := fmt.Sprintf(":%d", s.config.WebPort)
	slog.Info("web server starting", "port", s.config.WebPort)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("web server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/connectors", s.handleListConnectors)
	api.GET("/connectors/:org/:id", s.handleConnectorHealth)
	api.POST("/connectors/:org/:id/send", s.handleSend)
	api.GET("/stats", s.handleStats)
	api.GET("/messages", s.handleGetMessages)
}

// handleHealth aggregates the registry health checks plus the queueing
// backend. Always answers, even with every connector down.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()

	checks := s.registry.HealthCheckAll(ctx)
	overallStatus := "healthy"
	for _, hs := range checks {
		if !hs.Healthy {
			overallStatus = "degraded"
			break
		}
	}

	natsStatus := "healthy"
	if _, err := s.js.AccountInfo(ctx); err != nil {
		natsStatus = "unhealthy: " + err.Error()
		overallStatus = "unhealthy"
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, map[string]interface{}{
		"status":     overallStatus,
		"timestamp":  time.Now(),
		"nats":       natsStatus,
		"connectors": checks,
	})
}

func (s *Server) handleListConnectors(c echo.Context) error {
	type entry struct {
		OrgID       string                    `json:"org_id"`
		ConnectorID string                    `json:"connector_id"`
		Channel     connector.Channel         `json:"channel"`
		Vendor      connector.Vendor          `json:"vendor"`
		Status      connector.Status          `json:"status"`
		Metrics     connector.MetricsSnapshot `json:"metrics"`
	}

	var out []entry
	for _, inst := range s.registry.All() {
		cfg := inst.Config()
		out = append(out, entry{
			OrgID:       cfg.OrgID,
			ConnectorID: cfg.ConnectorID,
			Channel:     cfg.Channel,
			Vendor:      cfg.Vendor,
			Status:      inst.Status(),
			Metrics:     inst.Metrics().Snapshot(),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleConnectorHealth(c echo.Context) error {
	inst, ok := s.registry.Get(c.Param("org"), c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "connector not found"})
	}
	return c.JSON(http.StatusOK, inst.HealthCheck(c.Request().Context()))
}

// handleSend accepts an outbound envelope and delivers it through the
// connector. The result carries the correlation id and error kind either
// way, so callers can tell a rejection from a transport failure.
func (s *Server) handleSend(c echo.Context) error {
	inst, ok := s.registry.Get(c.Param("org"), c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "connector not found"})
	}

	var env db.Envelope
	if err := c.Bind(&env); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid envelope: " + err.Error()})
	}

	result, err := inst.Send(c.Request().Context(), &env)
	if err != nil {
		return c.JSON(http.StatusBadGateway, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	stream, err := s.js.Stream(ctx, "HL7_INBOUND")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"inbound": db.StreamInfo{
			Name:          info.Config.Name,
			Messages:      info.State.Msgs,
			Bytes:         info.State.Bytes,
			FirstSequence: info.State.FirstSeq,
			LastSequence:  info.State.LastSeq,
		},
		"ingested": s.ingestCounters(ctx),
	})
}

// ingestCounters reads the per-message-type counters the ingest pipeline
// maintains. Empty when nothing has been ingested yet.
func (s *Server) ingestCounters(ctx context.Context) map[string]uint64 {
	out := map[string]uint64{}
	kv, err := s.js.KeyValue(ctx, "HL7_STATS")
	if err != nil {
		return out
	}
	keys, err := kv.Keys(ctx)
	if err != nil {
		return out
	}
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue
		}
		if n, err := strconv.ParseUint(string(entry.Value()), 10, 64); err == nil {
			out[strings.TrimPrefix(key, "ingested.")] = n
		}
	}
	return out
}

// handleGetMessages lists the recent message history, newest first.
func (s *Server) handleGetMessages(c echo.Context) error {
	ctx := c.Request().Context()

	kv, err := s.js.KeyValue(ctx, "HL7_HISTORY")
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	keys, err := kv.Keys(ctx)
	if err != nil {
		// an empty bucket reports "no keys found"
		return c.JSON(http.StatusOK, []db.MessageRecord{})
	}

	var messages []db.MessageRecord
	for _, key := range keys {
		entry, err := kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var record db.MessageRecord
		if err := json.Unmarshal(entry.Value(), &record); err != nil {
			continue
		}
		messages = append(messages, record)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})
	if len(messages) > 100 {
		messages = messages[:100]
	}
	return c.JSON(http.StatusOK, messages)
}
