package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/integrasaude/hl7-engine/internal/db"
	"github.com/integrasaude/hl7-engine/internal/hl7"
	"github.com/integrasaude/hl7-engine/internal/mllp"
)

// Status is the connector lifecycle state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusClosed       Status = "closed"
)

// Connector moves HL7 messages between the platform and one hospital
// system endpoint. MLLP connectors own a connection pool; XML and REST
// connectors own an HTTP channel. All sends go through the retry policy:
// transport errors are retried with bounded exponential backoff, everything
// else propagates immediately.
type Connector struct {
	cfg     Config
	vendor  VendorAdapter
	metrics *Metrics

	pool *mllp.Pool
	xml  *xmlChannel
	rest *restChannel

	mu     sync.Mutex
	status Status
}

// New builds a connector from its configuration. No I/O happens until
// Connect.
func New(cfg Config) *Connector {
	cfg.applyDefaults()

	c := &Connector{
		cfg:     cfg,
		vendor:  newVendorAdapter(cfg.Vendor),
		metrics: &Metrics{},
		status:  StatusDisconnected,
	}
	switch cfg.Channel {
	case ChannelXML:
		c.xml = newXMLChannel(cfg)
	case ChannelREST:
		c.rest = newRESTChannel(cfg)
	default:
		c.pool = mllp.NewPool(mllp.PoolConfig{
			Addr:           cfg.Addr(),
			Size:           cfg.PoolSize,
			DialTimeout:    cfg.ConnectTimeout,
			AcquireTimeout: cfg.AcquireTimeout,
			KeepAlive:      cfg.KeepAlive,
			Framing:        cfg.framing(),
		})
	}
	return c
}

// Config returns the connector configuration.
func (c *Connector) Config() Config { return c.cfg }

// Metrics exposes the connector metrics for the health surface.
func (c *Connector) Metrics() *Metrics { return c.metrics }

// Connect brings the transport up.
func (c *Connector) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)

	if c.pool != nil {
		if err := c.pool.Connect(ctx); err != nil {
			c.setStatus(StatusDisconnected)
			return err
		}
	}
	c.setStatus(StatusConnected)
	c.metrics.markConnected()

	slog.Info("connector up",
		"org", c.cfg.OrgID,
		"connector", c.cfg.ConnectorID,
		"channel", c.cfg.Channel,
		"vendor", c.cfg.Vendor)
	return nil
}

// Status reports the lifecycle state; for MLLP connectors a degraded pool
// shows as reconnecting until it is back at target capacity.
func (c *Connector) Status() Status {
	c.mu.Lock()
	s := c.status
	c.mu.Unlock()

	if s == StatusConnected && c.pool != nil && c.pool.Missing() > 0 {
		return StatusReconnecting
	}
	return s
}

func (c *Connector) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Send delivers an outbound envelope and waits for the remote system's
// acknowledgment. The returned result always carries the correlation id,
// the attempt count and the measured latency, error or not.
func (c *Connector) Send(ctx context.Context, env *db.Envelope) (*db.SendResult, error) {
	if c.Status() == StatusClosed {
		return nil, ErrClosed
	}
	if env.ID == "" {
		env.ID = uuid.New().String()
	}

	msg, err := c.buildMessage(env)
	if err != nil {
		return &db.SendResult{CorrelationID: env.ID, Error: err.Error()}, err
	}
	if err := c.vendor.EnrichOutbound(msg, env); err != nil {
		return &db.SendResult{CorrelationID: env.ID, Error: err.Error()}, err
	}

	result := &db.SendResult{
		CorrelationID: env.ID,
		ControlID:     msg.ControlID,
	}

	start := time.Now()
	delay := c.cfg.Retry.BaseDelay
	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		ackCode, err := c.sendOnce(ctx, msg)
		result.Latency = time.Since(start)
		if err == nil {
			result.AckCode = ackCode
			c.metrics.recordSend(result.Latency)
			return result, nil
		}

		c.metrics.recordError()
		result.Error = err.Error()

		if !Retryable(err) || attempt >= c.cfg.Retry.MaxAttempts {
			return result, err
		}

		slog.Warn("send failed, retrying",
			"org", c.cfg.OrgID,
			"connector", c.cfg.ConnectorID,
			"controlID", msg.ControlID,
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return result, fmt.Errorf("send cancelled: %w", ctx.Err())
		}
		delay *= 2
	}
}

func (c *Connector) sendOnce(ctx context.Context, msg *hl7.Message) (string, error) {
	switch c.cfg.Channel {
	case ChannelXML:
		return "", c.xml.Send(ctx, msg)
	case ChannelREST:
		return "", c.rest.Send(ctx, msg)
	default:
		return c.sendMLLP(ctx, msg)
	}
}

// sendMLLP performs one strict request/reply exchange on one pooled
// connection: write the framed message, then read reply frames until one
// carries the matching MSA-2 control id. A mismatched or late reply can
// never complete this send; it is logged and dropped. Whatever happens,
// the connection goes back to the pool (Release) or is replaced (Discard).
func (c *Connector) sendMLLP(ctx context.Context, msg *hl7.Message) (string, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}

	broken := false
	defer func() {
		if broken {
			c.pool.Discard(conn)
		} else {
			c.pool.Release(conn)
		}
	}()

	if err := conn.WriteFrame(msg.Encode(), c.cfg.SendTimeout); err != nil {
		broken = true
		return "", err
	}

	deadline := time.Now().Add(c.cfg.AckTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("%w: control id %s after %s", ErrAckTimeout, msg.ControlID, c.cfg.AckTimeout)
		}

		frame, err := conn.ReadFrame(remaining)
		if err != nil {
			if errors.Is(err, mllp.ErrReadTimeout) {
				return "", fmt.Errorf("%w: control id %s after %s", ErrAckTimeout, msg.ControlID, c.cfg.AckTimeout)
			}
			broken = true
			return "", err
		}

		reply, err := hl7.Parse(frame)
		if err != nil {
			slog.Warn("unparseable reply discarded",
				"org", c.cfg.OrgID,
				"connector", c.cfg.ConnectorID,
				"controlID", msg.ControlID,
				"error", err)
			continue
		}

		ackID := hl7.AckControlID(reply)
		if ackID != msg.ControlID {
			// Correlation guard: an ACK for another send (late reply from a
			// previous operation on this connection) must not resolve this
			// one.
			slog.Warn("mismatched ack discarded",
				"org", c.cfg.OrgID,
				"connector", c.cfg.ConnectorID,
				"want", msg.ControlID,
				"got", ackID,
				"cause", ErrProtocolViolation)
			continue
		}

		c.metrics.recordReceive()
		if ackErr := hl7.AckErr(reply); ackErr != nil {
			return hl7.AckCode(reply), fmt.Errorf("%w: %v", ErrVendorRejected, ackErr)
		}
		if ext := c.vendor.ParseExtensions(reply); len(ext) > 0 {
			slog.Debug("vendor extensions in ack", "controlID", msg.ControlID, "fields", ext)
		}
		return hl7.AckCode(reply), nil
	}
}

// buildMessage assembles the wire message for an envelope: a fresh MSH from
// the connector identity plus the payload segments.
func (c *Connector) buildMessage(env *db.Envelope) (*hl7.Message, error) {
	sendingApp := env.Source
	if sendingApp == "" {
		sendingApp = c.cfg.SendingApp
	}
	receivingApp := env.Destination
	if receivingApp == "" {
		receivingApp = c.cfg.ReceivingApp
	}

	msg := hl7.NewMessage(hl7.HeaderInfo{
		SendingApp:      sendingApp,
		SendingFacility: c.cfg.SendingFacility,
		ReceivingApp:    receivingApp,
		ReceivingFac:    c.cfg.ReceivingFac,
		Type:            env.Type,
		Timestamp:       env.Timestamp,
	})

	for _, line := range strings.FieldsFunc(env.Payload, func(r rune) bool {
		return r == '\r' || r == '\n'
	}) {
		if strings.HasPrefix(line, "MSH") {
			continue // header is rebuilt, not copied
		}
		seg, err := hl7.ParseSegment(line, msg.Delimiters)
		if err != nil {
			return nil, err
		}
		msg.Append(seg)
	}
	return msg, nil
}

// HealthStatus is the per-connector health record. Health checks always
// produce one of these, they never raise.
type HealthStatus struct {
	OrgID       string          `json:"org_id"`
	ConnectorID string          `json:"connector_id"`
	Healthy     bool            `json:"healthy"`
	Status      Status          `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Metrics     MetricsSnapshot `json:"metrics"`
}

// HealthCheck probes the remote endpoint within the context deadline and
// combines the outcome with the lifecycle state.
func (c *Connector) HealthCheck(ctx context.Context) HealthStatus {
	hs := HealthStatus{
		OrgID:       c.cfg.OrgID,
		ConnectorID: c.cfg.ConnectorID,
		Status:      c.Status(),
		Metrics:     c.metrics.Snapshot(),
	}
	if hs.Status == StatusClosed || hs.Status == StatusDisconnected {
		hs.Reason = "not connected"
		return hs
	}

	var err error
	switch c.cfg.Channel {
	case ChannelXML:
		err = c.xml.Ping(ctx)
	case ChannelREST:
		err = c.rest.Ping(ctx)
	default:
		timeout := 5 * time.Second
		if d, ok := ctx.Deadline(); ok {
			timeout = time.Until(d)
		}
		err = mllp.Probe(ctx, c.cfg.Addr(), timeout)
	}
	if err != nil {
		hs.Reason = err.Error()
		return hs
	}

	hs.Healthy = hs.Status == StatusConnected
	if !hs.Healthy {
		hs.Reason = string(hs.Status)
	}
	return hs
}

// Close tears the connector down. Idempotent.
func (c *Connector) Close() {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.status = StatusClosed
	c.mu.Unlock()

	if c.pool != nil {
		c.pool.Close()
	}
	c.metrics.markDisconnected()
	slog.Info("connector closed", "org", c.cfg.OrgID, "connector", c.cfg.ConnectorID)
}
