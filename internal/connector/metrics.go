package connector

import (
	"sync"
	"time"
)

// emaAlpha weights the exponential moving average of send latency.
const emaAlpha = 0.2

// Metrics tracks one connector's traffic. Only the owning connector writes;
// health checks and the web API read snapshots.
type Metrics struct {
	mu             sync.Mutex
	sent           uint64
	received       uint64
	errors         uint64
	avgLatency     time.Duration
	lastMessageAt  time.Time
	lastErrorAt    time.Time
	connectedSince time.Time
}

// MetricsSnapshot is the read-only view exposed on the health surface.
type MetricsSnapshot struct {
	Sent           uint64     `json:"sent"`
	Received       uint64     `json:"received"`
	Errors         uint64     `json:"errors"`
	AvgLatency     float64    `json:"avg_latency_ms"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	LastErrorAt    *time.Time `json:"last_error_at,omitempty"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
}

func (m *Metrics) recordSend(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	m.lastMessageAt = time.Now()
	if m.avgLatency == 0 {
		m.avgLatency = latency
		return
	}
	m.avgLatency = time.Duration(emaAlpha*float64(latency) + (1-emaAlpha)*float64(m.avgLatency))
}

func (m *Metrics) recordReceive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received++
	m.lastMessageAt = time.Now()
}

func (m *Metrics) recordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors++
	m.lastErrorAt = time.Now()
}

func (m *Metrics) markConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectedSince = time.Now()
}

func (m *Metrics) markDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectedSince = time.Time{}
}

// Snapshot copies the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		Sent:       m.sent,
		Received:   m.received,
		Errors:     m.errors,
		AvgLatency: float64(m.avgLatency) / float64(time.Millisecond),
	}
	if !m.lastMessageAt.IsZero() {
		t := m.lastMessageAt
		s.LastMessageAt = &t
	}
	if !m.lastErrorAt.IsZero() {
		t := m.lastErrorAt
		s.LastErrorAt = &t
	}
	if !m.connectedSince.IsZero() {
		t := m.connectedSince
		s.ConnectedSince = &t
	}
	return s
}
