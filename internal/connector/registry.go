package connector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry owns every connector instance in the process, keyed by
// organization and connector id. It is built at startup and torn down,
// disconnecting everything, at shutdown.
type Registry struct {
	mu           sync.RWMutex
	instances    map[string]*Connector
	checkTimeout time.Duration
}

// NewRegistry creates an empty registry. checkTimeout bounds each
// individual health check during HealthCheckAll.
func NewRegistry(checkTimeout time.Duration) *Registry {
	if checkTimeout <= 0 {
		checkTimeout = 5 * time.Second
	}
	return &Registry{
		instances:    make(map[string]*Connector),
		checkTimeout: checkTimeout,
	}
}

// Register adds a connector. One instance per (org, connector) key.
func (r *Registry) Register(c *Connector) error {
	key := c.Config().Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[key]; exists {
		return fmt.Errorf("connector %s already registered", key)
	}
	r.instances[key] = c
	return nil
}

// Get looks a connector up by organization and connector id.
func (r *Registry) Get(orgID, connectorID string) (*Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.instances[orgID+"/"+connectorID]
	return c, ok
}

// All returns the connectors in stable key order.
func (r *Registry) All() []*Connector {
	r.mu.RLock()
	keys := make([]string, 0, len(r.instances))
	for k := range r.instances {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*Connector, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.instances[k])
	}
	r.mu.RUnlock()
	return out
}

// ConnectAll brings every connector up, continuing past individual
// failures; their restore loops keep retrying in the background.
func (r *Registry) ConnectAll(ctx context.Context) {
	for _, c := range r.All() {
		if err := c.Connect(ctx); err != nil {
			slog.Error("connector failed to start",
				"org", c.Config().OrgID,
				"connector", c.Config().ConnectorID,
				"error", err)
		}
	}
}

// HealthCheckAll runs every connector's health check concurrently, each
// bounded by the per-check timeout. One stuck connector cannot stall the
// aggregate: its check is reported unhealthy with a timeout reason and the
// rest complete normally.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	connectors := r.All()
	results := make(map[string]HealthStatus, len(connectors))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range connectors {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, r.checkTimeout)
			defer cancel()

			done := make(chan HealthStatus, 1)
			go func() {
				done <- c.HealthCheck(checkCtx)
			}()

			var hs HealthStatus
			select {
			case hs = <-done:
			case <-checkCtx.Done():
				hs = HealthStatus{
					OrgID:       c.Config().OrgID,
					ConnectorID: c.Config().ConnectorID,
					Status:      c.Status(),
					Reason:      fmt.Sprintf("health check timed out after %s", r.checkTimeout),
					Metrics:     c.Metrics().Snapshot(),
				}
			}

			mu.Lock()
			results[c.Config().Key()] = hs
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// Shutdown closes every connector.
func (r *Registry) Shutdown() {
	for _, c := range r.All() {
		c.Close()
	}
	slog.Info("registry shut down", "connectors", len(r.instances))
}
