package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(time.Second)

	a := New(Config{OrgID: "org1", ConnectorID: "his", Host: "h", Port: 1})
	b := New(Config{OrgID: "org1", ConnectorID: "lab", Host: "h", Port: 2})
	c := New(Config{OrgID: "org2", ConnectorID: "his", Host: "h", Port: 3})
	for _, conn := range []*Connector{c, b, a} {
		if err := r.Register(conn); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if err := r.Register(New(Config{OrgID: "org1", ConnectorID: "his"})); err == nil {
		t.Error("duplicate Register succeeded")
	}

	got, ok := r.Get("org1", "lab")
	if !ok || got != b {
		t.Errorf("Get(org1, lab) = %v, %v", got, ok)
	}
	if _, ok := r.Get("org3", "his"); ok {
		t.Error("Get found unknown connector")
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("All = %d connectors, want 3", len(all))
	}
	// Stable key order.
	want := []string{"org1/his", "org1/lab", "org2/his"}
	for i, conn := range all {
		if conn.Config().Key() != want[i] {
			t.Errorf("All[%d] = %q, want %q", i, conn.Config().Key(), want[i])
		}
	}
}

// One hung endpoint must not stall the aggregate health surface: its check
// times out with a reason while the others report normally.
func TestHealthCheckAllBoundedByStuckConnector(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stuck := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer stuck.Close()

	fe := startFakeEndpoint(t, accept)
	healthy := startConnector(t, fe.config())

	hung := New(Config{
		OrgID: "org1", ConnectorID: "rest", Channel: ChannelREST,
		Endpoint: stuck.URL, SendTimeout: 30 * time.Second, AckTimeout: 30 * time.Second,
	})
	if err := hung.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(hung.Close)

	down := New(Config{OrgID: "org1", ConnectorID: "down", Host: "h", Port: 1})

	r := NewRegistry(250 * time.Millisecond)
	for _, c := range []*Connector{healthy, hung, down} {
		if err := r.Register(c); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	start := time.Now()
	results := r.HealthCheckAll(context.Background())
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("HealthCheckAll took %v, stuck connector stalled the aggregate", elapsed)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	hs := results[healthy.Config().Key()]
	if !hs.Healthy || hs.Status != StatusConnected {
		t.Errorf("healthy connector = %+v", hs)
	}

	hs = results[hung.Config().Key()]
	if hs.Healthy || hs.Reason == "" {
		t.Errorf("stuck connector = %+v, want unhealthy with reason", hs)
	}

	hs = results[down.Config().Key()]
	if hs.Healthy || hs.Reason != "not connected" {
		t.Errorf("never-connected connector = %+v", hs)
	}
}

func TestRegistryShutdownClosesAll(t *testing.T) {
	fe := startFakeEndpoint(t, accept)
	c := startConnector(t, fe.config())

	r := NewRegistry(time.Second)
	if err := r.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Shutdown()

	if c.Status() != StatusClosed {
		t.Errorf("Status = %q after Shutdown, want closed", c.Status())
	}
}
