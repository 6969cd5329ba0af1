package connector

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/integrasaude/hl7-engine/internal/db"
	"github.com/integrasaude/hl7-engine/internal/hl7"
	"github.com/integrasaude/hl7-engine/internal/mllp"
)

// fakeEndpoint is an in-process MLLP responder. The reply function maps
// each received message to zero or more reply messages; received messages
// are also published for assertions.
type fakeEndpoint struct {
	t        *testing.T
	ln       net.Listener
	received chan *hl7.Message
	reply    func(msg *hl7.Message) []*hl7.Message
}

func startFakeEndpoint(t *testing.T, reply func(msg *hl7.Message) []*hl7.Message) *fakeEndpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fe := &fakeEndpoint{t: t, ln: ln, received: make(chan *hl7.Message, 16), reply: reply}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go fe.serve(nc)
		}
	}()
	return fe
}

func (fe *fakeEndpoint) serve(nc net.Conn) {
	defer nc.Close()
	fr := mllp.NewFrameReader(nc, mllp.DefaultFraming())
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			return
		}
		msg, err := hl7.Parse(frame)
		if err != nil {
			continue
		}
		fe.received <- msg
		for _, reply := range fe.reply(msg) {
			nc.Write(mllp.DefaultFraming().Wrap(reply.Encode()))
		}
	}
}

func (fe *fakeEndpoint) config() Config {
	host, portStr, _ := net.SplitHostPort(fe.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return Config{
		OrgID:       "org1",
		ConnectorID: "his",
		Channel:     ChannelMLLP,
		Host:        host,
		Port:        port,
		PoolSize:    1,
		SendTimeout: time.Second,
		AckTimeout:  300 * time.Millisecond,
		Retry:       RetryPolicy{MaxAttempts: 1, BaseDelay: 10 * time.Millisecond},
	}
}

func startConnector(t *testing.T, cfg Config) *Connector {
	t.Helper()
	c := New(cfg)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func accept(msg *hl7.Message) []*hl7.Message {
	return []*hl7.Message{hl7.BuildACK(msg, hl7.AckAccept, "")}
}

func testEnvelope() *db.Envelope {
	return &db.Envelope{
		Type:    "ADT^A01",
		Payload: "PID|1||123456^^^HOSP^MR||SILVA^JOAO\rPV1|1|I",
	}
}

func TestSendAcknowledged(t *testing.T) {
	fe := startFakeEndpoint(t, accept)
	c := startConnector(t, fe.config())

	result, err := c.Send(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.AckCode != hl7.AckAccept {
		t.Errorf("AckCode = %q, want AA", result.AckCode)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
	if result.CorrelationID == "" || result.ControlID == "" {
		t.Errorf("missing ids: %+v", result)
	}
	if result.Latency <= 0 {
		t.Errorf("Latency = %v", result.Latency)
	}

	got := <-fe.received
	if got.Type != "ADT^A01" {
		t.Errorf("wire type = %q", got.Type)
	}
	if got.ControlID != result.ControlID {
		t.Errorf("wire control id = %q, want %q", got.ControlID, result.ControlID)
	}
	// The envelope header is rebuilt, never copied from the payload.
	if len(got.Segments("MSH")) != 1 {
		t.Errorf("MSH segments = %d, want 1", len(got.Segments("MSH")))
	}
	if got.Segment("PID") == nil || got.Segment("PV1") == nil {
		t.Error("payload segments missing on the wire")
	}

	snap := c.Metrics().Snapshot()
	if snap.Sent != 1 || snap.Received != 1 || snap.Errors != 0 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestSendIgnoresMismatchedAck(t *testing.T) {
	fe := startFakeEndpoint(t, func(msg *hl7.Message) []*hl7.Message {
		stray := hl7.BuildACK(msg, hl7.AckAccept, "")
		stray.Segment("MSA").SetField(2, "SOMEONE-ELSE")
		return []*hl7.Message{stray, hl7.BuildACK(msg, hl7.AckAccept, "")}
	})
	c := startConnector(t, fe.config())

	result, err := c.Send(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.AckCode != hl7.AckAccept {
		t.Errorf("AckCode = %q, want AA from the matching ack", result.AckCode)
	}
}

func TestSendAckTimeout(t *testing.T) {
	fe := startFakeEndpoint(t, func(msg *hl7.Message) []*hl7.Message {
		stray := hl7.BuildACK(msg, hl7.AckAccept, "")
		stray.Segment("MSA").SetField(2, "WRONG-ID")
		return []*hl7.Message{stray} // never the matching one
	})
	c := startConnector(t, fe.config())

	result, err := c.Send(context.Background(), testEnvelope())
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("err = %v, want ErrAckTimeout", err)
	}
	if result.Error == "" {
		t.Error("result.Error empty")
	}
}

// An acknowledgment timeout is not a transport fault: the connection goes
// back to the pool and the next send reuses it.
func TestSendAfterAckTimeoutReusesConnection(t *testing.T) {
	first := true
	fe := startFakeEndpoint(t, func(msg *hl7.Message) []*hl7.Message {
		if first {
			first = false
			return nil // swallow the first message
		}
		return accept(msg)
	})
	c := startConnector(t, fe.config())

	if _, err := c.Send(context.Background(), testEnvelope()); !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("first send err = %v, want ErrAckTimeout", err)
	}
	if got := c.pool.Missing(); got != 0 {
		t.Fatalf("Missing = %d after ack timeout, want 0", got)
	}

	result, err := c.Send(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if result.AckCode != hl7.AckAccept {
		t.Errorf("AckCode = %q", result.AckCode)
	}
}

func TestSendVendorRejectedNotRetried(t *testing.T) {
	fe := startFakeEndpoint(t, func(msg *hl7.Message) []*hl7.Message {
		return []*hl7.Message{hl7.BuildACK(msg, hl7.AckError, "duplicate record")}
	})
	cfg := fe.config()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}
	c := startConnector(t, cfg)

	result, err := c.Send(context.Background(), testEnvelope())
	if !errors.Is(err, ErrVendorRejected) {
		t.Fatalf("err = %v, want ErrVendorRejected", err)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, business rejections must not retry", result.Attempts)
	}
	if result.Error == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestSendRetriesAfterAckTimeout(t *testing.T) {
	// The endpoint swallows the first delivery; the retry succeeds.
	calls := 0
	fe := startFakeEndpoint(t, func(msg *hl7.Message) []*hl7.Message {
		calls++
		if calls == 1 {
			return nil
		}
		return accept(msg)
	})
	cfg := fe.config()
	cfg.Retry = RetryPolicy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond}
	c := startConnector(t, cfg)

	result, err := c.Send(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", result.Attempts)
	}
	if result.AckCode != hl7.AckAccept {
		t.Errorf("AckCode = %q", result.AckCode)
	}
}

func TestRetryableClassification(t *testing.T) {
	if !Retryable(ErrAckTimeout) || !Retryable(mllp.ErrConnectionFailed) ||
		!Retryable(mllp.ErrPoolExhausted) || !Retryable(mllp.ErrReadTimeout) {
		t.Error("transport errors must be retryable")
	}
	if Retryable(ErrVendorRejected) || Retryable(ErrProtocolViolation) || Retryable(ErrAuthError) {
		t.Error("business errors must not be retryable")
	}
}

func TestSendOnClosedConnector(t *testing.T) {
	fe := startFakeEndpoint(t, accept)
	c := startConnector(t, fe.config())
	c.Close()

	if _, err := c.Send(context.Background(), testEnvelope()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if c.Status() != StatusClosed {
		t.Errorf("Status = %q", c.Status())
	}
}

func TestTasyEnrichment(t *testing.T) {
	fe := startFakeEndpoint(t, accept)
	cfg := fe.config()
	cfg.Vendor = VendorTasy
	c := startConnector(t, cfg)

	env := testEnvelope()
	result, err := c.Send(context.Background(), env)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := <-fe.received
	zty := got.Segment("ZTY")
	if zty == nil {
		t.Fatal("no ZTY segment on the wire")
	}
	if zty.Field(2) != "123456" {
		t.Errorf("ZTY-2 = %q, want record number from PID-3", zty.Field(2))
	}
	if zty.Field(5) != result.CorrelationID {
		t.Errorf("ZTY-5 = %q, want envelope id %q", zty.Field(5), result.CorrelationID)
	}
}

func TestVendorAdapterDispatch(t *testing.T) {
	tests := []struct {
		vendor Vendor
		want   Vendor
	}{
		{VendorTasy, VendorTasy},
		{VendorMV, VendorMV},
		{VendorPixeon, VendorPixeon},
		{Vendor("unknown"), VendorNone},
		{VendorNone, VendorNone},
	}
	for _, tt := range tests {
		if got := newVendorAdapter(tt.vendor).Name(); got != tt.want {
			t.Errorf("newVendorAdapter(%q).Name() = %q, want %q", tt.vendor, got, tt.want)
		}
	}
}

func TestMVParseExtensions(t *testing.T) {
	raw := "MSH|^~\\&|MV|HOSP|INTEGRA|BR|20230101120000||ACK|1|P|2.5\r" +
		"MSA|AA|1\r" +
		"ZMV|UN01|AT778|CONV9"
	msg, err := hl7.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ext := (mvAdapter{}).ParseExtensions(msg)
	if ext["unit_code"] != "UN01" || ext["attendance_number"] != "AT778" || ext["agreement_code"] != "CONV9" {
		t.Errorf("ext = %v", ext)
	}
	if (mvAdapter{}).ParseExtensions(hl7.NewMessage(hl7.HeaderInfo{Type: "ACK"})) != nil {
		t.Error("want nil without ZMV segment")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{OrgID: "o", ConnectorID: "c", Host: "h", Port: 2575}
	cfg.applyDefaults()

	if cfg.Channel != ChannelMLLP {
		t.Errorf("Channel = %q", cfg.Channel)
	}
	if cfg.PoolSize != 5 || cfg.Retry.MaxAttempts != 3 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Addr() != "h:2575" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.Key() != "o/c" {
		t.Errorf("Key = %q", cfg.Key())
	}
	if cfg.framing() != mllp.DefaultFraming() {
		t.Errorf("framing = %v", cfg.framing())
	}
}
