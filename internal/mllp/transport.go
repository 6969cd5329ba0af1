package mllp

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Conn is one framed TCP connection owned by a Pool. It is handed to at
// most one in-flight send at a time and follows strict request/reply: the
// caller must resolve or time out the pending reply before reusing it.
type Conn struct {
	nc       net.Conn
	reader   *FrameReader
	framing  Framing
	lastUsed time.Time
}

func dial(ctx context.Context, addr string, framing Framing, timeout, keepAlive time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnectionFailed, addr, err)
	}

	if tc, ok := nc.(*net.TCPConn); ok && keepAlive > 0 {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(keepAlive)
	}

	return &Conn{
		nc:       nc,
		reader:   NewFrameReader(nc, framing),
		framing:  framing,
		lastUsed: time.Now(),
	}, nil
}

// WriteFrame frames and writes one message within the deadline.
func (c *Conn) WriteFrame(payload []byte, timeout time.Duration) error {
	c.nc.SetWriteDeadline(time.Now().Add(timeout))
	defer c.nc.SetWriteDeadline(time.Time{})

	if _, err := c.nc.Write(c.framing.Wrap(payload)); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnectionFailed, err)
	}
	c.lastUsed = time.Now()
	return nil
}

// ReadFrame blocks until a complete frame arrives or the deadline passes.
// A deadline expiry is reported as-is so callers can distinguish an ACK
// timeout from a broken connection.
func (c *Conn) ReadFrame(timeout time.Duration) ([]byte, error) {
	c.nc.SetReadDeadline(time.Now().Add(timeout))
	defer c.nc.SetReadDeadline(time.Time{})

	payload, err := c.reader.ReadFrame()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, ErrReadTimeout
		}
		return nil, fmt.Errorf("%w: read: %v", ErrConnectionFailed, err)
	}
	c.lastUsed = time.Now()
	return payload, nil
}

// alive probes the socket the way the pool health sweep does: a read with a
// tiny deadline that times out means the peer has sent nothing and the
// connection is still up.
func (c *Conn) alive() bool {
	c.nc.SetReadDeadline(time.Now().Add(time.Millisecond))
	defer c.nc.SetReadDeadline(time.Time{})

	one := make([]byte, 1)
	n, err := c.nc.Read(one)
	if n > 0 {
		// Unsolicited bytes between operations break request/reply; keep
		// them for the next ReadFrame instead of discarding.
		c.reader.buf = append(c.reader.buf, one[:n]...)
		return true
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return err == nil
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.nc.Close()
}

// LastUsed reports when the connection last carried traffic.
func (c *Conn) LastUsed() time.Time {
	return c.lastUsed
}

// Probe dials the address and closes immediately. Used by connector health
// checks when the pool has no spare capacity to lend.
func Probe(ctx context.Context, addr string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: probe %s: %v", ErrConnectionFailed, addr, err)
	}
	return nc.Close()
}
