package mllp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PoolConfig sizes and times one connector's connection pool.
type PoolConfig struct {
	Addr           string
	Size           int
	DialTimeout    time.Duration
	AcquireTimeout time.Duration
	KeepAlive      time.Duration
	IdleTimeout    time.Duration
	Framing        Framing
}

func (c *PoolConfig) applyDefaults() {
	if c.Size <= 0 {
		c.Size = 5
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 15 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	if c.Framing == (Framing{}) {
		c.Framing = DefaultFraming()
	}
}

// Pool is a bounded set of MLLP connections to one endpoint. Acquire hands
// out exclusive ownership for the duration of a single operation; callers
// must end every code path with Release or Discard. Lost connections are
// counted and a single restore loop keeps dialing until the pool is back at
// target capacity, so losing every connection at once is recovered too.
type Pool struct {
	cfg  PoolConfig
	idle chan *Conn

	mu      sync.Mutex
	missing int
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewPool creates the pool without dialing; call Connect to bring it up.
func NewPool(cfg PoolConfig) *Pool {
	cfg.applyDefaults()
	return &Pool{
		cfg:  cfg,
		idle: make(chan *Conn, cfg.Size),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Connect dials up to the target capacity. It succeeds when at least one
// connection comes up; the remainder is handed to the restore loop. With
// zero connections up the endpoint is unreachable and the error propagates.
func (p *Pool) Connect(ctx context.Context) error {
	var firstErr error
	up := 0
	for i := 0; i < p.cfg.Size; i++ {
		conn, err := dial(ctx, p.cfg.Addr, p.cfg.Framing, p.cfg.DialTimeout, p.cfg.KeepAlive)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.idle <- conn
		up++
	}

	if up == 0 {
		return fmt.Errorf("connect %s: %w", p.cfg.Addr, firstErr)
	}

	p.mu.Lock()
	p.missing = p.cfg.Size - up
	p.mu.Unlock()

	go p.maintain()
	if up < p.cfg.Size {
		p.nudge()
	}
	return nil
}

// Acquire returns an exclusively owned connection, waiting up to the
// configured acquire timeout before failing with ErrPoolExhausted. Dead
// idle connections found on the way are discarded and the wait continues.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.cfg.AcquireTimeout)
	defer timer.Stop()

	for {
		select {
		case conn := <-p.idle:
			if conn.alive() {
				return conn, nil
			}
			conn.Close()
			p.markLost()
		case <-timer.C:
			return nil, fmt.Errorf("%w: no connection within %s", ErrPoolExhausted, p.cfg.AcquireTimeout)
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrPoolExhausted, ctx.Err())
		case <-p.done:
			return nil, ErrPoolClosed
		}
	}
}

// Release returns a healthy connection for reuse.
func (p *Pool) Release(conn *Conn) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.mu.Unlock()

	select {
	case p.idle <- conn:
	default:
		// more returns than capacity, drop the extra
		conn.Close()
	}
}

// Discard closes a broken connection and schedules its replacement.
func (p *Pool) Discard(conn *Conn) {
	conn.Close()
	p.markLost()
}

func (p *Pool) markLost() {
	p.mu.Lock()
	if !p.closed {
		p.missing++
	}
	p.mu.Unlock()
	p.nudge()
}

func (p *Pool) nudge() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Missing reports how many connections are lost and awaiting restoration.
// Zero means the pool is at target capacity.
func (p *Pool) Missing() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.missing
}

// Size returns the target capacity.
func (p *Pool) Size() int {
	return p.cfg.Size
}

// maintain is the single recurring loop that restores missing connections
// and sweeps stale idle ones.
func (p *Pool) maintain() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	backoff := 500 * time.Millisecond
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		case <-ticker.C:
			p.sweepIdle()
		}

		for p.Missing() > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.DialTimeout)
			conn, err := dial(ctx, p.cfg.Addr, p.cfg.Framing, p.cfg.DialTimeout, p.cfg.KeepAlive)
			cancel()
			if err != nil {
				slog.Warn("connection restore failed",
					"addr", p.cfg.Addr,
					"missing", p.Missing(),
					"backoff", backoff,
					"error", err)
				select {
				case <-p.done:
					return
				case <-time.After(backoff):
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}

			backoff = 500 * time.Millisecond
			p.mu.Lock()
			p.missing--
			closed := p.closed
			p.mu.Unlock()
			if closed {
				conn.Close()
				return
			}
			p.Release(conn)
			slog.Info("connection restored", "addr", p.cfg.Addr, "missing", p.Missing())
		}
	}
}

// sweepIdle drops idle connections that died or sat unused past the idle
// timeout. Replacements are scheduled through the missing counter.
func (p *Pool) sweepIdle() {
	n := len(p.idle)
	for i := 0; i < n; i++ {
		select {
		case conn := <-p.idle:
			if time.Since(conn.LastUsed()) > p.cfg.IdleTimeout || !conn.alive() {
				conn.Close()
				p.markLost()
				continue
			}
			p.Release(conn)
		default:
			return
		}
	}
}

// Close tears the pool down, closing every idle connection. In-flight
// connections are closed by their holders via Release/Discard.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	for {
		select {
		case conn := <-p.idle:
			conn.Close()
		default:
			return
		}
	}
}
