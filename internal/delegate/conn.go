// Package delegate manages the set of backend MySQL connections one client
// session fans its commands out to. Unlike the teacher's pool package, these
// connections are never shared across sessions: each is dialed at session
// start and closed at session end (spec.md Non-goals exclude cross-session
// pooling).
package delegate

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Conn is one backend connection plus bookkeeping, trimmed from the
// teacher's PooledConn down to what a per-session delegate needs: no state
// machine, no back-reference to a pool, no idle/active transitions.
type Conn struct {
	ID           int
	Config       Config
	conn         net.Conn
	createdAt    time.Time
	lastActivity time.Time
}

// Config describes one delegate backend: host, port, and the database name
// the proxy substitutes into the client's handshake response for this
// delegate. Delegates carry no credentials of their own — the client's
// handshake is relayed to every delegate verbatim apart from the db name.
type Config struct {
	Host   string
	Port   int
	DBName string
}

// Dial opens the TCP connection for one delegate, grounded on the teacher's
// pool.dial dial-timeout/keep-alive pattern.
func Dial(ctx context.Context, id int, cfg Config, dialTimeout time.Duration) (*Conn, error) {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	dialer := net.Dialer{
		Timeout:   dialTimeout,
		KeepAlive: 30 * time.Second,
	}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("delegate %d: dial %s: %w", id, addr, err)
	}
	now := time.Now()
	return &Conn{ID: id, Config: cfg, conn: nc, createdAt: now, lastActivity: now}, nil
}

// NetConn returns the underlying connection.
func (c *Conn) NetConn() net.Conn { return c.conn }

// Touch records activity, for idle-time metrics/logging.
func (c *Conn) Touch() { c.lastActivity = time.Now() }

// Age reports how long this connection has been open.
func (c *Conn) Age() time.Duration { return time.Since(c.createdAt) }

// Close tears down the backend connection. Safe to call more than once.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
