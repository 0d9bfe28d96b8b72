package delegate

import (
	"context"
	"fmt"
	"time"

	"github.com/mysqlfanout/mysqlfanout/internal/driver"
	"github.com/mysqlfanout/mysqlfanout/internal/wire"
)

// Set is the per-session collection of live delegate connections, one per
// configured backend, dialed together at session start and torn down
// together at session end.
type Set struct {
	conns       []*Conn
	dialTimeout time.Duration
	ioTimeout   time.Duration
}

// Connect dials every configured delegate. On any failure it closes the
// delegates already connected and returns the error — a session never runs
// with a partial delegate set.
func Connect(ctx context.Context, configs []Config, dialTimeout, ioTimeout time.Duration) (*Set, error) {
	s := &Set{dialTimeout: dialTimeout, ioTimeout: ioTimeout}
	for id, cfg := range configs {
		c, err := Dial(ctx, id, cfg, dialTimeout)
		if err != nil {
			s.Disconnect()
			return nil, err
		}
		s.conns = append(s.conns, c)
	}
	return s, nil
}

// N returns the number of delegates in the set.
func (s *Set) N() int { return len(s.conns) }

// Disconnect closes every delegate connection. Safe to call on a partially
// connected set.
func (s *Set) Disconnect() {
	for _, c := range s.conns {
		if c != nil {
			c.Close()
		}
	}
}

// Put fans a client command out to every delegate the driver session's
// DelegateFilter selects, rewriting the packet per delegate (db-name
// substitution during the handshake response, unmodified otherwise).
func (s *Set) Put(sess *driver.Session, p *wire.Packet) error {
	for i, c := range s.conns {
		id := driver.DelegateID(i)
		if sess.DelegateFilter(id) == driver.DontUse {
			continue
		}
		rewritten, err := sess.RewriteCommand(p, c.Config.DBName)
		if err != nil {
			return fmt.Errorf("delegate %d: rewrite command: %w", id, err)
		}
		c.NetConn().SetWriteDeadline(time.Now().Add(s.ioTimeout))
		if err := wire.WriteFull(c.NetConn(), rewritten); err != nil {
			return fmt.Errorf("delegate %d: write command: %w", id, err)
		}
		c.Touch()
	}
	return nil
}

// Get gathers one round of replies: it round-robins over delegates the
// driver still expects a reply from, reading one packet at a time and
// feeding each into sess.Reply, until no delegate owes a reply. It returns
// every packet read per delegate, in read order, for the reduce step.
func (s *Set) Get(sess *driver.Session) (map[driver.DelegateID][]*wire.Packet, error) {
	out := make(map[driver.DelegateID][]*wire.Packet)
	for sess.ExpectReplies() {
		for i, c := range s.conns {
			id := driver.DelegateID(i)
			if sess.DelegateFilter(id) == driver.DontUse {
				continue
			}
			c.NetConn().SetReadDeadline(time.Now().Add(s.ioTimeout))
			p, err := wire.ReadFull(c.NetConn())
			if err != nil {
				return out, fmt.Errorf("delegate %d: read reply: %w", id, err)
			}
			c.Touch()
			out[id] = append(out[id], p)
			sess.Reply(id, p)
		}
	}
	return out, nil
}
