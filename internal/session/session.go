// Package session implements the conversation loop: one goroutine per
// accepted client connection, alternating between reading a client command,
// fanning it out to every live delegate, gathering each delegate's reply
// sequence, and reducing those sequences to the one packet sequence relayed
// back to the client — until the client disconnects or issues COM_QUIT.
package session

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"syscall"
	"time"

	"github.com/mysqlfanout/mysqlfanout/internal/delegate"
	"github.com/mysqlfanout/mysqlfanout/internal/driver"
	"github.com/mysqlfanout/mysqlfanout/internal/wire"
)

// MappingHook lets a caller rewrite or inspect the SQL text of a COM_QUERY
// command before it is fanned out. The default is a no-op passthrough; this
// is the extension seam for future per-delegate SQL rewriting beyond the
// db-name substitution the driver already performs.
type MappingHook func(sql string) string

// Metrics is the subset of internal/metrics.Collector the session loop
// reports to. Declared as an interface here so session has no import
// dependency on the metrics package's Prometheus wiring.
type Metrics interface {
	SessionOpened()
	SessionClosed(d time.Duration)
	RoundObserved(fanOut, gather time.Duration)
	ReduceOutcome(policy, outcome string)
	DelegateDialError()
}

// Config bundles what Run needs to build and drive one session.
type Config struct {
	Delegates    []delegate.Config
	ReducePolicy driver.ReducePolicy
	DialTimeout  time.Duration
	IOTimeout    time.Duration
	Mapping      MappingHook
	Metrics      Metrics
}

// Run drives one client connection to completion: connect delegates,
// exchange the handshake, then alternate command/reply rounds until the
// client disconnects or quits. The connection is not closed by Run; the
// caller owns its lifecycle (mirrors teacher's handleConnection, which
// defers clientConn.Close() at the call site).
func Run(ctx context.Context, clientConn net.Conn, cfg Config) error {
	start := time.Now()
	if cfg.Metrics != nil {
		cfg.Metrics.SessionOpened()
	}
	defer func() {
		if cfg.Metrics != nil {
			cfg.Metrics.SessionClosed(time.Since(start))
		}
	}()

	set, err := delegate.Connect(ctx, cfg.Delegates, cfg.DialTimeout, cfg.IOTimeout)
	if err != nil {
		if cfg.Metrics != nil {
			cfg.Metrics.DelegateDialError()
		}
		return err
	}
	defer set.Disconnect()

	sess := driver.NewSession(set.N())

	// First round: every delegate starts in Greeting, so the loop's first
	// pass is a gather-only round with no client command involved yet.
	if err := relayRound(clientConn, sess, set, cfg); err != nil {
		return err
	}

	for !sess.Done() {
		cmd, err := wire.ReadFull(clientConn)
		if err != nil {
			if isQuietTeardown(err) {
				return nil
			}
			log.Printf("[session] client read error: %v", err)
			return err
		}

		cmdType := sess.Command(cmd)
		if cmdType == driver.Sql && cfg.Mapping != nil {
			sql := driver.SQLExtract(cmd)
			rewritten := cfg.Mapping(sql)
			if rewritten != sql {
				payload := append([]byte{wire.ComQuery}, []byte(rewritten)...)
				cmd = wire.Frame(payload, cmd.Sequence())
			}
		}

		fanOutStart := time.Now()
		if err := set.Put(sess, cmd); err != nil {
			log.Printf("[session] fan-out error: %v", err)
			return err
		}
		fanOutDur := time.Since(fanOutStart)

		if sess.Done() {
			break
		}

		gatherStart := time.Now()
		if err := relayRound(clientConn, sess, set, cfg); err != nil {
			return err
		}
		if cfg.Metrics != nil {
			cfg.Metrics.RoundObserved(fanOutDur, time.Since(gatherStart))
		}
	}

	return nil
}

// relayRound gathers one round's delegate replies, reduces them per the
// configured policy, and relays the resulting packet sequence to the
// client.
func relayRound(clientConn net.Conn, sess *driver.Session, set *delegate.Set, cfg Config) error {
	gathered, err := set.Get(sess)
	if err != nil {
		return err
	}

	replies := make([]driver.DelegateReply, 0, set.N())
	for i := 0; i < set.N(); i++ {
		id := driver.DelegateID(i)
		pkts, ok := gathered[id]
		if !ok {
			continue
		}
		errored := len(pkts) > 0 && pkts[len(pkts)-1].IsErr()
		replies = append(replies, driver.DelegateReply{ID: id, Packets: pkts, Errored: errored})
	}

	chosen := driver.Reduce(cfg.ReducePolicy, replies)
	if cfg.Metrics != nil {
		cfg.Metrics.ReduceOutcome(reducePolicyName(cfg.ReducePolicy), reduceOutcomeName(replies, chosen))
	}

	for _, p := range chosen {
		if err := wire.WriteFull(clientConn, p); err != nil {
			return err
		}
	}
	return nil
}

func reducePolicyName(p driver.ReducePolicy) string {
	switch p {
	case driver.ErrorIfAny:
		return "error_if_any"
	case driver.RequireAllEqual:
		return "require_all_equal"
	default:
		return "first_success"
	}
}

func reduceOutcomeName(replies []driver.DelegateReply, chosen []*wire.Packet) string {
	if len(chosen) == 1 && chosen[0].IsErr() {
		for _, r := range replies {
			if !r.Errored {
				return "disagreement"
			}
		}
		return "masked_error"
	}
	return "success"
}

// isQuietTeardown reports whether err represents an ordinary client
// disconnect (connection reset, EOF, or a closed-connection write) that
// should end the session silently rather than be logged as an error —
// the Go analogue of the original checking errno for ECONNRESET/EPIPE.
func isQuietTeardown(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
