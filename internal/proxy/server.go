// Package proxy runs the TCP accept loop clients connect to, and hands each
// accepted connection off to a session for the fan-out conversation.
package proxy

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/mysqlfanout/mysqlfanout/internal/config"
	"github.com/mysqlfanout/mysqlfanout/internal/delegate"
	"github.com/mysqlfanout/mysqlfanout/internal/driver"
	"github.com/mysqlfanout/mysqlfanout/internal/session"
)

// Metrics is the subset of metrics.Collector the proxy server needs; session
// itself depends on session.Metrics, not on this one.
type Metrics = session.Metrics

// Server accepts client connections and runs one session per connection.
type Server struct {
	cfg     *config.Config
	metrics Metrics

	listener net.Listener

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.RWMutex
}

// NewServer creates a new proxy server bound to the given config. The config
// pointer is read on every accepted connection, so a hot reload (see
// config.NewWatcher) is picked up by sessions started after the reload.
func NewServer(cfg *config.Config, m Metrics) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// UpdateConfig swaps the config used for sessions started after this call.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Server) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Listen starts the MySQL-facing listener.
func (s *Server) Listen(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln
	log.Printf("[proxy] listening on %s", addr)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()

	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				log.Printf("[proxy] accept error: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) handleConnection(clientConn net.Conn) {
	defer clientConn.Close()

	cfg := s.currentConfig()
	delegateConfigs := make([]delegate.Config, len(cfg.Delegates))
	for i, d := range cfg.Delegates {
		delegateConfigs[i] = delegate.Config{Host: d.Host, Port: d.Port, DBName: d.DBName}
	}

	sessCfg := session.Config{
		Delegates:    delegateConfigs,
		ReducePolicy: reducePolicyFromString(cfg.Reduce.Policy),
		DialTimeout:  cfg.Timeouts.Dial,
		IOTimeout:    cfg.Timeouts.IO,
		Metrics:      s.metrics,
	}

	if err := session.Run(s.ctx, clientConn, sessCfg); err != nil {
		log.Printf("[proxy] session error: %v", err)
	}
}

func reducePolicyFromString(policy string) driver.ReducePolicy {
	switch policy {
	case "error_if_any":
		return driver.ErrorIfAny
	case "require_all_equal":
		return driver.RequireAllEqual
	default:
		return driver.FirstSuccess
	}
}

// Stop gracefully shuts down the server: the listener is closed and every
// in-flight session is allowed to finish on its own (sessions close when the
// client disconnects or sends COM_QUIT).
func (s *Server) Stop() {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Printf("[proxy] shutdown timed out waiting for sessions to finish")
	}

	log.Printf("[proxy] server stopped")
}
