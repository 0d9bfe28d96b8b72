package health

import (
	"net"
	"testing"
	"time"

	"github.com/mysqlfanout/mysqlfanout/internal/config"
	"github.com/mysqlfanout/mysqlfanout/internal/wire"
)

var testHealthCfg = config.HealthCheckConfig{
	Interval:          30 * time.Second,
	FailureThreshold:  3,
	ConnectionTimeout: 2 * time.Second,
}

func TestCheckerInitialState(t *testing.T) {
	c := NewChecker(nil, nil, testHealthCfg)

	if !c.IsHealthy("unknown") {
		t.Error("unknown delegate should be treated as healthy")
	}

	status := c.GetStatus("unknown")
	if status.Status != StatusUnknown {
		t.Errorf("expected StatusUnknown, got %v", status.Status)
	}
}

func TestCheckerUpdateStatus(t *testing.T) {
	c := NewChecker(nil, nil, testHealthCfg)

	c.updateStatus("test", true)
	if !c.IsHealthy("test") {
		t.Error("should be healthy after healthy update")
	}
	if c.GetStatus("test").Status != StatusHealthy {
		t.Errorf("expected StatusHealthy, got %v", c.GetStatus("test").Status)
	}

	for i := 0; i < testHealthCfg.FailureThreshold; i++ {
		c.updateStatus("test", false)
	}
	if c.IsHealthy("test") {
		t.Error("should be unhealthy after reaching failure threshold")
	}
	if c.GetStatus("test").ConsecutiveFailures != testHealthCfg.FailureThreshold {
		t.Errorf("expected %d consecutive failures, got %d", testHealthCfg.FailureThreshold, c.GetStatus("test").ConsecutiveFailures)
	}

	c.updateStatus("test", true)
	if !c.IsHealthy("test") {
		t.Error("should recover to healthy")
	}
	if c.GetStatus("test").ConsecutiveFailures != 0 {
		t.Error("consecutive failures should reset on recovery")
	}
}

func TestCheckerOverallHealthy(t *testing.T) {
	c := NewChecker(nil, nil, testHealthCfg)

	c.updateStatus("d0", true)
	c.updateStatus("d1", true)
	if !c.OverallHealthy() {
		t.Error("expected overall healthy with all delegates healthy")
	}

	for i := 0; i < testHealthCfg.FailureThreshold; i++ {
		c.updateStatus("d1", false)
	}
	if c.OverallHealthy() {
		t.Error("expected overall unhealthy once one delegate crosses the failure threshold")
	}
}

func TestPingDelegate_MySQLHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		wire.WriteFull(conn, wire.Frame([]byte{0x0a, 'm', 'y', 0x00}, 0))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := config.DelegateConfig{Host: "127.0.0.1", Port: addr.Port, DBName: "test"}

	c := NewChecker([]config.DelegateConfig{cfg}, nil, testHealthCfg)
	healthy := c.pingDelegate(delegateKey(cfg), cfg)
	if !healthy {
		t.Error("expected a valid MySQL handshake to be reported healthy")
	}
}

func TestPingDelegate_ConnectionRefused(t *testing.T) {
	cfg := config.DelegateConfig{Host: "127.0.0.1", Port: 1, DBName: "test"}
	c := NewChecker([]config.DelegateConfig{cfg}, nil, testHealthCfg)

	if c.pingDelegate(delegateKey(cfg), cfg) {
		t.Error("expected unreachable delegate to be reported unhealthy")
	}
}

func TestGetAllStatuses(t *testing.T) {
	c := NewChecker(nil, nil, testHealthCfg)
	c.updateStatus("d0", true)
	c.updateStatus("d1", false)

	all := c.GetAllStatuses()
	if len(all) != 2 {
		t.Fatalf("expected 2 delegate statuses, got %d", len(all))
	}
	if all["d0"].Status != StatusHealthy {
		t.Error("expected d0 healthy")
	}
}
