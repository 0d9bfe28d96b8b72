// Package metrics exposes the daemon's Prometheus metrics: session
// lifecycle, fan-out/gather timing, reduce outcomes, and delegate health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the daemon.
type Collector struct {
	Registry *prometheus.Registry

	sessionsOpened  prometheus.Counter
	sessionsClosed  prometheus.Counter
	sessionDuration prometheus.Histogram

	fanOutDuration prometheus.Histogram
	gatherDuration prometheus.Histogram

	reduceOutcomes *prometheus.CounterVec

	delegateDialErrors prometheus.Counter
	delegateHealth     *prometheus.GaugeVec

	healthCheckDuration *prometheus.HistogramVec
	healthCheckErrors   *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics using a custom registry.
// Safe to call multiple times (e.g., in tests or on config reload) — each call
// creates an independent registry that doesn't conflict with others.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mysqlfanout_sessions_opened_total",
			Help: "Total client sessions opened",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mysqlfanout_sessions_closed_total",
			Help: "Total client sessions closed",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mysqlfanout_session_duration_seconds",
			Help:    "Duration of a client session from connect to disconnect",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}),
		fanOutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mysqlfanout_fanout_duration_seconds",
			Help:    "Time spent writing one command to every delegate",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		gatherDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mysqlfanout_gather_duration_seconds",
			Help:    "Time spent gathering one round of delegate replies",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		reduceOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlfanout_reduce_outcomes_total",
				Help: "Reduce results by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		delegateDialErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mysqlfanout_delegate_dial_errors_total",
			Help: "Total failures dialing a delegate at session start",
		}),
		delegateHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlfanout_delegate_health",
				Help: "Health status of a delegate (1=healthy, 0=unhealthy)",
			},
			[]string{"delegate"},
		),
		healthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mysqlfanout_health_check_duration_seconds",
				Help:    "Duration of delegate health check probes",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"delegate", "status"},
		),
		healthCheckErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlfanout_health_check_errors_total",
				Help: "Health check errors by delegate and error type",
			},
			[]string{"delegate", "error_type"},
		),
	}

	reg.MustRegister(
		c.sessionsOpened,
		c.sessionsClosed,
		c.sessionDuration,
		c.fanOutDuration,
		c.gatherDuration,
		c.reduceOutcomes,
		c.delegateDialErrors,
		c.delegateHealth,
		c.healthCheckDuration,
		c.healthCheckErrors,
	)

	return c
}

// SessionOpened increments the sessions-opened counter.
func (c *Collector) SessionOpened() {
	c.sessionsOpened.Inc()
}

// SessionClosed increments the sessions-closed counter and observes its
// total duration.
func (c *Collector) SessionClosed(d time.Duration) {
	c.sessionsClosed.Inc()
	c.sessionDuration.Observe(d.Seconds())
}

// RoundObserved records one round's fan-out and gather durations.
func (c *Collector) RoundObserved(fanOut, gather time.Duration) {
	c.fanOutDuration.Observe(fanOut.Seconds())
	c.gatherDuration.Observe(gather.Seconds())
}

// ReduceOutcome records the result of one reduce call.
func (c *Collector) ReduceOutcome(policy, outcome string) {
	c.reduceOutcomes.WithLabelValues(policy, outcome).Inc()
}

// DelegateDialError increments the delegate dial error counter.
func (c *Collector) DelegateDialError() {
	c.delegateDialErrors.Inc()
}

// SetDelegateHealth sets the health gauge for a delegate.
func (c *Collector) SetDelegateHealth(delegate string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	c.delegateHealth.WithLabelValues(delegate).Set(val)
}

// HealthCheckCompleted records a health check probe duration and result.
func (c *Collector) HealthCheckCompleted(delegate string, d time.Duration, healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	c.healthCheckDuration.WithLabelValues(delegate, status).Observe(d.Seconds())
}

// HealthCheckError records a health check error by delegate and type.
func (c *Collector) HealthCheckError(delegate, errorType string) {
	c.healthCheckErrors.WithLabelValues(delegate, errorType).Inc()
}

// RemoveDelegate removes all metrics for a delegate no longer configured.
func (c *Collector) RemoveDelegate(delegate string) {
	c.delegateHealth.DeleteLabelValues(delegate)
	c.healthCheckDuration.DeletePartialMatch(prometheus.Labels{"delegate": delegate})
	c.healthCheckErrors.DeletePartialMatch(prometheus.Labels{"delegate": delegate})
}
