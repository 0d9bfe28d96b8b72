// Package api exposes the daemon's REST status/health endpoints, Prometheus
// metrics, and an admin dashboard, all delegate-centric rather than
// tenant-centric.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/mysqlfanout/mysqlfanout/internal/config"
	"github.com/mysqlfanout/mysqlfanout/internal/health"
	"github.com/mysqlfanout/mysqlfanout/internal/metrics"
)

// Server is the REST API, metrics, and dashboard server.
type Server struct {
	cfg         *config.Config
	healthCheck *health.Checker
	metrics     *metrics.Collector
	httpServer  *http.Server
	startTime   time.Time
	apiKeyHash  []byte // bcrypt hash of the configured API key; nil disables auth
}

// NewServer creates a new API server. If cfg.Listen.APIKey is set, every
// request except /metrics, /health, /ready and the dashboard pages (/ and
// /dashboard) must present it via the X-API-Key header, compared against a
// bcrypt hash rather than the raw value.
func NewServer(cfg *config.Config, hc *health.Checker, m *metrics.Collector) (*Server, error) {
	s := &Server{
		cfg:         cfg,
		healthCheck: hc,
		metrics:     m,
		startTime:   time.Now(),
	}

	if cfg.Listen.APIKeyConfigured() {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Listen.APIKey), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing configured API key: %w", err)
		}
		s.apiKeyHash = hash
	}

	return s, nil
}

// Start starts the HTTP API server.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()

	r.HandleFunc("/status", s.authed(s.statusHandler)).Methods("GET")
	r.HandleFunc("/delegates", s.authed(s.delegatesHandler)).Methods("GET")
	r.HandleFunc("/delegates/{key}/health", s.authed(s.delegateHealthHandler)).Methods("GET")

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	r.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")

	addr := fmt.Sprintf("%s:%d", s.cfg.Listen.APIBind, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[api] REST API listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// authed wraps a handler with API key enforcement when one is configured.
func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	if s.apiKeyHash == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		supplied := r.Header.Get("X-API-Key")
		if supplied == "" || bcrypt.CompareHashAndPassword(s.apiKeyHash, []byte(supplied)) != nil {
			writeError(w, http.StatusUnauthorized, "missing or invalid X-API-Key")
			return
		}
		h(w, r)
	}
}

// --- Status Handlers ---

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime).Seconds()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"num_delegates":  len(s.cfg.Delegates),
		"reduce_policy":  s.cfg.Reduce.Policy,
		"listen": map[string]int{
			"mysql_port": s.cfg.Listen.MySQLPort,
			"api_port":   s.cfg.Listen.APIPort,
		},
	})
}

type delegateStatus struct {
	Host   string                `json:"host"`
	Port   int                   `json:"port"`
	DBName string                `json:"dbname"`
	Health health.DelegateHealth `json:"health"`
}

func (s *Server) delegatesHandler(w http.ResponseWriter, r *http.Request) {
	result := make([]delegateStatus, 0, len(s.cfg.Delegates))
	for _, d := range s.cfg.Delegates {
		key := delegateKeyFor(d)
		result = append(result, delegateStatus{
			Host:   d.Host,
			Port:   d.Port,
			DBName: d.DBName,
			Health: s.healthCheck.GetStatus(key),
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) delegateHealthHandler(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	writeJSON(w, http.StatusOK, s.healthCheck.GetStatus(key))
}

func delegateKeyFor(d config.DelegateConfig) string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// --- Health/Ready Handlers ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	statuses := s.healthCheck.GetAllStatuses()
	allHealthy := s.healthCheck.OverallHealthy()

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]interface{}{
		"status":    boolToStatus(allHealthy),
		"delegates": statuses,
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if len(s.cfg.Delegates) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	for _, d := range s.cfg.Delegates {
		if s.healthCheck.IsHealthy(delegateKeyFor(d)) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
	}

	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
