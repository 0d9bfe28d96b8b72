// Package config loads and hot-reloads the daemon's YAML configuration:
// listen ports, the delegate list, the reduce policy, timeouts, and health
// check parameters.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Delegates   []DelegateConfig  `yaml:"delegates"`
	Reduce      ReduceConfig      `yaml:"reduce"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
}

// ListenConfig defines the ports and bind addresses the daemon listens on.
type ListenConfig struct {
	MySQLPort int    `yaml:"mysql_port"`
	APIPort   int    `yaml:"api_port"`
	APIBind   string `yaml:"api_bind"`
	APIKey    string `yaml:"api_key"`
}

// DelegateConfig describes one backend MySQL server commands are fanned out
// to. There is no username/password field here: the client's own handshake
// response is relayed to every delegate, with only the database name
// substituted per delegate.
type DelegateConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	DBName string `yaml:"dbname"`
}

// ReduceConfig selects how a round's per-delegate replies collapse into the
// one reply sequence relayed to the client.
type ReduceConfig struct {
	Policy string `yaml:"policy"`
}

// TimeoutsConfig bounds dial and per-packet I/O against delegates.
type TimeoutsConfig struct {
	Dial time.Duration `yaml:"dial"`
	IO   time.Duration `yaml:"io"`
}

// HealthCheckConfig governs the background delegate liveness prober.
type HealthCheckConfig struct {
	Interval          time.Duration `yaml:"interval"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// APIKeyConfigured reports whether an admin API key was set.
func (lc ListenConfig) APIKeyConfigured() bool {
	return lc.APIKey != ""
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.MySQLPort == 0 {
		cfg.Listen.MySQLPort = 5032
	}
	if cfg.Listen.APIPort == 0 {
		cfg.Listen.APIPort = 8081
	}
	if cfg.Listen.APIBind == "" {
		cfg.Listen.APIBind = "127.0.0.1"
	}
	if cfg.Reduce.Policy == "" {
		cfg.Reduce.Policy = "first_success"
	}
	if cfg.Timeouts.Dial == 0 {
		cfg.Timeouts.Dial = 5 * time.Second
	}
	if cfg.Timeouts.IO == 0 {
		cfg.Timeouts.IO = 30 * time.Second
	}
	if cfg.HealthCheck.Interval == 0 {
		cfg.HealthCheck.Interval = 10 * time.Second
	}
	if cfg.HealthCheck.FailureThreshold == 0 {
		cfg.HealthCheck.FailureThreshold = 3
	}
	if cfg.HealthCheck.ConnectionTimeout == 0 {
		cfg.HealthCheck.ConnectionTimeout = 2 * time.Second
	}
}

func validate(cfg *Config) error {
	if len(cfg.Delegates) == 0 {
		return fmt.Errorf("at least one delegate is required")
	}
	for i, d := range cfg.Delegates {
		if d.Host == "" {
			return fmt.Errorf("delegate %d: host is required", i)
		}
		if d.Port == 0 {
			return fmt.Errorf("delegate %d: port is required", i)
		}
		if d.DBName == "" {
			return fmt.Errorf("delegate %d: dbname is required", i)
		}
	}
	switch cfg.Reduce.Policy {
	case "", "first_success", "error_if_any", "require_all_equal":
	default:
		return fmt.Errorf("reduce.policy %q is not one of first_success, error_if_any, require_all_equal", cfg.Reduce.Policy)
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with the new config.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	// Debounce timer to avoid rapid reloads
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
