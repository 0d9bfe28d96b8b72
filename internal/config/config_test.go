package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
listen:
  mysql_port: 5032
  api_port: 8081
  api_bind: 127.0.0.1

delegates:
  - host: db0.internal
    port: 3306
    dbname: shard0
  - host: db1.internal
    port: 3306
    dbname: shard1

reduce:
  policy: error_if_any

timeouts:
  dial: 5s
  io: 30s
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.MySQLPort != 5032 {
		t.Errorf("expected mysql port 5032, got %d", cfg.Listen.MySQLPort)
	}
	if len(cfg.Delegates) != 2 {
		t.Fatalf("expected 2 delegates, got %d", len(cfg.Delegates))
	}
	if cfg.Delegates[0].Host != "db0.internal" || cfg.Delegates[0].DBName != "shard0" {
		t.Errorf("unexpected delegate 0: %+v", cfg.Delegates[0])
	}
	if cfg.Reduce.Policy != "error_if_any" {
		t.Errorf("expected reduce policy error_if_any, got %s", cfg.Reduce.Policy)
	}
	if cfg.Timeouts.Dial != 5*time.Second {
		t.Errorf("expected dial timeout 5s, got %v", cfg.Timeouts.Dial)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_DELEGATE_HOST", "db-from-env.internal")
	defer os.Unsetenv("TEST_DELEGATE_HOST")

	yaml := `
delegates:
  - host: ${TEST_DELEGATE_HOST}
    port: 3306
    dbname: shard0
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Delegates[0].Host != "db-from-env.internal" {
		t.Errorf("expected host from env, got %s", cfg.Delegates[0].Host)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no delegates",
			yaml: `
delegates: []
`,
		},
		{
			name: "missing host",
			yaml: `
delegates:
  - port: 3306
    dbname: db
`,
		},
		{
			name: "missing port",
			yaml: `
delegates:
  - host: db0.internal
    dbname: db
`,
		},
		{
			name: "missing dbname",
			yaml: `
delegates:
  - host: db0.internal
    port: 3306
`,
		},
		{
			name: "invalid reduce policy",
			yaml: `
delegates:
  - host: db0.internal
    port: 3306
    dbname: db
reduce:
  policy: majority_vote
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	yaml := `
delegates:
  - host: db0.internal
    port: 3306
    dbname: db
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.MySQLPort != 5032 {
		t.Errorf("expected default mysql port 5032, got %d", cfg.Listen.MySQLPort)
	}
	if cfg.Listen.APIPort != 8081 {
		t.Errorf("expected default api port 8081, got %d", cfg.Listen.APIPort)
	}
	if cfg.Reduce.Policy != "first_success" {
		t.Errorf("expected default reduce policy first_success, got %s", cfg.Reduce.Policy)
	}
	if cfg.HealthCheck.FailureThreshold != 3 {
		t.Errorf("expected default failure threshold 3, got %d", cfg.HealthCheck.FailureThreshold)
	}
	if cfg.HealthCheck.Interval != 10*time.Second {
		t.Errorf("expected default health check interval 10s, got %v", cfg.HealthCheck.Interval)
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
