package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provost.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:8440" {
		t.Fatalf("default listen address missing: %q", cfg.Server.ListenAddress)
	}
	if cfg.Overrides.DefaultTTLHours != 24 || cfg.Overrides.SweepSchedule != "@every 1m" {
		t.Fatalf("override defaults missing: %+v", cfg.Overrides)
	}
	if len(cfg.Overrides.QuorumRoles) != 2 {
		t.Fatalf("quorum role defaults missing: %v", cfg.Overrides.QuorumRoles)
	}
	if cfg.Simulation.MaxSampleSize != 500 {
		t.Fatalf("simulation defaults missing: %+v", cfg.Simulation)
	}
}

func TestLoadConfigParsesValues(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9000"
storage:
  backend: sqlite
  sqlite:
    path: /tmp/test.db
    busy_timeout: 2s
policies:
  bundle_path: /etc/provost/policies
  watch: true
overrides:
  default_ttl_hours: 4
  quorum_roles: [lead, security, compliance]
logging:
  level: debug
  format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Fatalf("listen address not parsed: %q", cfg.Server.ListenAddress)
	}
	if cfg.Storage.SQLite.Path != "/tmp/test.db" || cfg.Storage.SQLite.BusyTimeout != 2*time.Second {
		t.Fatalf("sqlite config not parsed: %+v", cfg.Storage.SQLite)
	}
	if !cfg.Policies.Watch || cfg.Policies.BundlePath != "/etc/provost/policies" {
		t.Fatalf("policies config not parsed: %+v", cfg.Policies)
	}
	if cfg.Overrides.DefaultTTLHours != 4 || len(cfg.Overrides.QuorumRoles) != 3 {
		t.Fatalf("overrides config not parsed: %+v", cfg.Overrides)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"empty sqlite path", func(c *Config) { c.Storage.SQLite.Path = "" }},
		{"negative ttl", func(c *Config) { c.Overrides.DefaultTTLHours = -1 }},
		{"bad cron", func(c *Config) { c.Overrides.SweepSchedule = "not a schedule" }},
		{"empty quorum role", func(c *Config) { c.Overrides.QuorumRoles = []string{"lead", " "} }},
		{"zero sample cap", func(c *Config) { c.Simulation.MaxSampleSize = -5 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "127.0.0.1:8440"
overrides:
  quorum_roles: [lead, security]
`)

	t.Setenv("PROVOST_SERVER_LISTEN_ADDRESS", "0.0.0.0:7000")
	t.Setenv("PROVOST_OVERRIDES_QUORUM_ROLES", "lead, security, compliance")
	t.Setenv("PROVOST_STORAGE_BACKEND", "memory")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:7000" {
		t.Fatalf("env override lost: %q", cfg.Server.ListenAddress)
	}
	if len(cfg.Overrides.QuorumRoles) != 3 || cfg.Overrides.QuorumRoles[2] != "compliance" {
		t.Fatalf("quorum roles override lost: %v", cfg.Overrides.QuorumRoles)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("backend override lost: %q", cfg.Storage.Backend)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
