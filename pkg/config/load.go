package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults,
// and validates the result. Environment variables are not consulted;
// use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies PROVOST_SECTION_FIELD environment overrides on top. The
// environment always wins over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("PROVOST_SERVER_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("PROVOST_SERVER_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if val := os.Getenv("PROVOST_SERVER_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if val := os.Getenv("PROVOST_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("PROVOST_STORAGE_SQLITE_PATH"); val != "" {
		cfg.Storage.SQLite.Path = val
	}
	if val := os.Getenv("PROVOST_STORAGE_SQLITE_BUSY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Storage.SQLite.BusyTimeout = d
		}
	}

	if val := os.Getenv("PROVOST_POLICIES_BUNDLE_PATH"); val != "" {
		cfg.Policies.BundlePath = val
	}
	if val := os.Getenv("PROVOST_POLICIES_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Policies.Watch = b
		}
	}

	if val := os.Getenv("PROVOST_OVERRIDES_DEFAULT_TTL_HOURS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Overrides.DefaultTTLHours = i
		}
	}
	if val := os.Getenv("PROVOST_OVERRIDES_SWEEP_SCHEDULE"); val != "" {
		cfg.Overrides.SweepSchedule = val
	}
	if val := os.Getenv("PROVOST_OVERRIDES_QUORUM_ROLES"); val != "" {
		var roles []string
		for _, role := range strings.Split(val, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
		if len(roles) > 0 {
			cfg.Overrides.QuorumRoles = roles
		}
	}

	if val := os.Getenv("PROVOST_SIMULATION_MAX_SAMPLE_SIZE"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Simulation.MaxSampleSize = i
		}
	}

	if val := os.Getenv("PROVOST_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("PROVOST_METRICS_DB_PATH"); val != "" {
		cfg.Metrics.DBPath = val
	}

	if val := os.Getenv("PROVOST_LOGGING_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("PROVOST_LOGGING_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
}
