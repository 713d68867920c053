package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for values that would break the
// service at runtime. It returns the first problem found.
func Validate(cfg *Config) error {
	if cfg.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path cannot be empty with the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", "memory", "sqlite", cfg.Storage.Backend)
	}

	if cfg.Overrides.DefaultTTLHours <= 0 {
		return fmt.Errorf("overrides.default_ttl_hours must be positive, got %d", cfg.Overrides.DefaultTTLHours)
	}
	if _, err := cron.ParseStandard(cfg.Overrides.SweepSchedule); err != nil {
		return fmt.Errorf("overrides.sweep_schedule %q is not a valid cron expression: %w", cfg.Overrides.SweepSchedule, err)
	}
	for _, role := range cfg.Overrides.QuorumRoles {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("overrides.quorum_roles must not contain empty roles")
		}
	}

	if cfg.Simulation.MaxSampleSize <= 0 {
		return fmt.Errorf("simulation.max_sample_size must be positive, got %d", cfg.Simulation.MaxSampleSize)
	}
	if cfg.Simulation.ImpactedCap <= 0 {
		return fmt.Errorf("simulation.impacted_cap must be positive, got %d", cfg.Simulation.ImpactedCap)
	}
	if cfg.Simulation.FrictionThresholdPct <= 0 {
		return fmt.Errorf("simulation.friction_threshold_pct must be positive, got %g", cfg.Simulation.FrictionThresholdPct)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}

	return nil
}
