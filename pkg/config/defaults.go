package config

import "time"

// ApplyDefaults fills zero-valued fields with sensible defaults. Safe
// to call on a partially populated configuration.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = "127.0.0.1:8440"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/provost.db"
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = 5 * time.Second
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = 4
	}
	if cfg.Storage.SQLite.MaxIdleConns == 0 {
		cfg.Storage.SQLite.MaxIdleConns = 2
	}

	if cfg.Policies.DebounceInterval == 0 {
		cfg.Policies.DebounceInterval = 100 * time.Millisecond
	}

	if cfg.Overrides.DefaultTTLHours == 0 {
		cfg.Overrides.DefaultTTLHours = 24
	}
	if cfg.Overrides.SweepSchedule == "" {
		cfg.Overrides.SweepSchedule = "@every 1m"
	}
	if len(cfg.Overrides.QuorumRoles) == 0 {
		cfg.Overrides.QuorumRoles = []string{"lead", "security"}
	}

	if cfg.Simulation.MaxSampleSize == 0 {
		cfg.Simulation.MaxSampleSize = 500
	}
	if cfg.Simulation.ImpactedCap == 0 {
		cfg.Simulation.ImpactedCap = 50
	}
	if cfg.Simulation.FrictionThresholdPct == 0 {
		cfg.Simulation.FrictionThresholdPct = 10.0
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	return cfg
}
