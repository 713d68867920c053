package config

import "time"

// Config is the root configuration for the service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Policies   PoliciesConfig   `yaml:"policies"`
	Overrides  OverridesConfig  `yaml:"overrides"`
	Simulation SimulationConfig `yaml:"simulation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP surface (metrics endpoint, health).
type ServerConfig struct {
	// ListenAddress is the host:port to bind.
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds request reads.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds response writes.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects and configures the governance store.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`

	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig configures the SQLite governance store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// BusyTimeout is how long to wait for locks before failing.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxOpenConns caps open connections.
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns caps idle connections.
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// PoliciesConfig configures the policy bundle source.
type PoliciesConfig struct {
	// BundlePath is the directory or file holding YAML policy
	// documents. Empty disables bundle loading.
	BundlePath string `yaml:"bundle_path"`

	// Watch enables hot reload of the bundle path.
	Watch bool `yaml:"watch"`

	// DebounceInterval coalesces rapid file change bursts.
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// OverridesConfig configures the override workflow.
type OverridesConfig struct {
	// DefaultTTLHours bounds how long an override may stay PENDING
	// when the request does not specify a TTL.
	DefaultTTLHours int `yaml:"default_ttl_hours"`

	// SweepSchedule is the cron expression for the expiry sweep.
	SweepSchedule string `yaml:"sweep_schedule"`

	// QuorumRoles lists the roles whose signatures approve an
	// override. Every listed role needs a distinct signer.
	QuorumRoles []string `yaml:"quorum_roles"`
}

// SimulationConfig bounds dry-run simulations.
type SimulationConfig struct {
	// MaxSampleSize caps how many snapshots one run may replay.
	MaxSampleSize int `yaml:"max_sample_size"`

	// ImpactedCap caps the detailed impacted-subject list.
	ImpactedCap int `yaml:"impacted_cap"`

	// FrictionThresholdPct flags drafts whose fail-rate change exceeds
	// this percentage as HIGH friction.
	FrictionThresholdPct float64 `yaml:"friction_threshold_pct"`
}

// MetricsConfig configures the metrics aggregator.
type MetricsConfig struct {
	// Enabled toggles the aggregator and the Prometheus endpoint.
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	Path string `yaml:"path"`

	// DBPath is the SQLite file for derived metrics. Empty keeps the
	// aggregator in memory.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}
