package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"provost-hq/provost/pkg/cli"
	"provost-hq/provost/pkg/config"
	"provost-hq/provost/pkg/evaluate"
	"provost-hq/provost/pkg/facts"
	"provost-hq/provost/pkg/govmetrics"
	metricsstorage "provost-hq/provost/pkg/govmetrics/storage"
	"provost-hq/provost/pkg/ledger"
	"provost-hq/provost/pkg/override"
	"provost-hq/provost/pkg/registry"
	"provost-hq/provost/pkg/registry/bundle"
	"provost-hq/provost/pkg/simulate"
	"provost-hq/provost/pkg/store"
)

// governanceStore is what a storage backend must provide to host every
// component.
type governanceStore interface {
	facts.Store
	registry.Store
	ledger.Store
	override.Store
	simulate.Store
}

// components is the assembled governance runtime. The outer API surface
// that drives evaluation lives with embedding callers; the service
// process hosts the shared pieces: bundle sync, expiry sweep,
// simulations in flight, and the metrics endpoint.
type components struct {
	registry   *registry.Registry
	ledger     *ledger.Ledger
	workflow   *override.Workflow
	simulation *simulate.Engine
	aggregator *govmetrics.Aggregator
}

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Provost governance service",
	Long: `Start the governance service with the specified configuration.

The service loads the policy bundle, runs the override expiry sweep on
its schedule, and serves health and Prometheus metrics endpoints.

Examples:
  # Start with default config
  provost run

  # Start with custom config
  provost run --config /etc/provost/provost.yaml

  # Override listen address
  provost run --listen 0.0.0.0:8440

  # Validate config without starting
  provost run --dry-run`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the service")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}

	setupLogging(cfg)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Provost v%s\n", Version)
	fmt.Println("✓ Configuration loaded")

	// Storage backend
	var (
		st      governanceStore
		closeFn func() error
	)
	switch cfg.Storage.Backend {
	case "sqlite":
		sqliteStore, err := store.NewSQLite(&store.SQLiteConfig{
			Path:         cfg.Storage.SQLite.Path,
			MaxOpenConns: cfg.Storage.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Storage.SQLite.MaxIdleConns,
			WALMode:      true,
			BusyTimeout:  cfg.Storage.SQLite.BusyTimeout,
		})
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to open governance store: %w", err))
		}
		st = sqliteStore
		closeFn = sqliteStore.Close
	case "memory":
		st = store.NewMemory()
	default:
		return cli.NewConfigError("storage.backend", fmt.Sprintf("unsupported backend %q", cfg.Storage.Backend))
	}
	if closeFn != nil {
		defer closeFn()
	}
	fmt.Printf("✓ Governance store initialized (%s)\n", cfg.Storage.Backend)

	runtime := &components{
		registry: registry.New(st),
		ledger:   ledger.New(st),
	}
	reg := runtime.registry

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Policy bundle
	if cfg.Policies.BundlePath != "" {
		loader := bundle.NewLoader(cfg.Policies.BundlePath)
		syncer := bundle.NewSyncer(reg)

		reload := func() error {
			docs, err := loader.Load()
			if err != nil {
				return err
			}
			synced, err := syncer.Sync(ctx, docs)
			if err != nil {
				return err
			}
			slog.Info("policy bundle synced", "documents", len(docs), "changed", synced)
			return nil
		}

		if err := reload(); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to load policy bundle: %w", err))
		}
		fmt.Println("✓ Policy bundle loaded")

		if cfg.Policies.Watch {
			watcher, err := bundle.NewWatcher(cfg.Policies.BundlePath, cfg.Policies.DebounceInterval)
			if err != nil {
				return cli.NewCommandError("run", fmt.Errorf("failed to watch policy bundle: %w", err))
			}
			go func() {
				if err := watcher.Watch(ctx, reload); err != nil {
					slog.Error("policy bundle watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
			fmt.Println("✓ Policy bundle hot reload enabled")
		}
	}

	// Override workflow and expiry sweep
	runtime.workflow = override.NewWorkflow(st, &override.RoleQuorum{Required: cfg.Overrides.QuorumRoles})
	runtime.workflow.SetDefaultTTL(cfg.Overrides.DefaultTTLHours)
	scheduler := override.NewScheduler(runtime.workflow, cfg.Overrides.SweepSchedule)
	if err := scheduler.Start(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to start expiry scheduler: %w", err))
	}
	defer scheduler.Stop()
	fmt.Println("✓ Override expiry scheduler started")

	// Simulation engine
	runtime.simulation = simulate.NewEngine(st, st, st, reg, evaluate.NewEngine(), simulate.Config{
		MaxSampleSize:        cfg.Simulation.MaxSampleSize,
		ImpactedCap:          cfg.Simulation.ImpactedCap,
		FrictionThresholdPct: cfg.Simulation.FrictionThresholdPct,
	})
	defer runtime.simulation.Wait()

	// Metrics aggregator and HTTP surface
	promRegistry := prometheus.NewRegistry()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	if cfg.Metrics.Enabled {
		var backend govmetrics.Store
		if cfg.Metrics.DBPath != "" {
			sqliteBackend, err := metricsstorage.NewSQLite(metricsstorage.SQLiteConfig{
				DBPath:      cfg.Metrics.DBPath,
				BusyTimeout: cfg.Storage.SQLite.BusyTimeout,
			})
			if err != nil {
				return cli.NewCommandError("run", fmt.Errorf("failed to open metrics store: %w", err))
			}
			backend = sqliteBackend
		} else {
			backend = metricsstorage.NewMemory()
		}
		defer backend.Close()

		runtime.aggregator = govmetrics.NewAggregator(backend, reg, govmetrics.NewMetrics(promRegistry))
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		fmt.Println("✓ Metrics aggregator initialized")
	}

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "address", cfg.Server.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

// loadConfig reads the config file when it exists and falls back to
// defaults plus environment overrides when the default path is absent.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); err != nil {
		if os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("config") {
			cfg := config.Default()
			if err := config.Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return config.LoadConfigWithEnvOverrides(cfgFile)
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
