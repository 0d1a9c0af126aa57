package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"revcycle-hq/callisto/pkg/audit"
	auditrecorder "revcycle-hq/callisto/pkg/audit/recorder"
	"revcycle-hq/callisto/pkg/audit/retention"
	auditstorage "revcycle-hq/callisto/pkg/audit/storage"
	"revcycle-hq/callisto/pkg/cli"
	"revcycle-hq/callisto/pkg/config"
	"revcycle-hq/callisto/pkg/outbound"
	"revcycle-hq/callisto/pkg/rules"
	"revcycle-hq/callisto/pkg/rules/engine"
	"revcycle-hq/callisto/pkg/rules/engine/handlers"
	"revcycle-hq/callisto/pkg/rules/source"
	"revcycle-hq/callisto/pkg/rules/store"
	"revcycle-hq/callisto/pkg/service"
	"revcycle-hq/callisto/pkg/telemetry/health"
	"revcycle-hq/callisto/pkg/telemetry/logging"
	"revcycle-hq/callisto/pkg/telemetry/metrics"
	"revcycle-hq/callisto/pkg/trigger"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Callisto rule engine",
	Long: `Start the Callisto rule engine with the specified configuration.

The engine loads rules from the configured source, listens for trigger
events on the ingestion endpoint, and runs matching rules through the
condition evaluator and action executor. Every execution lands in the
audit trail.

Examples:
  # Start with default config
  callisto run

  # Start with custom config
  callisto run --config /etc/callisto/config.yaml

  # Override listen address
  callisto run --listen 0.0.0.0:9090

  # Validate config without starting
  callisto run --dry-run`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
		RedactPHI: cfg.Telemetry.Logging.RedactPHI,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Callisto v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Rule store and cache
	ruleStore, err := buildRuleStore(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer ruleStore.Close()

	cache := store.NewCache()
	reload := buildRuleLoader(cfg, ruleStore, cache, logger)
	if err := reload(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("initial rule load: %w", err))
	}
	fmt.Printf("✓ Rules loaded (%d rules)\n", len(cache.Snapshot()))

	// Hot reload for the file source
	if cfg.Rules.Source == "file" && cfg.Rules.Watch {
		watcher, err := source.NewFileWatcher(&source.WatcherConfig{
			Path:             cfg.Rules.Path,
			DebounceInterval: cfg.Rules.DebounceInterval,
		}, logger)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("rule watcher: %w", err))
		}
		go func() {
			err := watcher.Watch(ctx, func() {
				if err := reload(ctx); err != nil {
					slog.Error("rule reload failed", slog.String("error", err.Error()))
					return
				}
				slog.Info("rules reloaded",
					slog.Int("count", len(cache.Snapshot())),
					slog.Int64("version", cache.Version()),
				)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("rule watcher stopped", slog.String("error", err.Error()))
			}
		}()
		fmt.Println("✓ Rule hot reload enabled")
	}

	// Audit trail
	var auditStorage audit.Storage
	var recorder *auditrecorder.Recorder
	var pruner *retention.Pruner
	if cfg.Audit.Enabled {
		slog.Info("initializing audit trail", slog.String("backend", cfg.Audit.Backend))

		switch cfg.Audit.Backend {
		case "sqlite":
			auditStorage, err = auditstorage.NewSQLiteStorage(&auditstorage.SQLiteConfig{
				Path: cfg.Audit.SQLitePath,
			}, logger)
			if err != nil {
				return cli.NewCommandError("run", fmt.Errorf("audit storage: %w", err))
			}
		case "memory":
			auditStorage = auditstorage.NewMemoryStorage()
		default:
			return cli.NewConfigError("audit.backend", fmt.Sprintf("unsupported backend: %s", cfg.Audit.Backend))
		}
		defer auditStorage.Close()

		recorder = auditrecorder.NewRecorder(auditStorage, &auditrecorder.Config{
			Enabled:      true,
			AsyncBuffer:  cfg.Audit.AsyncBuffer,
			WriteTimeout: cfg.Audit.WriteTimeout,
		}, logger)
		defer recorder.Close()

		if cfg.Audit.Retention.PruneSchedule != "" {
			pruner = retention.NewPruner(auditStorage, &retention.Config{
				RetentionDays: cfg.Audit.Retention.Days,
				MaxRecords:    cfg.Audit.Retention.MaxRecords,
				PruneSchedule: cfg.Audit.Retention.PruneSchedule,
			}, logger)
			if err := pruner.Start(ctx); err != nil {
				slog.Warn("failed to start retention scheduler", slog.String("error", err.Error()))
			} else {
				defer pruner.Stop()
				if next := pruner.NextPruning(); next != nil {
					slog.Debug("audit retention scheduler started", slog.Time("next_pruning", *next))
				}
			}
		}
		fmt.Println("✓ Audit trail initialized")
	}

	// Action handlers
	outboundClient := outbound.NewClient(outbound.ClientConfig{
		Timeout:       cfg.Outbound.Timeout,
		MaxRetries:    cfg.Outbound.MaxRetries,
		RatePerSecond: cfg.Outbound.RatePerSecond,
		Burst:         cfg.Outbound.Burst,
	}, logger)

	registry := engine.NewHandlerRegistry()
	handlers.RegisterDefaults(registry, handlers.Options{
		Logger:          logger,
		Outbound:        outboundClient,
		EmailGatewayURL: cfg.Outbound.EmailGatewayURL,
		SMSGatewayURL:   cfg.Outbound.SMSGatewayURL,
	})

	// Engine
	var sink engine.AuditSink
	if recorder != nil {
		sink = recorder
	}
	eng, err := engine.New(&engine.Config{
		MaxConditionDepth:  cfg.Engine.MaxConditionDepth,
		MaxConcurrentRules: cfg.Engine.MaxConcurrentRules,
		RuleTimeout:        cfg.Engine.RuleTimeout,
	}, registry, sink, logger)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("engine: %w", err))
	}

	// Metrics
	collector := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Telemetry.Metrics.Enabled,
		Namespace: cfg.Telemetry.Metrics.Namespace,
		Subsystem: cfg.Telemetry.Metrics.Subsystem,
	}, nil)

	// Event source and processing service
	events := trigger.NewChannelSource(cfg.Service.EventBuffer)
	svc, err := service.New(&service.Config{Workers: cfg.Service.Workers}, eng, cache, events, collector, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	svcDone := make(chan struct{})
	go func() {
		defer close(svcDone)
		if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("service stopped", slog.String("error", err.Error()))
		}
	}()

	// Ops HTTP server: ingestion, metrics, health probes
	checker := health.New(0)
	checker.Register("rules", func(ctx context.Context) error {
		if len(cache.Snapshot()) == 0 {
			return fmt.Errorf("no rules loaded")
		}
		return nil
	})
	if auditStorage != nil {
		checker.Register("audit", func(ctx context.Context) error {
			_, err := auditStorage.Count(ctx)
			return err
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", ingestHandler(events, logger))
	mux.Handle("GET "+cfg.Telemetry.Metrics.Path, collector.Handler())
	health.Mount(mux, checker, Version, GitCommit, BuildDate)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", slog.String("address", cfg.Server.ListenAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Ingestion endpoint: http://%s/events\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Stop accepting events, then drain the in-flight ones.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		if err := events.Close(); err != nil {
			slog.Error("event source close failed", slog.String("error", err.Error()))
		}

		select {
		case <-svcDone:
		case <-shutdownCtx.Done():
			slog.Warn("shutdown deadline reached before workers drained")
			cancel()
		}

		fmt.Println("✓ Engine stopped")
		return nil
	}
}

// buildRuleStore picks the persistence backend for rule definitions.
func buildRuleStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Rules.Store {
	case "sqlite":
		return store.NewSQLiteStore(store.SQLiteConfig{
			DBPath:      cfg.Rules.SQLite.Path,
			BusyTimeout: cfg.Rules.SQLite.BusyTimeout,
		})
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported rule store: %s", cfg.Rules.Store)
	}
}

// buildRuleLoader returns the reload function used for the initial load
// and for every hot reload. The file source path reads rule documents
// from YAML, syncs them into the store, and refreshes the cache from the
// store so selection always sees one consistent set.
func buildRuleLoader(cfg *config.Config, ruleStore store.Store, cache *store.Cache, logger *slog.Logger) func(context.Context) error {
	if cfg.Rules.Source == "store" {
		return func(ctx context.Context) error {
			return cache.Reload(ctx, ruleStore)
		}
	}

	fileSource := source.NewFileSource(cfg.Rules.Path, logger)
	return func(ctx context.Context) error {
		loaded, err := fileSource.LoadRules(ctx)
		if err != nil {
			return err
		}
		for _, r := range loaded {
			if err := ruleStore.Put(ctx, r); err != nil {
				return fmt.Errorf("sync rule %s: %w", r.ID, err)
			}
		}
		cache.Set(loaded)
		return nil
	}
}

// ingestHandler accepts trigger events over HTTP and feeds them to the
// processing workers.
func ingestHandler(events *trigger.ChannelSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var event rules.TriggerEvent
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			http.Error(w, fmt.Sprintf("invalid event: %v", err), http.StatusBadRequest)
			return
		}
		if event.EntityType == "" || event.EntityID == "" || event.TriggerType == "" {
			http.Error(w, "entityType, entityId and triggerType are required", http.StatusBadRequest)
			return
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		if err := events.Publish(r.Context(), &event); err != nil {
			if errors.Is(err, trigger.ErrSourceClosed) {
				http.Error(w, "shutting down", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		logger.Debug("event accepted",
			slog.String("entity_type", event.EntityType),
			slog.String("entity_id", event.EntityID),
			slog.String("trigger_type", string(event.TriggerType)),
		)
		w.WriteHeader(http.StatusAccepted)
	}
}
