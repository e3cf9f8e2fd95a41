package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	cacheadapter "github.com/sentinelpdp/policy-engine/internal/adapter/outbound/cache"
	"github.com/sentinelpdp/policy-engine/internal/adapter/outbound/sqlite"
	"github.com/sentinelpdp/policy-engine/internal/config"
	domaincache "github.com/sentinelpdp/policy-engine/internal/domain/cache"
	"github.com/sentinelpdp/policy-engine/internal/metrics"
	"github.com/sentinelpdp/policy-engine/internal/service"
	"github.com/sentinelpdp/policy-engine/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the decision API and health endpoints",
	Long: `Start the policy engine: load configuration, open the durable
store, build the evaluation cache, and serve /livez, /readyz, and /metrics.
The decision API itself (evaluate/simulate/batch) has no bundled HTTP/gRPC
transport in this build — it is consumed in-process, e.g. from other
commands or an embedding service.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("dev", false, "enable development mode (relaxed validation, debug logging)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dev, _ := cmd.Flags().GetBool("dev"); dev {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := newLogger(cfg)
	if f := config.ConfigFileUsed(); f != "" {
		logger.Info("loaded config", "file", f)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	provider, err := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "policy-engine",
		ServiceVersion: Version,
		SamplingRatio:  1,
	})
	if err != nil {
		return fmt.Errorf("start telemetry: %w", err)
	}
	defer provider.Shutdown(context.Background())

	db, err := sqlite.Open(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(max(cfg.Database.PoolMax, 1))

	policyStore := sqlite.NewPolicyStore(db)
	auditStore := sqlite.NewAuditStore(db)

	cache, closeCache := buildCache(cfg, logger)
	if closeCache != nil {
		defer closeCache()
	}

	engine, err := service.NewEngine(ctx, policyStore, logger)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	engine.WithMetrics(m)

	// api and admin are the in-process entry points an embedder (or a
	// future transport) calls into; this build exposes only health and
	// metrics over HTTP, per the out-of-scope transport boundary.
	api := service.NewDecisionAPI(engine, cache, auditStore, logger).
		WithMetrics(m).
		WithTracer(provider.Tracer())
	admin := service.NewPolicyAdmin(policyStore, engine, cache, logger)
	_, _ = api, admin

	stopRetention := startRetentionLoop(ctx, auditStore, cfg, logger)
	defer stopRetention()

	stopReload := startReloadLoop(ctx, engine, logger)
	defer stopReload()

	srv := &stdhttp.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: healthMux(db, cache, reg),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("policy engine listening", "addr", srv.Addr, "dev_mode", cfg.DevMode)
		if err := srv.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "grace", cfg.Server.ShutdownGrace)
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown did not complete in time", "error", err)
	}
	logger.Info("policy engine stopped")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildCache constructs the two-tier cache from config. A nil close func
// means there is nothing to release on shutdown.
func buildCache(cfg *config.Config, logger *slog.Logger) (domaincache.Cache, func()) {
	if !cfg.Cache.Enabled {
		return cacheadapter.Disabled{}, nil
	}
	local := cacheadapter.NewLocal(cfg.Cache.MaxSize)
	if cfg.Redis.URL == "" {
		return cacheadapter.NewLayered(local, nil, logger), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	shared := cacheadapter.NewShared(client, cfg.Redis.KeyPrefix, logger)
	return cacheadapter.NewLayered(local, shared, logger), func() { client.Close() }
}

// startRetentionLoop purges audit records older than cfg.Audit.RetentionDays
// every cfg.Audit.FlushInterval, per spec section 6's purge-older-than
// operation. Returns a function that stops the loop.
func startRetentionLoop(ctx context.Context, store interface {
	DeleteOlderThan(ctx context.Context, days int) (int64, error)
}, cfg *config.Config, logger *slog.Logger) func() {
	ticker := time.NewTicker(cfg.Audit.FlushInterval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				n, err := store.DeleteOlderThan(ctx, cfg.Audit.RetentionDays)
				if err != nil {
					logger.Warn("audit retention purge failed", "error", err)
					continue
				}
				if n > 0 {
					logger.Info("audit retention purge", "deleted", n, "retention_days", cfg.Audit.RetentionDays)
				}
			}
		}
	}()
	return func() { close(done) }
}

// startReloadLoop periodically refreshes the engine's active-policy
// snapshot from the durable store, so mutations made outside this process
// (e.g. a direct database edit, or a future out-of-process admin tool) are
// picked up without a restart. Returns a function that stops the loop.
func startReloadLoop(ctx context.Context, engine *service.Engine, logger *slog.Logger) func() {
	ticker := time.NewTicker(30 * time.Second)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := engine.Reload(ctx); err != nil {
					logger.Warn("policy reload failed", "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

// healthMux serves readiness/liveness/metrics. Readiness checks the durable
// store and, when present, the shared cache tier; liveness is unconditional
// once the process is serving requests (spec section 6 "Exit and health").
func healthMux(db interface {
	PingContext(ctx context.Context) error
}, cache domaincache.Cache, reg *prometheus.Registry) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.HandleFunc("/livez", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		w.WriteHeader(stdhttp.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := struct {
			Database bool `json:"database"`
			Cache    bool `json:"cache"`
		}{}

		status.Database = db.PingContext(ctx) == nil
		status.Cache = cache == nil || cache.Healthy(ctx) == nil

		w.Header().Set("Content-Type", "application/json")
		if !status.Database {
			w.WriteHeader(stdhttp.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
