package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alem-hub/grade-analytics/config"
	"github.com/alem-hub/grade-analytics/internal/application/query"
	"github.com/alem-hub/grade-analytics/internal/domain/anomaly"
	"github.com/alem-hub/grade-analytics/internal/domain/correlation"
	"github.com/alem-hub/grade-analytics/internal/domain/prediction"
	"github.com/alem-hub/grade-analytics/internal/domain/score"
	"github.com/alem-hub/grade-analytics/internal/infrastructure/cache"
	"github.com/alem-hub/grade-analytics/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/grade-analytics/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/grade-analytics/internal/infrastructure/service"
	"github.com/alem-hub/grade-analytics/pkg/circuitbreaker"
	"github.com/alem-hub/grade-analytics/pkg/logger"
	"github.com/alem-hub/grade-analytics/pkg/retry"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// app holds everything a subcommand needs. Built once per invocation.
type app struct {
	cfg  *config.Config
	log  *logger.Logger
	deps query.Dependencies

	// db is set only when scores come from PostgreSQL.
	db *postgres.Connection

	closers []func(context.Context) error
}

// buildOptions select the wiring for one invocation.
type buildOptions struct {
	// Input is a dataset file; empty means the PostgreSQL score store.
	Input string

	// NeedDatabase forces a database connection even with Input set.
	NeedDatabase bool

	LogOutput   io.Writer
	TraceOutput io.Writer
}

// newApp wires config, logging, tracing, the score provider and the cache.
func newApp(ctx context.Context, opts buildOptions) (*app, error) {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Logger
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:    opts.LogOutput,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.Format(cfg.Observability.LogFormat),
		AddCaller: cfg.App.Debug,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
	)

	a := &app{cfg: cfg, log: log}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Tracing
	// ─────────────────────────────────────────────────────────────────────────
	a.closers = append(a.closers, setupTracing(
		cfg.Observability.TracingEnabled, cfg.App.Name, cfg.App.Version, opts.TraceOutput, log,
	))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Score provider
	// ─────────────────────────────────────────────────────────────────────────
	var provider score.Provider
	if opts.Input != "" {
		records, err := loadDataset(opts.Input)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		log.Info("dataset loaded", logger.String("path", opts.Input), logger.RecordCount(len(records)))
		provider = score.NewStaticProvider(records)
	}

	if opts.Input == "" || opts.NeedDatabase {
		if err := a.connectDatabase(ctx); err != nil {
			a.Close(ctx)
			return nil, err
		}
		if provider == nil {
			provider = a.scoreStore()
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Statistics cache
	// ─────────────────────────────────────────────────────────────────────────
	resultCache, err := a.buildCache()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.deps = query.Dependencies{
		Provider: provider,
		Cache:    resultCache,
		Logger:   log,
		Clock:    timeutil.SystemClock{},
	}
	return a, nil
}

func (a *app) connectDatabase(ctx context.Context) error {
	if a.cfg.Database.URL == "" {
		return fmt.Errorf("no score source: pass --input or set DATABASE_URL")
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = a.cfg.Database.URL
	pgCfg.MaxConns = int32(a.cfg.Database.MaxConns)
	pgCfg.MinConns = int32(a.cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = a.cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = a.cfg.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return err
	}
	a.db = conn
	a.closers = append(a.closers, func(context.Context) error {
		conn.Close()
		return nil
	})
	a.log.Debug("connected to score store")
	return nil
}

// scoreStore decorates the repository with retries, a breaker and a
// per-attempt timeout.
func (a *app) scoreStore() score.Provider {
	db := a.cfg.Database
	breaker := circuitbreaker.ScoreStoreBreaker(a.onBreakerChange,
		circuitbreaker.WithFailureThreshold(db.CircuitBreakerThreshold),
		circuitbreaker.WithTimeout(db.CircuitBreakerTimeout),
		circuitbreaker.WithIsFailure(postgres.IsTransient),
	)

	return service.NewResilientProvider(postgres.NewScoreRepository(a.db), service.ResilientProviderOptions{
		Retry: []retry.Option{
			retry.WithMaxAttempts(db.MaxRetries),
			retry.WithInitialDelay(db.RetryBaseDelay),
			retry.WithMaxDelay(10 * db.RetryBaseDelay),
			retry.WithJitter(0.2),
		},
		IsTransient: postgres.IsTransient,
		Breaker:     breaker,
		Timeout:     db.QueryTimeout,
		Logger:      a.log,
	})
}

// buildCache returns nil when result caching is switched off.
func (a *app) buildCache() (*cache.Cache, error) {
	if !a.cfg.Features.IsEnabled(config.FeatureResultCache) {
		return nil, nil
	}

	opts := cache.Options{
		Backend:    a.cfg.Cache.Backend,
		MaxEntries: a.cfg.Cache.MaxEntries,
		DefaultTTL: a.cfg.Cache.DefaultTTL,
		Clock:      timeutil.SystemClock{},
		Logger:     a.log,
	}
	if a.cfg.Observability.MetricsEnabled {
		opts.Registerer = prometheus.DefaultRegisterer
	}

	if a.cfg.Cache.Backend == config.CacheBackendRedis {
		rc := a.cfg.Redis
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = rc.Host
		redisCfg.Port = rc.Port
		redisCfg.Password = rc.Password
		redisCfg.DB = rc.DB
		redisCfg.PoolSize = rc.PoolSize
		redisCfg.MinIdleConns = rc.MinIdleConns
		redisCfg.DialTimeout = rc.DialTimeout
		redisCfg.ReadTimeout = rc.ReadTimeout
		redisCfg.WriteTimeout = rc.WriteTimeout
		if rc.URL != "" {
			var err error
			if redisCfg, err = redisCfg.WithURL(rc.URL); err != nil {
				return nil, err
			}
		}

		client, err := redis.NewClient(redisCfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		opts.Store = redis.NewStatsStore(client, redisCfg.Namespace, redis.RemoteCacheBreaker(a.onBreakerChange))
	}

	c := cache.New(opts)
	a.closers = append(a.closers, func(ctx context.Context) error {
		stats := c.Stats(ctx)
		a.log.Debug("cache stats",
			logger.Component("cache"),
			logger.Any("stats", stats),
			logger.Float64("hit_rate", stats.HitRate()),
		)
		return nil
	})
	return c, nil
}

// invalidateResults drops every cached result once the score store has
// changed underneath it.
func (a *app) invalidateResults(ctx context.Context) error {
	if a.deps.Cache == nil {
		return nil
	}
	if err := a.deps.Cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear result cache: %w", err)
	}
	a.log.Info("result cache cleared", logger.Component("cache"))
	return nil
}

func (a *app) onBreakerChange(name string, from, to circuitbreaker.State) {
	a.log.Warn("circuit breaker state changed",
		logger.String("breaker", name),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers with configured defaults
// ─────────────────────────────────────────────────────────────────────────────

func (a *app) correlationHandler() *query.CorrelationHandler {
	return query.NewCorrelationHandler(a.deps, correlation.Options{
		Significance: correlation.SignificanceMethod(a.cfg.Analytics.Significance),
	})
}

func (a *app) anomalyHandler(algorithm anomaly.Algorithm) *query.AnomalyDetectionHandler {
	return query.NewAnomalyDetectionHandler(a.deps, anomaly.Options{
		Algorithm:             algorithm,
		HighSeverityDeviation: a.cfg.Analytics.HighSeverityDeviation,
	}, a.cfg.Analytics.DefaultSensitivity)
}

func (a *app) predictionHandler() *query.PredictionHandler {
	return query.NewPredictionHandler(a.deps, prediction.Options{
		MinTrainingRecords: a.cfg.Analytics.MinTrainingRecords,
	})
}

// Close runs the closers in reverse order with a bounded deadline.
func (a *app) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.log.Warn("shutdown step failed", logger.Err(err))
		}
	}
	a.closers = nil
	_ = a.log.Sync()
}
