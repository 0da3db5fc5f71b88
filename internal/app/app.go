// Package app wires configuration, storage and the sequence service
// together for the server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"seqnum/internal/config"
	"seqnum/internal/core/numerator"
	"seqnum/internal/core/tx"
	"seqnum/internal/domain/auth"
	"seqnum/internal/domain/sequence"
	"seqnum/internal/infrastructure/cache"
	v1 "seqnum/internal/infrastructure/http/v1"
	"seqnum/internal/infrastructure/http/v1/handlers"
	"seqnum/internal/infrastructure/metrics"
	pgcounter "seqnum/internal/infrastructure/numerator"
	"seqnum/internal/infrastructure/storage/memory"
	"seqnum/internal/infrastructure/storage/postgres"
	"seqnum/internal/infrastructure/storage/postgres/sequence_repo"
	"seqnum/pkg/logger"
)

// ManageRole is the role allowed to create and reconfigure sequences when
// authentication is required.
const ManageRole = "sequence_manager"

var _ handlers.SequenceService = (*sequence.Service)(nil)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Service  *sequence.Service
	JWT      *auth.JWTService
	Registry *prometheus.Registry

	pool  *postgres.Pool
	cache *cache.SequenceCache
}

// New builds the application for cfg. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
	}
	if cfg.Auth.JWTSecret != "" {
		jwtCfg := auth.DefaultJWTConfig(cfg.Auth.JWTSecret)
		jwtCfg.Issuer = cfg.Auth.Issuer
		a.JWT = auth.NewJWTService(jwtCfg)
	}

	var (
		store     numerator.Store
		counter   numerator.Counter
		txManager tx.Manager
	)

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.MinConns = cfg.Database.MinConns
		poolCfg.ApplicationName = cfg.Database.ApplicationName
		poolCfg.LockTimeout = cfg.Database.LockTimeout

		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool

		txm := postgres.NewTxManager(pool)
		store = sequence_repo.New(txm)
		counter = pgcounter.NewWithTxManager(txm)
		txManager = txm

	case config.DriverMemory:
		store = memory.NewStore()
		counter = memory.NewCounter()
		txManager = memory.NewTxManager()

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Cache.Enabled {
		var listenPool *pgxpool.Pool
		if a.pool != nil {
			listenPool = a.pool.Unwrap()
		}
		a.cache = cache.NewSequenceCache(store, listenPool)
		store = a.cache
	}

	var observer sequence.Observer
	if cfg.Metrics.Enabled {
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		observer = metrics.New(a.Registry)
		if a.pool != nil {
			metrics.RegisterPool(a.Registry, a.pool)
		}
		if a.cache != nil {
			metrics.RegisterCache(a.Registry, a.cache)
		}
	}

	a.Service = sequence.NewService(sequence.ServiceConfig{
		Store:           store,
		Counter:         counter,
		TxManager:       txManager,
		DefaultTimezone: cfg.Sequence.DefaultTimezone,
		Observer:        observer,
	})

	log.Infow("application wired",
		"storage", cfg.Storage.Driver,
		"cache", cfg.Cache.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)
	return a, nil
}

// Migrate creates the schema. It is a no-op for memory storage.
func (a *App) Migrate(ctx context.Context) error {
	if a.pool == nil {
		return nil
	}
	return postgres.EnsureSchema(ctx, a.pool)
}

// Start launches background work (cache invalidation listener).
func (a *App) Start(ctx context.Context) error {
	if a.cache != nil {
		return a.cache.Start(ctx)
	}
	return nil
}

// Router builds the HTTP handler.
func (a *App) Router() *gin.Engine {
	cfg := v1.RouterConfig{
		Logger:        a.Logger,
		AuthRequired:  a.Config.Auth.Required,
		Sequences:     a.Service,
		StorageDriver: a.Config.Storage.Driver,
	}
	if a.JWT != nil {
		cfg.JWTValidator = a.JWT
	}
	if a.Config.Auth.Required {
		cfg.ManageRoles = []string{ManageRole}
		if a.Logger != nil {
			cfg.LogLevel = a.Logger.LevelHandler()
		}
	}
	if a.pool != nil {
		cfg.DB = a.pool
	}
	if a.Config.Metrics.Enabled {
		cfg.MetricsHandler = a.MetricsHandler()
	}
	return v1.NewRouter(cfg)
}

// MetricsHandler serves the application registry.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
}

// LogPoolStats logs connection pool statistics when a database is used.
func (a *App) LogPoolStats(ctx context.Context) {
	if a.pool != nil {
		a.pool.LogStats(ctx)
	}
}

// Close releases resources.
func (a *App) Close() {
	if a.cache != nil {
		a.cache.Stop()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.Logger.Sync()
}
