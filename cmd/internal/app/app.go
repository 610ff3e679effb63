// Package app wires the tdp server runtime: config, logging, storage, and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tdp/cmd/identity"
	authapi "tdp/cmd/internal/auth/api"
	"tdp/cmd/internal/auth/session"
	"tdp/cmd/internal/events"
	"tdp/cmd/internal/features"
	"tdp/cmd/internal/metrics"
	"tdp/cmd/internal/migrations"
	"tdp/cmd/internal/ratelimit"
	"tdp/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App owns every long-lived dependency and the HTTP server.
type App struct {
	cfg Config
	log Logger

	dbPool  *pgxpool.Pool
	closers []func() error

	metrics  *metrics.Metrics
	sessions *session.Service
	auth     *authapi.Handler
	features *features.Handler
}

type stores struct {
	users    identity.Store
	tokens   session.Store
	features features.Store
}

// New constructs a fully wired App. Without TDP_DATABASE_URL everything runs in memory.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	if err := a.wire(ctx); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	authCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	hasher, err := password.FromEnv()
	if err != nil {
		return err
	}

	st, err := a.newStores(ctx)
	if err != nil {
		return err
	}

	publisher, err := a.newPublisher()
	if err != nil {
		return err
	}
	limiter, err := a.newLimiter(ctx, authCfg.RateLimit)
	if err != nil {
		return err
	}

	keys, err := session.NewKeyProvider(sessCfg.RSAKeyBits)
	if err != nil {
		return err
	}
	access, err := session.NewJWTManager(sessCfg, keys)
	if err != nil {
		return err
	}

	featureSvc, err := features.NewService(st.features, st.users,
		features.WithEvents(publisher),
		features.WithLogger(a.log),
	)
	if err != nil {
		return err
	}

	a.sessions, err = session.NewService(sessCfg, st.users, st.tokens, access, hasher,
		session.WithPermissions(featureSvc),
		session.WithEvents(publisher),
		session.WithRecorder(a.metrics),
		session.WithLogger(a.log),
	)
	if err != nil {
		return err
	}

	a.auth, err = authapi.NewHandler(a.log, authCfg, a.sessions, st.users, keys,
		authapi.WithLimiter(limiter),
		authapi.WithAdmins(featureSvc),
		authapi.WithPermissions(featureSvc),
	)
	if err != nil {
		return err
	}
	a.features = features.NewHandler(a.log, featureSvc, a.sessions)

	if a.cfg.Seed {
		if err := Seed(ctx, a.log, a.cfg, st.users, st.features, hasher); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) newStores(ctx context.Context) (stores, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		users := identity.NewMemoryStore()
		return stores{
			users:    users,
			tokens:   session.NewMemoryStore(),
			features: features.NewMemoryStore(users),
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return stores{}, err
	}
	a.dbPool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if a.cfg.MigrateOnStart {
		if err := migrations.Up(ctx, pool); err != nil {
			return stores{}, err
		}
		a.log.Info("db.migrated")
	}

	schema := a.cfg.DBSchema
	users, err := identity.NewPostgresStore(pool, identity.WithSchema(schema))
	if err != nil {
		return stores{}, err
	}
	tokens, err := session.NewPostgresStore(pool, session.WithSchema(schema))
	if err != nil {
		return stores{}, err
	}
	feats, err := features.NewPostgresStore(pool, features.WithSchema(schema))
	if err != nil {
		return stores{}, err
	}

	a.log.Info("db.enabled.postgres_store", "schema", schema)
	return stores{users: users, tokens: tokens, features: feats}, nil
}

func (a *App) newPublisher() (events.Publisher, error) {
	if a.cfg.AMQPURL == "" {
		return events.Noop{}, nil
	}
	p, err := events.NewAMQPPublisher(a.cfg.AMQPURL, a.cfg.AMQPQueue, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, p.Close)
	a.log.Info("events.amqp.enabled", "queue", a.cfg.AMQPQueue)
	return p, nil
}

func (a *App) newLimiter(ctx context.Context, cfg ratelimit.Config) (ratelimit.Limiter, error) {
	if !cfg.Enabled {
		return ratelimit.Noop{}, nil
	}
	if a.cfg.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(cfg)
	}
	rdb, err := ratelimit.NewRedisClient(ctx, a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rdb.Close)
	a.log.Info("ratelimit.redis.enabled", "addr", a.cfg.RedisAddr)
	return ratelimit.NewRedisLimiter(rdb, cfg)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil, "env", a.cfg.Env)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		_ = a.close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		_ = a.close()
		return err
	}

	if err := a.close(); err != nil {
		a.log.Error("resources.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("app: close: %w", errors.Join(errs...))
	}
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
