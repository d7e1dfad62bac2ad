// Package bootstrap builds the scheduler and its collaborators from
// configuration. Every binary goes through New so they agree on which store
// and locker are in use.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/lock"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/sqlite"
	"github.com/hackgods/clinic-scheduling/internal/supabase"
)

type App struct {
	Scheduler    *appointment.Scheduler
	Repository   appointment.Repository
	Dependencies []api.Check

	// Postgres is set only for STORE=postgres.
	Postgres *pgxpool.Pool

	log     *zap.Logger
	closers []func() error
}

// New connects the configured store and locker. On error everything opened
// so far is closed again.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	app := &App{log: log}
	if err := app.build(ctx, cfg); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context, cfg config.Config) error {
	if err := a.openStore(ctx, cfg); err != nil {
		return err
	}

	locker, err := a.openLocker(ctx, cfg)
	if err != nil {
		return err
	}

	hours, err := cfg.WeeklyHours()
	if err != nil {
		return fmt.Errorf("operating hours: %w", err)
	}

	a.Scheduler = appointment.NewScheduler(a.Repository, locker, hours, a.log, appointment.Options{
		SearchDays: cfg.SlotSearchDays,
	})
	return nil
}

func (a *App) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Store {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres connection: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Postgres = pool
		a.Repository = appointment.NewPgRepository(pool)
		a.Dependencies = append(a.Dependencies, api.Check{Name: "postgres", Critical: true, Ping: pool.Ping})
		a.log.Info("connected to Postgres")

	case config.StoreSupabase:
		client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey)
		if err != nil {
			return err
		}
		repo := supabase.NewRepository(client)
		a.Repository = repo
		a.Dependencies = append(a.Dependencies, api.Check{Name: "supabase", Critical: true, Ping: repo.Ping})
		a.log.Info("using Supabase store", zap.String("url", cfg.SupabaseURL))

	case config.StoreSQLite:
		sqlDB, err := sqlite.Open(ctx, cfg.SQLiteDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, sqlDB.Close)
		repo := sqlite.NewRepository(sqlDB)
		a.Repository = repo
		a.Dependencies = append(a.Dependencies, api.Check{Name: "sqlite", Critical: true, Ping: repo.Ping})
		a.log.Info("opened SQLite store", zap.String("dsn", cfg.SQLiteDSN))

	case config.StoreMemory:
		a.Repository = appointment.NewMemoryRepository()
		a.log.Warn("using in-memory store, data is lost on restart")

	default:
		return fmt.Errorf("unknown store %q", cfg.Store)
	}
	return nil
}

func (a *App) openLocker(ctx context.Context, cfg config.Config) (lock.Locker, error) {
	switch cfg.Locker {
	case config.LockerRedis:
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.Dependencies = append(a.Dependencies, api.Check{Name: "redis", Ping: redisPing(rdb)})
		a.log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))
		return redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait), nil

	case config.LockerLocal:
		a.log.Info("using in-process locker")
		return lock.NewKeyed(cfg.LockWait), nil
	}
	return nil, fmt.Errorf("unknown locker %q", cfg.Locker)
}

func redisPing(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("error closing dependency", zap.Error(err))
		}
	}
	a.closers = nil
}
