package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/config"
	"channel-quiz-service/internal/infra/file"
	"channel-quiz-service/internal/infra/memory"
	"channel-quiz-service/internal/infra/postgres"
	redisstore "channel-quiz-service/internal/infra/redis"
	"channel-quiz-service/internal/infra/sqlite"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backends holds the external connections opened for a command.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	banks app.BankStore

	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects to the configured stores. Postgres migrations run
// before the pool is used. When both redis and postgres are configured
// with the redis driver, postgres backs the redis cache.
func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			b.Close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.pool = pool
		b.closers = append(b.closers, pool.Close)
	}

	banks, err := b.bankStore(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.banks = banks
	log.Printf("bank storage: %s", cfg.StorageDriver())
	return b, nil
}

func (b *backends) bankStore(cfg config.Config) (app.BankStore, error) {
	switch cfg.StorageDriver() {
	case "memory":
		return memory.NewBankStore(), nil
	case "sqlite":
		store, err := sqlite.NewBankStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		return store, nil
	case "postgres":
		return postgres.NewBankStore(b.pool), nil
	case "redis":
		var backing app.BankStore
		if b.pool != nil {
			backing = postgres.NewBankStore(b.pool)
		}
		ttl := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
		return redisstore.NewBankStore(b.redis, backing, ttl), nil
	default:
		return file.NewBankStore(cfg.Storage.Dir)
	}
}

// sessionStore picks the redis-claimed store when redis is available.
// Claims are refreshed while a quiz runs and lapse an hour after the owner dies.
func (b *backends) sessionStore() app.SessionRepository {
	if b.redis != nil {
		return redisstore.NewSessionStore(b.redis, time.Hour)
	}
	return memory.NewSessionStore()
}
