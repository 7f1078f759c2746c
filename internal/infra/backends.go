package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fundme/fundme/internal/config"
)

const connectTimeout = 10 * time.Second

// Backends holds the optional shared stores. Either field may be nil in
// development.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Connect opens Postgres and Redis when their URLs are set. Outside
// development both are required.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	b := &Backends{}
	if cfg.DatabaseURL != "" {
		db, err := NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		b.DB = db
	} else if !cfg.IsDevelopment() {
		return nil, fmt.Errorf("database is required when APP_ENV=%s", cfg.AppEnv)
	} else {
		logger.Warn("DATABASE_URL not set, custody journal is in memory")
	}

	if cfg.RedisURL != "" {
		cache, err := NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			b.Close(logger)
			return nil, err
		}
		b.Cache = cache
	} else if !cfg.IsDevelopment() {
		b.Close(logger)
		return nil, fmt.Errorf("redis is required when APP_ENV=%s", cfg.AppEnv)
	} else {
		logger.Warn("REDIS_URL not set, idempotency and rate limits are disabled")
	}
	return b, nil
}

// Close releases whatever was opened.
func (b *Backends) Close(logger *slog.Logger) {
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			logger.Warn("close redis", slog.Any("error", err))
		}
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
