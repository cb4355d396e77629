package infra

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/vault/internal/config"
)

// Backends holds the external stores. Either field is nil when its URL is not
// configured, which config.Validate only allows in development.
type Backends struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects every configured backend. On error anything already opened
// is closed again.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Backends, error) {
	var b Backends
	if cfg.DatabaseURL != "" {
		db, err := OpenPostgres(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return Backends{}, err
		}
		b.DB = db
	} else {
		logger.Warn("no database configured, using in-memory ledger", slog.String("env", cfg.AppEnv))
	}

	if cfg.RedisURL != "" {
		cache, err := OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			b.Close(logger)
			return Backends{}, err
		}
		b.Cache = cache
	} else {
		logger.Warn("no redis configured, idempotency disabled and rate limits are per instance", slog.String("env", cfg.AppEnv))
	}
	return b, nil
}

// Close releases the backends.
func (b Backends) Close(logger *slog.Logger) {
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil {
			logger.Warn("close redis", slog.Any("error", err))
		}
	}
	if b.DB != nil {
		b.DB.Close()
	}
}
