package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-watchlist/pkg/config"
)

const connectRetries = 5

// OpenPostgres opens the pool and pings it with exponential backoff.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(60 * time.Second)

	ping := func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pctx); err != nil {
			logger.Warn("Postgres ping failed", zap.String("host", cfg.Host), zap.Error(err))
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectRetries), ctx)
	if err := backoff.Retry(ping, bo); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Postgres connected", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return db, nil
}

// OpenRedis builds a client and pings it with exponential backoff.
func OpenRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ping := func() error {
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis ping failed", zap.String("addr", cfg.Addr), zap.Error(err))
			return err
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), connectRetries), ctx)
	if err := backoff.Retry(ping, bo); err != nil {
		rdb.Close()
		return nil, err
	}

	logger.Info("Redis connected", zap.String("addr", cfg.Addr))
	return rdb, nil
}
