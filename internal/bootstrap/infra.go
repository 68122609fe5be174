package bootstrap

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/events/redisbus"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	startupAttempts  = 5
	startupBaseDelay = 2 * time.Second
)

// ConnectDatabase applies the service migrations and opens the pool, both
// with startup retries.
func ConnectDatabase(ctx context.Context, cfg db.MigrateConfig, log *logger.Logger) (*pgxpool.Pool, error) {
	if err := WithRetry(ctx, log, "database migrations", startupAttempts, startupBaseDelay, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		return nil, fmt.Errorf("run database migrations: %w", err)
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := WithRetry(ctx, log, "database connection", startupAttempts, startupBaseDelay, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("database connection established")
	return pool, nil
}

// NewRedisClient opens the shared Redis connection used by the stream bus.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		clone := opt.TLSConfig.Clone()
		clone.InsecureSkipVerify = true
		opt.TLSConfig = clone
	}

	client := redis.NewClient(opt)
	if err := WithRetry(ctx, log, "redis connection", startupAttempts, startupBaseDelay, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// NewBus builds the configured transport. client may be nil for the memory
// transport.
func NewBus(cfg config.BusConfig, client redis.UniversalClient, sink events.DeadLetterSink, log *logger.Logger) (events.Bus, error) {
	opts := events.Options{
		Partitions:        cfg.GetBusPartitions(),
		MaxDeliveries:     cfg.GetBusMaxDeliveries(),
		RedeliveryBackoff: cfg.GetBusRedeliveryBackoff(),
		DeadLetters:       sink,
		Log:               log,
	}

	switch cfg.GetBusTransport() {
	case "memory":
		return events.NewInMemoryBus(opts), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis transport needs a redis client")
		}
		return redisbus.New(client, opts, cfg.GetBusReadBlock()), nil
	default:
		return nil, fmt.Errorf("unknown bus transport %q", cfg.GetBusTransport())
	}
}
