package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "mail:dedup:"
	DefaultTTL    = 24 * time.Hour
)

// Config holds the dedup settings and the Redis connection.
type Config struct {
	Addr         string        `envconfig:"MAIL_DEDUP_REDIS_ADDR" default:"localhost:6379"` // host:port
	Password     string        `envconfig:"MAIL_DEDUP_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAIL_DEDUP_REDIS_DB"`
	MaxRetries   int           `envconfig:"MAIL_DEDUP_REDIS_MAX_RETRIES" default:"3"` // retries per command
	DialTimeout  time.Duration `envconfig:"MAIL_DEDUP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAIL_DEDUP_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"MAIL_DEDUP_REDIS_WRITE_TIMEOUT" default:"3s"`
	PoolSize     int           `envconfig:"MAIL_DEDUP_REDIS_POOL_SIZE" default:"10"`
	Prefix       string        `envconfig:"MAIL_DEDUP_PREFIX" default:"mail:dedup:"` // prepended to every key
	TTL          time.Duration `envconfig:"MAIL_DEDUP_TTL" default:"24h"`            // how long a sent key is remembered
}

// Connect opens a Redis client and pings it.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*redis.Client, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.WithGroup("redis")
	log.Debug("connecting to redis", "addr", cfg.Addr)

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	log.Info("connected to redis", "addr", cfg.Addr)
	return rdb, nil
}

// NewFromConfig connects to Redis and creates an Interceptor. The client is
// returned so the caller can close it on shutdown.
func NewFromConfig(ctx context.Context, cfg Config, log *slog.Logger) (*Interceptor, *redis.Client, error) {
	rdb, err := Connect(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return New(rdb, &Options{Prefix: cfg.Prefix, TTL: cfg.TTL}), rdb, nil
}
