package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/logger"
)

// Connect opens a pgx pool for the audit table and pings it. Queries are
// logged through the context logger at cfg.TraceLogLevel.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL().String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to pgxpool.ParseConfig")
	}

	if cfg.MaxOpenConns < 1 {
		cfg.MaxOpenConns = 1
	}
	poolCfg.MaxConns = cfg.MaxOpenConns
	poolCfg.MaxConnLifetime = time.Duration(cfg.MaxConnLifeTime) * time.Second
	poolCfg.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleTime) * time.Second
	poolCfg.HealthCheckPeriod = 20 * time.Second
	poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   queryLogger{},
		LogLevel: parseTraceLogLevel(cfg.TraceLogLevel),
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to init database connections pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return pool, nil
}

func parseTraceLogLevel(lvl string) tracelog.LogLevel {
	logLevel, err := tracelog.LogLevelFromString(lvl)
	if err != nil {
		logLevel = tracelog.LogLevelNone
	}
	return logLevel
}

// queryLogger adapts tracelog to the context slog logger.
type queryLogger struct{}

func (queryLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	// duration is only known once the query returns
	if d, ok := data["time"].(time.Duration); ok {
		data["duration_ms"] = d.Milliseconds()
		delete(data, "time")
	}

	attrs := make([]slog.Attr, 0, len(data))
	for k, v := range data {
		attrs = append(attrs, slog.Any(k, v))
	}
	logger.FromContext(ctx).WithGroup("postgres").LogAttrs(ctx, slogLevel(level), msg, attrs...)
}

func slogLevel(level tracelog.LogLevel) slog.Level {
	switch level {
	case tracelog.LogLevelTrace:
		return slog.LevelDebug - 1
	case tracelog.LogLevelDebug:
		return slog.LevelDebug
	case tracelog.LogLevelInfo:
		return slog.LevelInfo
	case tracelog.LogLevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
