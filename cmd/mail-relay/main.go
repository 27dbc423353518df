// Command mail-relay consumes mail envelopes from the outbox broker and
// delivers them through the configured provider.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/delivery"
	"github.com/pure-golang/mailer/env"
	"github.com/pure-golang/mailer/interceptor/audit"
	"github.com/pure-golang/mailer/interceptor/dedup"
	"github.com/pure-golang/mailer/logger"
	"github.com/pure-golang/mailer/mail/outbox"
	"github.com/pure-golang/mailer/mail/outbox/kafka"
	"github.com/pure-golang/mailer/mail/outbox/rabbitmq"
	"github.com/pure-golang/mailer/metrics"
	"github.com/pure-golang/mailer/provider"
	"github.com/pure-golang/mailer/tracing"
)

type listener interface {
	Listen(ctx context.Context, handler outbox.Handler) error
	io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lcfg logger.Config
	if err := env.InitConfig(&lcfg); err != nil {
		slog.Error("failed to load logger config", "error", err)
		os.Exit(1)
	}
	logger.InitDefault(lcfg)

	var cfg Config
	if err := env.InitConfig(&cfg); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := slog.Default().With("component", "mail-relay")

	if err := run(logger.NewContext(ctx, log), cfg, log); err != nil {
		log.Error("relay stopped", "error", err)
		os.Exit(1)
	}
	log.Info("relay stopped")
}

func run(ctx context.Context, cfg Config, log *slog.Logger) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Warn("failed to close", "error", err)
			}
		}
	}()

	var tcfg tracing.Config
	if err := env.InitConfig(&tcfg); err != nil {
		return err
	}
	tp, err := tracing.InitDefault(tcfg)
	if err != nil {
		return err
	}
	closers = append(closers, tp)

	if cfg.Metrics {
		var mcfg metrics.Config
		if err := env.InitConfig(&mcfg); err != nil {
			return err
		}
		m, err := metrics.InitDefault(mcfg, log)
		if err != nil {
			return err
		}
		closers = append(closers, m)
	}

	p, err := provider.NewByName(cfg.Provider, &provider.Options{Logger: log})
	if err != nil {
		return err
	}
	closers = append(closers, p)

	interceptors := []delivery.Interceptor{delivery.LoggingInterceptor{}}
	if cfg.Dedup {
		var dcfg dedup.Config
		if err := env.InitConfig(&dcfg); err != nil {
			return err
		}
		i, rdb, err := dedup.NewFromConfig(ctx, dcfg, log)
		if err != nil {
			return err
		}
		closers = append(closers, rdb)
		interceptors = append(interceptors, i)
	}
	if cfg.Audit {
		var acfg audit.Config
		if err := env.InitConfig(&acfg); err != nil {
			return err
		}
		pool, err := audit.Connect(ctx, acfg)
		if err != nil {
			return err
		}
		closers = append(closers, closerFunc(func() error { pool.Close(); return nil }))
		if err := audit.CreateTable(ctx, pool, acfg.Table); err != nil {
			return err
		}
		interceptors = append(interceptors, audit.New(pool, &audit.Options{Table: acfg.Table, Provider: p.Name()}))
	}

	coordinator, err := delivery.New(p, delivery.Chain(interceptors...), delivery.WithLogger(log))
	if err != nil {
		return err
	}

	l, err := newListener(cfg, log)
	if err != nil {
		return err
	}
	closers = append(closers, l)

	log.Info("relay started", "broker", cfg.Broker, "provider", p.Name(), "dedup", cfg.Dedup, "audit", cfg.Audit)

	err = l.Listen(ctx, outbox.NewRelay(coordinator).Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newListener(cfg Config, log *slog.Logger) (listener, error) {
	switch cfg.Broker {
	case kafka.Name:
		var kcfg kafka.Config
		if err := env.InitConfig(&kcfg); err != nil {
			return nil, err
		}
		return kafka.NewConsumer(kcfg, kafka.ConsumerConfig{
			MaxTryNum:     cfg.MaxTryNum,
			Backoff:       cfg.Backoff,
			RetryInterval: cfg.RetryInterval,
		}, &kafka.ConsumerOptions{Logger: log}), nil

	case rabbitmq.Name:
		var rcfg rabbitmq.Config
		if err := env.InitConfig(&rcfg); err != nil {
			return nil, err
		}
		dialer := rabbitmq.NewDialer(rcfg.URL, &rabbitmq.DialerOptions{Logger: log, Name: "mail-relay"})
		if err := dialer.Connect(); err != nil {
			return nil, errors.Wrap(err, "failed to connect to rabbitmq")
		}
		consumer := rabbitmq.NewConsumer(dialer, rcfg.RoutingKey, rabbitmq.ConsumerConfig{
			Name:          "mail-relay",
			PrefetchCount: cfg.PrefetchCount,
			MaxTryNum:     cfg.MaxTryNum,
			Backoff:       cfg.Backoff,
			RetryInterval: cfg.RetryInterval,
		}, &rabbitmq.ConsumerOptions{Logger: log})
		return &rabbitListener{Consumer: consumer, dialer: dialer}, nil
	}
	return nil, errors.Errorf("unknown broker %q", cfg.Broker)
}

// rabbitListener closes the dialer after the consumer.
type rabbitListener struct {
	*rabbitmq.Consumer
	dialer *rabbitmq.Dialer
}

func (l *rabbitListener) Close() error {
	err := l.Consumer.Close()
	if derr := l.dialer.Close(); err == nil {
		err = derr
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
