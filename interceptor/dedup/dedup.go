// Package dedup cancels a repeated send of a message with the same key.
package dedup

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/mailer/delivery"
	"github.com/pure-golang/mailer/logger"
	"github.com/pure-golang/mailer/mail"
)

var tracer = otel.Tracer("github.com/pure-golang/mailer/interceptor/dedup")

var _ delivery.Interceptor = (*Interceptor)(nil)

// Store is the subset of *redis.Client used by Interceptor.
type Store interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// KeyFunc returns the dedup key of a message. An empty key disables the check.
type KeyFunc func(msg *mail.Message) string

// MessageIDKey uses the Message-Id header.
func MessageIDKey(msg *mail.Message) string {
	id, _ := msg.Header("Message-Id")
	return id
}

// Interceptor cancels a send when a message with the same key went out within
// the TTL. The key is claimed only after a successful send, so a retry after a
// transport error is not blocked. Concurrent sends of one message are not
// excluded.
type Interceptor struct {
	store  Store
	prefix string
	ttl    time.Duration
	key    KeyFunc
	now    func() time.Time
}

// Options for New.
type Options struct {
	Prefix string
	TTL    time.Duration
	Key    KeyFunc
}

// New creates an Interceptor backed by store.
func New(store Store, options *Options) *Interceptor {
	if options == nil {
		options = new(Options)
	}
	i := &Interceptor{
		store:  store,
		prefix: options.Prefix,
		ttl:    options.TTL,
		key:    options.Key,
		now:    time.Now,
	}
	if i.prefix == "" {
		i.prefix = DefaultPrefix
	}
	if i.ttl == 0 {
		i.ttl = DefaultTTL
	}
	if i.key == nil {
		i.key = MessageIDKey
	}
	return i
}

// OnSending checks the key. Redis errors do not block the send.
func (i *Interceptor) OnSending(ctx context.Context, sc *delivery.SendingContext) {
	key := i.key(sc.Message)
	if key == "" {
		return
	}

	ctx, span := tracer.Start(ctx, "Dedup.Check")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	n, err := i.store.Exists(ctx, i.prefix+key).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.FromContextWithErr(ctx, errors.Wrap(err, "failed to check dedup key")).Warn("dedup check skipped", "key", key)
		return
	}

	if n > 0 {
		sc.Cancel = true
		span.SetAttributes(attribute.Bool("duplicate", true))
		logger.FromContext(ctx).Info("duplicate mail suppressed", "key", key)
	}
	span.SetStatus(codes.Ok, "")
}

// OnSent claims the key for the TTL.
func (i *Interceptor) OnSent(ctx context.Context, msg *mail.Message) {
	key := i.key(msg)
	if key == "" {
		return
	}

	ctx, span := tracer.Start(ctx, "Dedup.Claim")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	value := strconv.FormatInt(i.now().Unix(), 10)
	if err := i.store.SetNX(ctx, i.prefix+key, value, i.ttl).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.FromContextWithErr(ctx, errors.Wrap(err, "failed to store dedup key")).Error("dedup claim failed", "key", key)
		return
	}
	span.SetStatus(codes.Ok, "")
}
