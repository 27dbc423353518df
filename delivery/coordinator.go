// Package delivery runs the interception protocol around a mail.Provider:
// pre-send hook, cancellation check, transport, post-send hook.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pure-golang/mailer/logger"
	"github.com/pure-golang/mailer/mail"
)

// Coordinator binds one provider to one interceptor. It holds no per-message
// state and is safe for concurrent use if the interceptor is.
type Coordinator struct {
	provider    mail.Provider
	interceptor Interceptor
	logger      *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger used when the context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a Coordinator. Both p and i are required.
func New(p mail.Provider, i Interceptor, opts ...Option) (*Coordinator, error) {
	if p == nil {
		return nil, &mail.InvalidArgumentError{Arg: "provider"}
	}
	if i == nil {
		return nil, &mail.InvalidArgumentError{Arg: "interceptor"}
	}

	c := &Coordinator{provider: p, interceptor: i}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Provider returns the bound provider.
func (c *Coordinator) Provider() mail.Provider {
	return c.provider
}

// Deliver sends msg and blocks until the provider answers. A cancelled
// delivery returns (nil, nil).
func (c *Coordinator) Deliver(ctx context.Context, msg *mail.Message) ([]mail.Response, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}

	started := time.Now()
	ctx, span := tracer.Start(ctx, "Mail.Deliver")
	defer span.End()
	span.SetAttributes(attribute.String("mail.provider", c.provider.Name()))

	proceed, err := c.beforeSend(ctx, msg, started)
	if err != nil {
		recordError(span, err, "invalid message")
		return nil, err
	}
	if !proceed {
		return nil, nil
	}

	responses, err := c.provider.Send(ctx, msg)
	c.afterSend(ctx, msg, responses, err, started)
	if err != nil {
		recordError(span, err, "send failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return responses, nil
}

// DeliverAsync starts the delivery and returns at once. The pre-send hook and
// the cancellation check run before this method returns. The returned future
// resolves only after the post-send hook has completed.
func (c *Coordinator) DeliverAsync(ctx context.Context, msg *mail.Message) *mail.Future {
	if msg == nil {
		return mail.Resolved(nil, &mail.InvalidArgumentError{Arg: "message"})
	}

	started := time.Now()
	ctx, span := tracer.Start(ctx, "Mail.Deliver")
	span.SetAttributes(
		attribute.String("mail.provider", c.provider.Name()),
		attribute.Bool("mail.async", true),
	)

	proceed, err := c.beforeSend(ctx, msg, started)
	if err != nil {
		recordError(span, err, "invalid message")
		span.End()
		return mail.Resolved(nil, err)
	}
	if !proceed {
		span.End()
		return mail.Resolved(nil, nil)
	}

	pending := c.provider.SendAsync(ctx, msg)
	result := mail.NewFuture()
	go func() {
		responses, err := pending.Result()
		c.afterSend(ctx, msg, responses, err, started)
		if err != nil {
			recordError(span, err, "send failed")
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
		result.Resolve(responses, err)
	}()
	return result
}

// beforeSend runs the pre-send hook and validates the message as the hook left it.
func (c *Coordinator) beforeSend(ctx context.Context, msg *mail.Message, started time.Time) (bool, error) {
	sc := &SendingContext{Message: msg}
	c.interceptor.OnSending(ctx, sc)

	if sc.Cancel {
		c.log(ctx).Debug("mail delivery cancelled", "provider", c.provider.Name(), "subject", msg.Subject)
		recordDelivery(c.provider.Name(), outcomeCancelled, started)
		return false, nil
	}

	if err := msg.Validate(); err != nil {
		recordDelivery(c.provider.Name(), outcomeInvalid, started)
		return false, err
	}
	return true, nil
}

// afterSend fires the post-send hook on success and records the outcome.
func (c *Coordinator) afterSend(ctx context.Context, msg *mail.Message, responses []mail.Response, err error, started time.Time) {
	if err != nil {
		logger.FromContextWithErr(c.ctxWithLogger(ctx), err).Error("mail delivery failed", "provider", c.provider.Name())
		recordDelivery(c.provider.Name(), outcomeFailed, started)
		return
	}

	c.interceptor.OnSent(ctx, msg)
	recordDelivery(c.provider.Name(), outcomeSent, started)
	c.log(ctx).Debug("mail delivered", "provider", c.provider.Name(), "responses", len(responses))
}

func (c *Coordinator) log(ctx context.Context) *slog.Logger {
	return logger.FromContext(c.ctxWithLogger(ctx))
}

func (c *Coordinator) ctxWithLogger(ctx context.Context) context.Context {
	if c.logger == nil || logger.FromContext(ctx) != slog.Default() {
		return ctx
	}
	return logger.NewContext(ctx, c.logger)
}
