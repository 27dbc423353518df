package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail/outbox"
)

const (
	ConsumeRetryInterval     = 5 * time.Second
	InfiniteRetriesIndicator = -1
	KeyCountRetries          = "x-count-retries"
)

// ConsumerConfig tunes a Consumer.
type ConsumerConfig struct {
	Name          string
	PrefetchCount int
	MaxTryNum     int // InfiniteRetriesIndicator retries forever
	Backoff       time.Duration
	RetryInterval time.Duration // pause before resubscribing after a channel failure
}

// Consumer reads envelopes from one queue and hands them to a handler, one
// message at a time. Retryable failures are republished with a retry counter.
type Consumer struct {
	source    ChannelSource
	queueName string
	cfg       ConsumerConfig
	logger    *slog.Logger

	close     chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ConsumerOptions contains options for creating a Consumer.
type ConsumerOptions struct {
	Logger *slog.Logger
}

func NewConsumer(source ChannelSource, queueName string, cfg ConsumerConfig, options *ConsumerOptions) *Consumer {
	if options == nil {
		options = new(ConsumerOptions)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = uuid.NewString()
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = 1
	}
	if cfg.MaxTryNum == 0 {
		cfg.MaxTryNum = 3
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = ConsumeRetryInterval
	}

	return &Consumer{
		source:    source,
		queueName: queueName,
		cfg:       cfg,
		logger:    options.Logger.WithGroup("rabbitmq").With("consumer", cfg.Name, "queue", queueName),
		close:     make(chan struct{}),
	}
}

// Listen blocks until Close or ctx cancellation and resubscribes after channel failures.
func (c *Consumer) Listen(ctx context.Context, handler outbox.Handler) error {
	c.wg.Add(1)
	defer c.wg.Done()

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.close:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.logger.Info("listening...")
	for {
		needRestart, err := c.listen(ctx, handler)
		if !needRestart {
			return parent.Err()
		}
		if err != nil {
			c.logger.With("error", err.Error()).Error("listen error")
		}

		select {
		case <-ctx.Done():
			return parent.Err()
		case <-time.After(c.cfg.RetryInterval):
		}
	}
}

func (c *Consumer) listen(ctx context.Context, handler outbox.Handler) (bool, error) {
	channel, err := c.source.Channel()
	if err != nil {
		return true, errors.Wrap(err, "failed to make channel")
	}
	defer func() {
		// the broker cleans up the channel server side
		_ = channel.Close()
	}()
	notifyClose := channel.NotifyClose(make(chan *amqp.Error, 1))

	if err := channel.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		return true, errors.Wrap(err, "failed to set prefetch count")
	}

	deliveries, err := channel.Consume(c.queueName, c.cfg.Name, false, false, false, false, nil)
	if err != nil {
		return true, errors.Wrapf(err, "failed to start consuming from %q", c.queueName)
	}

	for {
		select {
		case <-ctx.Done():
			if err := channel.Cancel(c.cfg.Name, false); err != nil {
				c.logger.With("error", err.Error()).Warn("failed to cancel consumer")
			}
			return false, nil
		case amqpErr := <-notifyClose:
			if amqpErr != nil {
				return true, errors.Wrap(amqpErr, "channel is closed")
			}
			return true, nil
		case delivery, ok := <-deliveries:
			if !ok {
				return ctx.Err() == nil, nil
			}
			if err := c.handleDelivery(ctx, channel, delivery, handler); err != nil {
				return true, err
			}
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, channel Channel, delivery amqp.Delivery, handler outbox.Handler) error {
	spanCtx := otel.GetTextMapPropagator().Extract(ctx, tableCarrier(delivery.Headers))
	spanCtx, span := tracer.Start(spanCtx, "RabbitMQ.Consume", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(
		attribute.String("id", delivery.MessageId),
		attribute.String("queue", c.queueName),
		attribute.Int("body_size", len(delivery.Body)),
	)

	retry, err := handler(spanCtx, delivery.Body)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return errors.Wrap(delivery.Ack(false), "failed to ack")
	}

	c.logger.With("error", err.Error(), "id", delivery.MessageId).Error("Handle message")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	// Reject non-retryable error immediately
	if !retry {
		return errors.Wrap(delivery.Reject(false), "failed to reject")
	}

	headers := amqp.Table{}
	for k, v := range delivery.Headers {
		headers[k] = v
	}
	countRetries := retryCount(headers) + 1
	if c.cfg.MaxTryNum != InfiniteRetriesIndicator && countRetries >= int32(c.cfg.MaxTryNum) {
		c.logger.Error("message dropped after retries", "id", delivery.MessageId, "attempts", countRetries)
		return errors.Wrap(delivery.Reject(false), "failed to reject")
	}

	headers[KeyCountRetries] = countRetries
	msg := amqp.Publishing{
		MessageId:    delivery.MessageId,
		ContentType:  delivery.ContentType,
		DeliveryMode: delivery.DeliveryMode,
		Body:         delivery.Body,
		Headers:      headers,
	}
	if err := channel.PublishWithContext(ctx, "", c.queueName, false, false, msg); err != nil {
		return errors.Wrap(err, "failed to republish")
	}
	if err := delivery.Ack(false); err != nil {
		return errors.Wrap(err, "failed to ack")
	}

	select {
	case <-ctx.Done():
	case <-time.After(c.cfg.Backoff):
	}
	return nil
}

func retryCount(headers amqp.Table) int32 {
	switch v := headers[KeyCountRetries].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	}
	return 0
}

// Close stops Listen and waits for the in-flight message.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.logger.Info("Closing consumer...")
		close(c.close)
	})
	c.wg.Wait()
	return nil
}
