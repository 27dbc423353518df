package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail/outbox"
)

const (
	// DefaultRetryInterval пауза после ошибки чтения
	DefaultRetryInterval = 5 * time.Second
	// DefaultBackoff время ожидания между попытками обработки
	DefaultBackoff = 5 * time.Second
	// DefaultMaxTryNum количество попыток обработки одного сообщения
	DefaultMaxTryNum = 3
)

// Reader подмножество *kafka.Reader, используемое Consumer
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer читает конверты из Kafka и передает их обработчику (обычно outbox.Relay.Handle).
// Смещение фиксируется после успешной обработки или исчерпания попыток.
type Consumer struct {
	reader Reader
	cfg    ConsumerConfig
	logger *slog.Logger

	close     chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ConsumerOptions содержит опции для создания Consumer
type ConsumerOptions struct {
	Logger *slog.Logger
	Reader Reader // если не задан, создается kafka.Reader по Config
}

// NewConsumer создает новый Consumer для Kafka
func NewConsumer(cfg Config, ccfg ConsumerConfig, options *ConsumerOptions) *Consumer {
	if options == nil {
		options = new(ConsumerOptions)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if ccfg.MaxTryNum <= 0 {
		ccfg.MaxTryNum = DefaultMaxTryNum
	}
	if ccfg.Backoff == 0 {
		ccfg.Backoff = DefaultBackoff
	}
	if ccfg.RetryInterval == 0 {
		ccfg.RetryInterval = DefaultRetryInterval
	}
	logger := options.Logger.WithGroup("kafka").With("topic", cfg.Topic, "group_id", cfg.GroupID)

	reader := options.Reader
	if reader == nil {
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			MinBytes:    1,    // читаем сразу, как только есть сообщение
			MaxBytes:    10e6, // 10MB
			MaxWait:     time.Second,
			Logger:      kafka.LoggerFunc(logger.Info),
			ErrorLogger: kafka.LoggerFunc(logger.Error),
		})
	}

	return &Consumer{
		reader: reader,
		cfg:    ccfg,
		logger: logger,
		close:  make(chan struct{}),
	}
}

// Listen блокируется до Close или отмены ctx. Возвращает ctx.Err() при отмене ctx.
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
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return parent.Err()
			}
			c.logger.With("error", err.Error()).Error("failed to fetch message")
			select {
			case <-ctx.Done():
				return parent.Err()
			case <-time.After(c.cfg.RetryInterval):
			}
			continue
		}

		if !c.handle(ctx, msg, handler) {
			// прервано во время повторов, сообщение будет прочитано снова
			return parent.Err()
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return parent.Err()
			}
			c.logger.With("error", err.Error(), "offset", msg.Offset).Error("failed to commit message")
		}
	}
}

// handle обрабатывает одно сообщение с повторами. Возвращает false, если
// обработка прервана и смещение фиксировать нельзя.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, handler outbox.Handler) bool {
	// Извлекаем заголовки один раз
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	logger := c.logger.With("offset", msg.Offset, "partition", msg.Partition, "key", string(msg.Key))

	for attempt := 1; attempt <= c.cfg.MaxTryNum; attempt++ {
		// Извлекаем контекст трейсинга из заголовков
		spanCtx := otel.GetTextMapPropagator().Extract(ctx, headersCarrier(headers))
		spanCtx, span := tracer.Start(spanCtx, "Kafka.Consume", trace.WithSpanKind(trace.SpanKindConsumer))
		span.SetAttributes(
			attribute.String("topic", msg.Topic),
			attribute.Int("partition", msg.Partition),
			attribute.Int64("offset", msg.Offset),
			attribute.Int("body_size", len(msg.Value)),
			attribute.Int("attempt", attempt),
		)

		retry, err := handler(spanCtx, msg.Value)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			span.End()
			return true
		}

		logger.With("error", err.Error(), "attempt", attempt).Error("handle message error")
		recordError(span, err)
		span.End()

		if !retry {
			return true
		}
		if attempt == c.cfg.MaxTryNum {
			logger.Error("message dropped after retries", "attempts", attempt)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.cfg.Backoff):
		}
	}
	return true
}

// Close останавливает Listen и закрывает reader
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.close)
		c.wg.Wait()
		err = c.reader.Close()
		c.logger.Info("consumer closed")
	})
	return err
}
