package kafka

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail"
	"github.com/pure-golang/mailer/mail/outbox"
)

// Name идентификатор провайдера outbox.Sender
const Name = "kafka"

var _ outbox.Publisher = (*Publisher)(nil)

// Writer подмножество *kafka.Writer, используемое Publisher
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher пишет конверты в одну тему Kafka
type Publisher struct {
	mx     sync.Mutex
	writer Writer
	topic  string
	logger *slog.Logger
	closed bool
}

// PublisherOptions содержит опции для создания Publisher
type PublisherOptions struct {
	Logger *slog.Logger
	Writer Writer // если не задан, создается kafka.Writer по Config
}

// NewPublisher создает новый Publisher для Kafka
func NewPublisher(cfg Config, options *PublisherOptions) *Publisher {
	if options == nil {
		options = new(PublisherOptions)
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	logger := options.Logger.WithGroup("kafka")

	writer := options.Writer
	if writer == nil {
		writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{}, // один конверт всегда попадает в одну партицию
			WriteTimeout: cfg.Timeout,
			RequiredAcks: kafka.RequireAll,
			Logger:       kafka.LoggerFunc(logger.Info),
			ErrorLogger:  kafka.LoggerFunc(logger.Error),
		}
	}

	return &Publisher{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger,
	}
}

// NewSender создает outbox.Sender поверх Kafka
func NewSender(cfg Config, options *PublisherOptions) (*outbox.Sender, error) {
	if len(cfg.Brokers) == 0 && (options == nil || options.Writer == nil) {
		return nil, &mail.ConfigError{Provider: Name, Field: "Brokers"}
	}
	return outbox.NewSender(Name, NewPublisher(cfg, options))
}

// Publish публикует конверт (синхронно)
func (p *Publisher) Publish(ctx context.Context, rec outbox.Record) error {
	ctx, span := tracer.Start(ctx, "Kafka.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	p.mx.Lock()
	closed := p.closed
	p.mx.Unlock()
	if closed {
		err := errors.New("publisher is closed")
		recordError(span, err)
		return err
	}

	// Копируем заголовки и добавляем трейсинг
	headers := make(map[string]string, len(rec.Headers))
	maps.Copy(headers, rec.Headers)
	otel.GetTextMapPropagator().Inject(ctx, headersCarrier(headers))

	msg := kafka.Message{
		Key:   []byte(rec.Key),
		Value: rec.Body,
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	span.SetAttributes(
		attribute.String("topic", p.topic),
		attribute.String("key", rec.Key),
		attribute.Int("body_size", len(rec.Body)),
		attribute.Int("headers_count", len(msg.Headers)),
	)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		recordError(span, err)
		return errors.Wrap(err, "failed to publish message to Kafka")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Close закрывает writer и освобождает ресурсы
func (p *Publisher) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, "failed to close writer")
	}
	p.logger.Info("Kafka publisher closed")
	return nil
}
