package rabbitmq

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail"
	"github.com/pure-golang/mailer/mail/outbox"
)

// Name is the provider identifier of the RabbitMQ outbox sender.
const Name = "rabbitmq"

var _ outbox.Publisher = (*Publisher)(nil)

// Publisher sends envelopes as persistent AMQP messages. The channel is opened
// lazily and reopened after the broker closes it.
type Publisher struct {
	mx      sync.Mutex
	source  ChannelSource
	cfg     Config
	channel Channel
	closed  <-chan *amqp.Error
	shut    bool

	// onClose releases resources the publisher owns (the dialer in NewSender).
	onClose func() error
}

func NewPublisher(source ChannelSource, cfg Config) *Publisher {
	closed := make(chan *amqp.Error, 1)
	close(closed)

	return &Publisher{
		source: source,
		cfg:    cfg,
		closed: closed,
	}
}

// SenderOptions contains options for NewSender.
type SenderOptions struct {
	Logger      *slog.Logger
	RetryPolicy RetryPolicy
}

// NewSender dials the broker and returns an outbox.Sender publishing to it.
// Closing the sender closes the connection.
func NewSender(cfg Config, options *SenderOptions) (*outbox.Sender, error) {
	if cfg.URL == "" {
		return nil, &mail.ConfigError{Provider: Name, Field: "URL"}
	}
	if options == nil {
		options = new(SenderOptions)
	}

	dialer := NewDialer(cfg.URL, &DialerOptions{Logger: options.Logger, RetryPolicy: options.RetryPolicy})
	if err := dialer.Connect(); err != nil {
		return nil, &mail.TransportError{Provider: Name, Err: err}
	}

	p := NewPublisher(dialer, cfg)
	p.onClose = dialer.Close
	return outbox.NewSender(Name, p)
}

// Publish one record. Method is sync.
func (p *Publisher) Publish(ctx context.Context, rec outbox.Record) error {
	ctx, span := tracer.Start(ctx, "RabbitMQ.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	channel, err := p.ensureChannel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	msg := amqp.Publishing{
		ContentType:  rec.Headers[outbox.HeaderContentType],
		MessageId:    rec.Key,
		DeliveryMode: amqp.Persistent,
		Body:         rec.Body,
		Headers:      amqp.Table{},
	}
	for k, v := range rec.Headers {
		msg.Headers[k] = v
	}
	if p.cfg.MessageTTL > 0 {
		msg.Expiration = strconv.FormatInt(p.cfg.MessageTTL.Milliseconds(), 10)
	}

	otel.GetTextMapPropagator().Inject(ctx, tableCarrier(msg.Headers))

	span.SetAttributes(
		attribute.String("id", msg.MessageId),
		attribute.String("exchange", p.cfg.Exchange),
		attribute.String("key", p.cfg.RoutingKey),
		attribute.Int("body_size", len(msg.Body)),
	)

	if err := channel.PublishWithContext(ctx, p.cfg.Exchange, p.cfg.RoutingKey, false, false, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, "failed to publish")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *Publisher) ensureChannel() (Channel, error) {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.shut {
		return nil, errors.New("publisher is closed")
	}

	select {
	case <-p.closed:
		channel, err := p.source.Channel()
		if err != nil {
			return nil, err
		}
		p.channel = channel
		p.closed = channel.NotifyClose(make(chan *amqp.Error, 1))
	default:
	}
	return p.channel, nil
}

// Close closes the channel and whatever the publisher owns.
func (p *Publisher) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()

	if p.shut {
		return nil
	}
	p.shut = true

	var err error
	if p.channel != nil {
		// a channel already closed by the broker reports an error we do not care about
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.onClose != nil {
		err = p.onClose()
	}
	return err
}
