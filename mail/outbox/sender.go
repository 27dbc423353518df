package outbox

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail"
)

// Header names set on every published record.
const (
	HeaderEnvelopeID  = "X-Mail-Envelope-Id"
	HeaderContentType = "Content-Type"
)

// Record is one broker message.
type Record struct {
	Key     string
	Headers map[string]string
	Body    []byte
}

// Publisher writes records to a broker. Implementations that also implement
// io.Closer are closed with the Sender.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

var _ mail.Provider = (*Sender)(nil)

// Sender implements mail.Provider by publishing envelopes. The broker accepts
// every field, so recipients are reported as queued.
type Sender struct {
	mx        sync.Mutex
	name      string
	publisher Publisher
	now       func() time.Time
	closed    bool
}

// NewSender creates a Sender identified as name (usually the broker kind).
func NewSender(name string, p Publisher) (*Sender, error) {
	if p == nil {
		return nil, &mail.ConfigError{Provider: name, Field: "Publisher"}
	}
	return &Sender{name: name, publisher: p, now: time.Now}, nil
}

func (s *Sender) Name() string {
	return s.name
}

func (s *Sender) Capabilities() mail.Capabilities {
	return mail.AllCapabilities
}

// Compose returns the JSON envelope.
func (s *Sender) Compose(msg *mail.Message) ([]byte, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}
	_, body, err := Encode(msg, s.now())
	return body, err
}

// Send publishes msg and reports every recipient as queued under the envelope id.
func (s *Sender) Send(ctx context.Context, msg *mail.Message) ([]mail.Response, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}

	ctx, span := tracer.Start(ctx, "Outbox.Send", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(attribute.String("outbox.broker", s.name))

	s.mx.Lock()
	closed := s.closed
	s.mx.Unlock()
	if closed {
		span.SetStatus(codes.Error, "sender is closed")
		return nil, &mail.TransportError{Provider: s.name, Err: errors.New("sender is closed")}
	}

	env, body, err := Encode(msg, s.now())
	if err != nil {
		recordError(span, err, "failed to encode envelope")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("outbox.envelope_id", env.ID),
		attribute.Int("outbox.body_size", len(body)),
	)

	rec := Record{
		Key: env.ID,
		Headers: map[string]string{
			HeaderEnvelopeID:  env.ID,
			HeaderContentType: ContentType,
		},
		Body: body,
	}
	if err := s.publisher.Publish(ctx, rec); err != nil {
		recordError(span, err, "failed to publish envelope")
		return nil, &mail.TransportError{Provider: s.name, Err: errors.Wrap(err, "failed to publish envelope")}
	}

	span.SetStatus(codes.Ok, "")
	return mail.RecipientResponses(msg, mail.StatusQueued, env.ID), nil
}

func (s *Sender) SendAsync(ctx context.Context, msg *mail.Message) *mail.Future {
	return mail.Go(func() ([]mail.Response, error) {
		return s.Send(ctx, msg)
	})
}

// Close closes the publisher once.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.publisher.(io.Closer); ok {
		return errors.Wrap(c.Close(), "failed to close publisher")
	}
	return nil
}
