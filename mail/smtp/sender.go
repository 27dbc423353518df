package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail"
)

// Name is the provider identifier.
const Name = "smtp"

var _ mail.Provider = (*Sender)(nil)

var (
	errClosed       = errors.New("sender is closed")
	errNoRecipients = errors.New("no recipients specified")
)

// Sender implements mail.Provider using net/smtp. Each Send opens its own
// connection; Send is safe to call from multiple goroutines.
type Sender struct {
	mx     sync.Mutex
	cfg    Config
	dialer *net.Dialer
	now    func() time.Time
	closed bool
}

// SenderOptions contains options for creating a Sender.
type SenderOptions struct {
	// DialTimeout bounds connection establishment, 30s by default.
	DialTimeout time.Duration
}

// NewSender creates a new SMTP Sender.
func NewSender(cfg Config, options *SenderOptions) (*Sender, error) {
	if cfg.Host == "" {
		return nil, &mail.ConfigError{Provider: Name, Field: "Host"}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	timeout := 30 * time.Second
	if options != nil && options.DialTimeout > 0 {
		timeout = options.DialTimeout
	}

	return &Sender{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: timeout},
		now:    time.Now,
	}, nil
}

// Name implements mail.Provider.
func (s *Sender) Name() string {
	return Name
}

// Capabilities implements mail.Provider. SMTP transmits every field.
func (s *Sender) Capabilities() mail.Capabilities {
	return mail.AllCapabilities
}

// Compose renders the MIME message that Send would transmit.
func (s *Sender) Compose(msg *mail.Message) ([]byte, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}
	from, err := s.sender(msg)
	if err != nil {
		return nil, err
	}
	return BuildMessage(msg, from, s.now())
}

// SendAsync runs Send in a new goroutine.
func (s *Sender) SendAsync(ctx context.Context, msg *mail.Message) *mail.Future {
	return mail.Go(func() ([]mail.Response, error) {
		return s.Send(ctx, msg)
	})
}

// Send hands the message to the SMTP server. SMTP reports no per-recipient
// result, so the response list is empty on success.
func (s *Sender) Send(ctx context.Context, msg *mail.Message) ([]mail.Response, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}

	ctx, span := tracer.Start(ctx, "SMTP.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.from", msg.From.Address),
		attribute.String("smtp.subject", msg.Subject),
		attribute.Int("smtp.to_count", len(msg.To)),
		attribute.Int("smtp.cc_count", len(msg.Cc)),
		attribute.Int("smtp.bcc_count", len(msg.Bcc)),
		attribute.Int("smtp.attachments_count", msg.Attachments.Len()),
		attribute.String("smtp.host", s.cfg.Host),
		attribute.Int("smtp.port", s.cfg.Port),
		attribute.Bool("smtp.tls", s.cfg.TLS),
	)

	s.mx.Lock()
	closed := s.closed
	s.mx.Unlock()
	if closed {
		span.SetStatus(codes.Error, "sender is closed")
		return nil, &mail.TransportError{Provider: Name, Err: errClosed}
	}

	raw, err := s.Compose(msg)
	if err != nil {
		recordError(span, err, "failed to compose message")
		return nil, err
	}
	from, _ := s.sender(msg)

	recipients := mail.Addresses(msg.Recipients())
	if len(recipients) == 0 {
		span.SetStatus(codes.Error, "no recipients")
		return nil, &mail.TransportError{Provider: Name, Err: errNoRecipients}
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if err := s.deliver(ctx, addr, auth, from.Address, recipients, raw); err != nil {
		recordError(span, err, err.Error())
		return nil, &mail.TransportError{Provider: Name, Err: errors.Wrap(err, "failed to send email")}
	}

	span.SetStatus(codes.Ok, "")
	return nil, nil
}

// sender resolves the envelope sender: the message From or the configured default.
func (s *Sender) sender(msg *mail.Message) (mail.Address, error) {
	return msg.ResolveFrom(s.cfg.From)
}

// deliver runs one SMTP transaction, upgrading with STARTTLS when enabled and offered.
func (s *Sender) deliver(ctx context.Context, addr string, auth smtp.Auth, from string, recipients []string, msg []byte) error {
	ctx, span := tracer.Start(ctx, "SMTP.Deliver")
	defer span.End()

	span.SetAttributes(
		attribute.String("smtp.address", addr),
		attribute.String("smtp.from", from),
		attribute.Int("smtp.recipients_count", len(recipients)),
		attribute.Bool("smtp.auth", auth != nil),
	)

	// Check for context cancellation
	select {
	case <-ctx.Done():
		span.SetStatus(codes.Error, "context canceled")
		return ctx.Err()
	default:
	}

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		recordError(span, err, "failed to connect")
		return errors.Wrap(err, "failed to connect to SMTP server")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		recordError(span, err, "failed to greet")
		return errors.Wrap(err, "failed to create SMTP client")
	}
	defer func() {
		// The message is already accepted or the transaction failed; a close error changes nothing.
		_ = client.Close()
	}()

	if s.cfg.TLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			span.SetAttributes(attribute.Bool("smtp.starttls", true))

			tlsConfig := &tls.Config{
				ServerName:         s.cfg.Host,
				InsecureSkipVerify: s.cfg.Insecure, // #nosec G402 -- controlled by config, user's responsibility
			}
			if err := client.StartTLS(tlsConfig); err != nil {
				recordError(span, err, "failed to start TLS")
				return errors.Wrap(err, "failed to start TLS")
			}
		} else {
			span.SetAttributes(attribute.Bool("smtp.starttls", false))
		}
	}

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			recordError(span, err, "failed to authenticate")
			return errors.Wrap(err, "failed to authenticate")
		}
	}

	if err := client.Mail(from); err != nil {
		recordError(span, err, "failed to set sender")
		return errors.Wrap(err, "failed to set sender")
	}

	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			recordError(span, err, "failed to set recipient")
			return errors.Wrapf(err, "failed to set recipient: %s", rcpt)
		}
	}

	writer, err := client.Data()
	if err != nil {
		recordError(span, err, "failed to get data writer")
		return errors.Wrap(err, "failed to get data writer")
	}
	if _, err := writer.Write(msg); err != nil {
		_ = writer.Close()
		recordError(span, err, "failed to write message")
		return errors.Wrap(err, "failed to write message")
	}
	if err := writer.Close(); err != nil {
		recordError(span, err, "message rejected")
		return errors.Wrap(err, "failed to finish data")
	}

	if err := client.Quit(); err != nil {
		// Accepted after DATA; QUIT failures do not affect delivery.
		span.AddEvent("quit failed")
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Close closes the sender. Subsequent sends fail.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	s.closed = true
	return nil
}
