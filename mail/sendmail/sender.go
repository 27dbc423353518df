// Package sendmail delivers messages by piping the composed MIME message into
// a local sendmail-compatible binary.
package sendmail

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail"
	"github.com/pure-golang/mailer/mail/smtp"
)

// Name is the provider identifier.
const Name = "sendmail"

var _ mail.Provider = (*Sender)(nil)

var errNoRecipients = errors.New("no recipients specified")

// Sender implements mail.Provider on top of a sendmail binary. The message is
// written to stdin and recipients are passed explicitly, so Bcc never appears
// in the headers.
type Sender struct {
	cfg  Config
	exec *executor
	now  func() time.Time
}

// NewSender checks that the configured binary exists.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.Path == "" {
		return nil, &mail.ConfigError{Provider: Name, Field: "Path"}
	}
	e := newExecutor(cfg.Path)
	if err := e.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start sendmail")
	}

	return &Sender{cfg: cfg, exec: e, now: time.Now}, nil
}

func (s *Sender) Name() string {
	return Name
}

func (s *Sender) Capabilities() mail.Capabilities {
	return mail.AllCapabilities
}

// Compose renders the same RFC 5322 message the SMTP adapter transmits.
func (s *Sender) Compose(msg *mail.Message) ([]byte, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}
	from, err := msg.ResolveFrom(s.cfg.From)
	if err != nil {
		return nil, err
	}
	return smtp.BuildMessage(msg, from, s.now())
}

func (s *Sender) SendAsync(ctx context.Context, msg *mail.Message) *mail.Future {
	return mail.Go(func() ([]mail.Response, error) {
		return s.Send(ctx, msg)
	})
}

// Send runs `sendmail -i -f <from> -- <recipients...>`. sendmail reports no
// per-recipient result, so the response list is empty on success.
func (s *Sender) Send(ctx context.Context, msg *mail.Message) ([]mail.Response, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}

	ctx, span := tracer.Start(ctx, "Sendmail.Send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("sendmail.path", s.cfg.Path),
		attribute.Int("sendmail.attachments_count", msg.Attachments.Len()),
	)

	raw, err := s.Compose(msg)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	from, _ := msg.ResolveFrom(s.cfg.From)

	recipients := mail.Addresses(msg.Recipients())
	if len(recipients) == 0 {
		span.SetStatus(codes.Error, "no recipients")
		return nil, &mail.TransportError{Provider: Name, Err: errNoRecipients}
	}
	span.SetAttributes(attribute.Int("sendmail.recipients_count", len(recipients)))

	args := append([]string{"-i", "-f", from.Address, "--"}, recipients...)
	if _, err := s.exec.Execute(ctx, raw, args...); err != nil {
		recordError(span, err)
		return nil, &mail.TransportError{Provider: Name, Err: errors.Wrap(err, "failed to send email")}
	}

	span.SetStatus(codes.Ok, "")
	return nil, nil
}

// Close closes the sender. Subsequent sends fail.
func (s *Sender) Close() error {
	return s.exec.Close()
}
