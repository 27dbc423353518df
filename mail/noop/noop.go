package noop

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/mail"
)

// Name is the provider identifier.
const Name = "noop"

var _ mail.Provider = (*Sender)(nil)

// Sender is a no-op mail provider for testing and local runs. It accepts
// every message, reports each recipient as sent and keeps a copy of what it got.
type Sender struct {
	mx     sync.Mutex
	sent   []*mail.Message
	closed bool
}

// NewSender creates a new no-op Sender.
func NewSender() *Sender {
	return &Sender{}
}

func (n *Sender) Name() string {
	return Name
}

func (n *Sender) Capabilities() mail.Capabilities {
	return mail.AllCapabilities
}

// Compose returns the subject line; there is no wire format.
func (n *Sender) Compose(msg *mail.Message) ([]byte, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}
	return []byte(msg.Subject), nil
}

// Send records the message and reports every recipient as sent.
func (n *Sender) Send(_ context.Context, msg *mail.Message) ([]mail.Response, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}

	n.mx.Lock()
	defer n.mx.Unlock()
	if n.closed {
		return nil, &mail.TransportError{Provider: Name, Err: errors.New("sender is closed")}
	}
	n.sent = append(n.sent, msg.Clone(mail.CopyAll))

	return mail.RecipientResponses(msg, mail.StatusSent, ""), nil
}

// SendAsync completes synchronously.
func (n *Sender) SendAsync(ctx context.Context, msg *mail.Message) *mail.Future {
	return mail.Resolved(n.Send(ctx, msg))
}

// Sent returns copies of the messages accepted so far.
func (n *Sender) Sent() []*mail.Message {
	n.mx.Lock()
	defer n.mx.Unlock()
	return append([]*mail.Message(nil), n.sent...)
}

// Close is idempotent.
func (n *Sender) Close() error {
	n.mx.Lock()
	n.closed = true
	n.mx.Unlock()
	return nil
}
