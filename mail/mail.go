package mail

import (
	"context"
	"io"
	netmail "net/mail"
)

// Provider delivers a Message through one backend (SMTP or an HTTP API).
type Provider interface {
	// Name returns the provider identifier used in logs, metrics and errors.
	Name() string

	// Capabilities advertises which optional recipient fields the backend can transmit.
	Capabilities() Capabilities

	// Compose renders msg into the backend wire format without sending it.
	Compose(msg *Message) ([]byte, error)

	// Send transmits msg and blocks until the backend answers.
	Send(ctx context.Context, msg *Message) ([]Response, error)

	// SendAsync transmits msg without blocking the caller.
	SendAsync(ctx context.Context, msg *Message) *Future

	io.Closer
}

// Capabilities describes the optional message fields a backend supports.
type Capabilities struct {
	Cc      bool
	Bcc     bool
	ReplyTo bool
}

// AllCapabilities is advertised by backends without field restrictions.
var AllCapabilities = Capabilities{Cc: true, Bcc: true, ReplyTo: true}

// CheckCapabilities fails with UnsupportedFieldError when msg populates a
// field the provider cannot transmit.
func CheckCapabilities(provider string, caps Capabilities, msg *Message) error {
	switch {
	case len(msg.Cc) > 0 && !caps.Cc:
		return &UnsupportedFieldError{Provider: provider, Field: FieldCc}
	case len(msg.Bcc) > 0 && !caps.Bcc:
		return &UnsupportedFieldError{Provider: provider, Field: FieldBcc}
	case len(msg.ReplyTo) > 0 && !caps.ReplyTo:
		return &UnsupportedFieldError{Provider: provider, Field: FieldReplyTo}
	}
	return nil
}

// Address represents an email address.
type Address struct {
	Name    string // "John Doe"
	Address string // "john@example.com"
}

// NewAddress builds an Address.
func NewAddress(address, name string) Address {
	return Address{Name: name, Address: address}
}

// ParseAddress parses a single RFC 5322 address such as `"John" <john@example.com>`.
func ParseAddress(s string) (Address, error) {
	a, err := netmail.ParseAddress(s)
	if err != nil {
		return Address{}, &InvalidArgumentError{Arg: "address", Reason: err.Error()}
	}
	return Address{Name: a.Name, Address: a.Address}, nil
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return a.Address == ""
}

// String formats the address for a message header, encoding the display name if needed.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return (&netmail.Address{Name: a.Name, Address: a.Address}).String()
}

// Addresses returns the bare addresses of list in order.
func Addresses(list []Address) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Address
	}
	return out
}
