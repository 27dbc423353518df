package mail

import (
	"maps"
	netmail "net/mail"
	"net/textproto"
	"slices"
	"strconv"
	"strings"
)

// Priority of a message.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityLow
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// DefaultEncoding is used for bodies when Message.Encoding is empty.
const DefaultEncoding = "utf-8"

// Message is the provider-neutral email model. It is populated by the caller
// (and by a view renderer for the bodies) and handed to exactly one delivery.
// A Message is not safe for concurrent mutation.
type Message struct {
	// Envelope
	From    Address // optional, adapters may fall back to a configured sender
	To      []Address
	Cc      []Address
	Bcc     []Address
	ReplyTo []Address
	Subject string

	Priority Priority

	// Encoding is the charset used to encode text and HTML views ("utf-8" if empty).
	Encoding string

	// Views holds the rendered bodies in insertion order.
	Views []AlternateView

	Attachments *Attachments

	headers map[string]string
}

// NewMessage creates an empty message.
func NewMessage() *Message {
	return &Message{
		Attachments: NewAttachments(),
		headers:     make(map[string]string),
	}
}

// Charset returns the effective body encoding.
func (m *Message) Charset() string {
	if m.Encoding == "" {
		return DefaultEncoding
	}
	return m.Encoding
}

// SetHeader stores a custom header. The last write for a name wins.
func (m *Message) SetHeader(name, value string) {
	if m.headers == nil {
		m.headers = make(map[string]string)
	}
	m.headers[textproto.CanonicalMIMEHeaderKey(name)] = value
}

// Header returns a custom header value.
func (m *Message) Header(name string) (string, bool) {
	v, ok := m.headers[textproto.CanonicalMIMEHeaderKey(name)]
	return v, ok
}

// DelHeader removes a custom header.
func (m *Message) DelHeader(name string) {
	delete(m.headers, textproto.CanonicalMIMEHeaderKey(name))
}

// Headers returns a copy of the custom headers.
func (m *Message) Headers() map[string]string {
	out := make(map[string]string, len(m.headers))
	maps.Copy(out, m.headers)
	return out
}

// HeaderNames returns the custom header names sorted, for deterministic serialisation.
func (m *Message) HeaderNames() []string {
	return slices.Sorted(maps.Keys(m.headers))
}

// Recipients returns To, Cc and Bcc in that order.
func (m *Message) Recipients() []Address {
	out := make([]Address, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	return append(out, m.Bcc...)
}

// AddTo appends To recipients.
func (m *Message) AddTo(addrs ...Address) *Message {
	m.To = append(m.To, addrs...)
	return m
}

// AddCc appends Cc recipients.
func (m *Message) AddCc(addrs ...Address) *Message {
	m.Cc = append(m.Cc, addrs...)
	return m
}

// AddBcc appends Bcc recipients.
func (m *Message) AddBcc(addrs ...Address) *Message {
	m.Bcc = append(m.Bcc, addrs...)
	return m
}

// AddReplyTo appends Reply-To addresses.
func (m *Message) AddReplyTo(addrs ...Address) *Message {
	m.ReplyTo = append(m.ReplyTo, addrs...)
	return m
}

// Attach stores an attachment, creating the store if needed.
func (m *Message) Attach(name string, data []byte, inline bool) *Message {
	if m.Attachments == nil {
		m.Attachments = NewAttachments()
	}
	m.Attachments.Add(name, data, inline)
	return m
}

// ResolveFrom returns the message sender, falling back to defaultFrom (an
// RFC 5322 address string) when From is empty.
func (m *Message) ResolveFrom(defaultFrom string) (Address, error) {
	if !m.From.IsZero() {
		return m.From, nil
	}
	if defaultFrom == "" {
		return Address{}, &InvalidArgumentError{Arg: "from", Reason: "no from address specified"}
	}
	return ParseAddress(defaultFrom)
}

// Validate checks the invariants that must hold before transport. An empty
// From is accepted since adapters may supply a configured default sender.
func (m *Message) Validate() error {
	if !m.From.IsZero() {
		if _, err := netmail.ParseAddress(m.From.Address); err != nil {
			return &InvalidArgumentError{Arg: "from", Reason: err.Error()}
		}
	}
	for _, v := range m.Views {
		if v.ContentType != ContentTypeText && v.ContentType != ContentTypeHTML {
			return &InvalidArgumentError{Arg: "views", Reason: "unsupported content type " + v.ContentType}
		}
	}
	return m.ValidateHeaders()
}

// ValidateHeaders rejects custom headers whose name or value contains a line
// break, since either would end the header line on the wire.
func (m *Message) ValidateHeaders() error {
	for _, name := range m.HeaderNames() {
		if strings.ContainsAny(name, "\r\n") {
			return &InvalidArgumentError{Arg: "header", Reason: "line break in name " + strconv.Quote(name)}
		}
		if strings.ContainsAny(m.headers[name], "\r\n") {
			return &InvalidArgumentError{Arg: "header", Reason: "line break in value of " + name}
		}
	}
	return nil
}

// CopyField selects the fields Clone copies.
type CopyField uint16

const (
	CopyFrom CopyField = 1 << iota
	CopyTo
	CopyCc
	CopyBcc
	CopyReplyTo
	CopySubject
	CopyPriority
	CopyHeaders
	CopyEncoding
	CopyViews
	CopyAttachments

	CopyRecipients = CopyTo | CopyCc | CopyBcc
	CopyAll        = CopyFrom | CopyRecipients | CopyReplyTo | CopySubject | CopyPriority |
		CopyHeaders | CopyEncoding | CopyViews | CopyAttachments
)

// Clone returns a deep copy containing only the selected fields. Use
// CopyAll &^ CopyRecipients to reuse a rendered message for other recipients.
func (m *Message) Clone(fields CopyField) *Message {
	c := NewMessage()
	if fields&CopyFrom != 0 {
		c.From = m.From
	}
	if fields&CopyTo != 0 {
		c.To = slices.Clone(m.To)
	}
	if fields&CopyCc != 0 {
		c.Cc = slices.Clone(m.Cc)
	}
	if fields&CopyBcc != 0 {
		c.Bcc = slices.Clone(m.Bcc)
	}
	if fields&CopyReplyTo != 0 {
		c.ReplyTo = slices.Clone(m.ReplyTo)
	}
	if fields&CopySubject != 0 {
		c.Subject = m.Subject
	}
	if fields&CopyPriority != 0 {
		c.Priority = m.Priority
	}
	if fields&CopyHeaders != 0 && m.headers != nil {
		c.headers = maps.Clone(m.headers)
	}
	if fields&CopyEncoding != 0 {
		c.Encoding = m.Encoding
	}
	if fields&CopyViews != 0 {
		c.Views = make([]AlternateView, len(m.Views))
		for i, v := range m.Views {
			c.Views[i] = AlternateView{ContentType: v.ContentType, Charset: v.Charset, Content: slices.Clone(v.Content)}
		}
	}
	if fields&CopyAttachments != 0 && m.Attachments != nil {
		c.Attachments = m.Attachments.Clone()
	}
	return c
}
