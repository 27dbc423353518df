// Package outbox hands messages to a broker instead of a mail backend. A relay
// process consumes the envelopes and delivers them through a real provider.
package outbox

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/mail"
)

// ContentType of an encoded envelope.
const ContentType = "application/json"

// Envelope is the broker representation of a mail.Message.
type Envelope struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	From        *address          `json:"from,omitempty"`
	To          []address         `json:"to,omitempty"`
	Cc          []address         `json:"cc,omitempty"`
	Bcc         []address         `json:"bcc,omitempty"`
	ReplyTo     []address         `json:"reply_to,omitempty"`
	Subject     string            `json:"subject"`
	Priority    string            `json:"priority,omitempty"`
	Encoding    string            `json:"encoding,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Views       []view            `json:"views,omitempty"`
	Attachments []attachment      `json:"attachments,omitempty"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type view struct {
	ContentType string `json:"content_type"`
	Charset     string `json:"charset"`
	Content     []byte `json:"content"`
}

type attachment struct {
	Name   string `json:"name"`
	Inline bool   `json:"inline,omitempty"`
	Data   []byte `json:"data"`
}

// NewEnvelope captures msg. The id is the Message-Id header when present so
// that duplicate suppression keys survive the broker hop.
func NewEnvelope(msg *mail.Message, now time.Time) *Envelope {
	e := &Envelope{
		CreatedAt: now.UTC(),
		To:        toAddresses(msg.To),
		Cc:        toAddresses(msg.Cc),
		Bcc:       toAddresses(msg.Bcc),
		ReplyTo:   toAddresses(msg.ReplyTo),
		Subject:   msg.Subject,
		Encoding:  msg.Encoding,
	}
	if id, ok := msg.Header("Message-Id"); ok && id != "" {
		e.ID = id
	} else {
		e.ID = uuid.NewString()
	}
	if !msg.From.IsZero() {
		e.From = &address{Email: msg.From.Address, Name: msg.From.Name}
	}
	if msg.Priority != mail.PriorityNormal {
		e.Priority = msg.Priority.String()
	}
	if headers := msg.Headers(); len(headers) > 0 {
		e.Headers = headers
	}
	for _, v := range msg.Views {
		e.Views = append(e.Views, view{ContentType: v.ContentType, Charset: v.Charset, Content: v.Content})
	}
	if msg.Attachments != nil {
		for _, att := range msg.Attachments.Wire() {
			e.Attachments = append(e.Attachments, attachment{Name: att.Name, Inline: att.Inline, Data: att.Data})
		}
	}
	return e
}

// Message rebuilds the mail.Message.
func (e *Envelope) Message() *mail.Message {
	msg := mail.NewMessage()
	if e.From != nil {
		msg.From = mail.NewAddress(e.From.Email, e.From.Name)
	}
	msg.To = fromAddresses(e.To)
	msg.Cc = fromAddresses(e.Cc)
	msg.Bcc = fromAddresses(e.Bcc)
	msg.ReplyTo = fromAddresses(e.ReplyTo)
	msg.Subject = e.Subject
	msg.Encoding = e.Encoding
	msg.Priority = parsePriority(e.Priority)
	for name, value := range e.Headers {
		msg.SetHeader(name, value)
	}
	// Redeliveries of the same envelope must carry the same Message-Id.
	if _, ok := msg.Header("Message-Id"); !ok && e.ID != "" {
		msg.SetHeader("Message-Id", envelopeMessageID(e.ID, msg.From))
	}
	for _, v := range e.Views {
		msg.Views = append(msg.Views, mail.AlternateView{ContentType: v.ContentType, Charset: v.Charset, Content: v.Content})
	}
	for _, att := range e.Attachments {
		msg.Attach(att.Name, att.Data, att.Inline)
	}
	return msg
}

// envelopeMessageID turns a generated envelope ID into an RFC 5322 msg-id,
// taking the domain from the sender when there is one.
func envelopeMessageID(id string, from mail.Address) string {
	domain := "mail-relay"
	if i := strings.LastIndex(from.Address, "@"); i >= 0 && i < len(from.Address)-1 {
		domain = from.Address[i+1:]
	}
	return "<" + id + "@" + domain + ">"
}

// Encode serialises msg into an envelope body.
func Encode(msg *mail.Message, now time.Time) (*Envelope, []byte, error) {
	e := NewEnvelope(msg, now)
	body, err := json.Marshal(e)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to marshal envelope")
	}
	return e, body, nil
}

// Decode parses an envelope body.
func Decode(body []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal envelope")
	}
	if e.ID == "" {
		return nil, errors.New("envelope has no id")
	}
	return &e, nil
}

func toAddresses(list []mail.Address) []address {
	if len(list) == 0 {
		return nil
	}
	out := make([]address, len(list))
	for i, a := range list {
		out[i] = address{Email: a.Address, Name: a.Name}
	}
	return out
}

func fromAddresses(list []address) []mail.Address {
	if len(list) == 0 {
		return nil
	}
	out := make([]mail.Address, len(list))
	for i, a := range list {
		out[i] = mail.NewAddress(a.Email, a.Name)
	}
	return out
}

func parsePriority(s string) mail.Priority {
	switch s {
	case mail.PriorityHigh.String():
		return mail.PriorityHigh
	case mail.PriorityLow.String():
		return mail.PriorityLow
	}
	return mail.PriorityNormal
}
