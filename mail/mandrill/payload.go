package mandrill

import (
	"encoding/base64"
	"strings"

	"github.com/samber/lo"

	"github.com/pure-golang/mailer/mail"
)

type sendRequest struct {
	Key     string  `json:"key"`
	Message message `json:"message"`
}

type message struct {
	FromEmail   string            `json:"from_email"`
	FromName    string            `json:"from_name,omitempty"`
	To          []recipient       `json:"to"`
	BccAddress  string            `json:"bcc_address,omitempty"`
	Subject     string            `json:"subject"`
	Text        string            `json:"text,omitempty"`
	HTML        string            `json:"html,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Important   bool              `json:"important"`
	Attachments []file            `json:"attachments,omitempty"`
	Images      []file            `json:"images,omitempty"`
}

type recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type"`
}

type file struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// sendResult is one element of the response array.
type sendResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"`
	RejectReason string `json:"reject_reason"`
	ID           string `json:"_id"`
}

// errorResult is returned with a non-2xx status.
type errorResult struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func buildRequest(key string, from mail.Address, msg *mail.Message) (*sendRequest, error) {
	if err := mail.CheckCapabilities(Name, capabilities, msg); err != nil {
		return nil, err
	}
	if len(msg.Bcc) > 1 {
		return nil, &mail.UnsupportedFieldError{Provider: Name, Field: mail.FieldBcc}
	}

	text, html, err := msg.Bodies()
	if err != nil {
		return nil, &mail.InvalidArgumentError{Arg: "views", Reason: err.Error()}
	}

	m := message{
		FromEmail: from.Address,
		FromName:  from.Name,
		To: lo.Map(msg.To, func(a mail.Address, _ int) recipient {
			return recipient{Email: a.Address, Name: a.Name, Type: "to"}
		}),
		Subject:   msg.Subject,
		Text:      text,
		HTML:      html,
		Headers:   msg.Headers(),
		Important: msg.Priority == mail.PriorityHigh,
	}
	if len(msg.Bcc) == 1 {
		m.BccAddress = msg.Bcc[0].Address
	}
	// The API has no reply_to field; it is passed through as a header.
	if len(msg.ReplyTo) > 0 {
		m.Headers["Reply-To"] = strings.Join(lo.Map(msg.ReplyTo, func(a mail.Address, _ int) string {
			return a.String()
		}), ", ")
	}

	for _, att := range msg.Attachments.Wire() {
		f := file{Type: att.MimeType, Name: att.Name, Content: base64.StdEncoding.EncodeToString(att.Data)}
		if att.Inline {
			m.Images = append(m.Images, f)
			continue
		}
		m.Attachments = append(m.Attachments, f)
	}

	return &sendRequest{Key: key, Message: m}, nil
}
