package postmark

import (
	"encoding/base64"
	"strings"

	"github.com/samber/lo"

	"github.com/pure-golang/mailer/mail"
)

type email struct {
	From          string       `json:"From"`
	To            string       `json:"To"`
	Cc            string       `json:"Cc,omitempty"`
	Bcc           string       `json:"Bcc,omitempty"`
	Subject       string       `json:"Subject"`
	HTMLBody      string       `json:"HtmlBody,omitempty"`
	TextBody      string       `json:"TextBody,omitempty"`
	ReplyTo       string       `json:"ReplyTo,omitempty"`
	Headers       []header     `json:"Headers,omitempty"`
	Attachments   []attachment `json:"Attachments,omitempty"`
	MessageStream string       `json:"MessageStream,omitempty"`
}

type header struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

type attachment struct {
	Name        string `json:"Name"`
	Content     string `json:"Content"`
	ContentType string `json:"ContentType"`
	ContentID   string `json:"ContentID,omitempty"`
}

type sendResult struct {
	To        string `json:"To"`
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func joinAddresses(list []mail.Address) string {
	return strings.Join(lo.Map(list, func(a mail.Address, _ int) string {
		return a.String()
	}), ", ")
}

func buildEmail(from mail.Address, stream string, msg *mail.Message) (*email, error) {
	if err := mail.CheckCapabilities(Name, mail.AllCapabilities, msg); err != nil {
		return nil, err
	}

	text, html, err := msg.Bodies()
	if err != nil {
		return nil, &mail.InvalidArgumentError{Arg: "views", Reason: err.Error()}
	}

	e := &email{
		From:          from.String(),
		To:            joinAddresses(msg.To),
		Cc:            joinAddresses(msg.Cc),
		Bcc:           joinAddresses(msg.Bcc),
		Subject:       msg.Subject,
		HTMLBody:      html,
		TextBody:      text,
		ReplyTo:       joinAddresses(msg.ReplyTo),
		MessageStream: stream,
	}

	headers := msg.Headers()
	for _, name := range msg.HeaderNames() {
		e.Headers = append(e.Headers, header{Name: name, Value: headers[name]})
	}
	switch msg.Priority {
	case mail.PriorityHigh:
		e.Headers = append(e.Headers, header{Name: "X-Priority", Value: "1"})
	case mail.PriorityLow:
		e.Headers = append(e.Headers, header{Name: "X-Priority", Value: "5"})
	}

	for _, att := range msg.Attachments.Wire() {
		a := attachment{
			Name:        att.Name,
			Content:     base64.StdEncoding.EncodeToString(att.Data),
			ContentType: att.MimeType,
		}
		if att.Inline {
			a.ContentID = "cid:" + att.ContentID
		}
		e.Attachments = append(e.Attachments, a)
	}

	return e, nil
}
