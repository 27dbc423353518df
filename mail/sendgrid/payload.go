package sendgrid

import (
	"encoding/base64"
	"strings"

	"github.com/samber/lo"

	"github.com/pure-golang/mailer/mail"
)

type mailSend struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	ReplyTo          *address          `json:"reply_to,omitempty"`
	ReplyToList      []address         `json:"reply_to_list,omitempty"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	TemplateID       string            `json:"template_id,omitempty"`
	Attachments      []attachment      `json:"attachments,omitempty"`
}

type personalization struct {
	To  []address `json:"to"`
	Cc  []address `json:"cc,omitempty"`
	Bcc []address `json:"bcc,omitempty"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type attachment struct {
	Content     string `json:"content"`
	Type        string `json:"type"`
	Filename    string `json:"filename"`
	Disposition string `json:"disposition"`
	ContentID   string `json:"content_id,omitempty"`
}

type errorResult struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

func (e errorResult) message() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		if item.Field != "" {
			msgs = append(msgs, item.Field+": "+item.Message)
			continue
		}
		msgs = append(msgs, item.Message)
	}
	return strings.Join(msgs, "; ")
}

func toAddresses(list []mail.Address) []address {
	if len(list) == 0 {
		return nil
	}
	return lo.Map(list, func(a mail.Address, _ int) address {
		return address{Email: a.Address, Name: a.Name}
	})
}

func buildMailSend(from mail.Address, templateID string, msg *mail.Message) (*mailSend, error) {
	if err := mail.CheckCapabilities(Name, mail.AllCapabilities, msg); err != nil {
		return nil, err
	}

	text, html, err := msg.Bodies()
	if err != nil {
		return nil, &mail.InvalidArgumentError{Arg: "views", Reason: err.Error()}
	}

	m := &mailSend{
		Personalizations: []personalization{{
			To:  toAddresses(msg.To),
			Cc:  toAddresses(msg.Cc),
			Bcc: toAddresses(msg.Bcc),
		}},
		From:       address{Email: from.Address, Name: from.Name},
		Subject:    msg.Subject,
		Headers:    msg.Headers(),
		TemplateID: templateID,
	}

	switch len(msg.ReplyTo) {
	case 0:
	case 1:
		m.ReplyTo = &address{Email: msg.ReplyTo[0].Address, Name: msg.ReplyTo[0].Name}
	default:
		m.ReplyToList = toAddresses(msg.ReplyTo)
	}

	// text/plain must precede text/html.
	if text != "" {
		m.Content = append(m.Content, content{Type: mail.ContentTypeText, Value: text})
	}
	if html != "" {
		m.Content = append(m.Content, content{Type: mail.ContentTypeHTML, Value: html})
	}

	for _, att := range msg.Attachments.Wire() {
		a := attachment{
			Content:     base64.StdEncoding.EncodeToString(att.Data),
			Type:        att.MimeType,
			Filename:    att.Name,
			Disposition: "attachment",
		}
		if att.Inline {
			a.Disposition = "inline"
			a.ContentID = att.ContentID
		}
		m.Attachments = append(m.Attachments, a)
	}

	return m, nil
}
