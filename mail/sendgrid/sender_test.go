package sendgrid

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailer/mail"
)

func newTestSender(t *testing.T, handler http.HandlerFunc) *Sender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sender, err := NewSender(Config{APIKey: "SG.key", BaseURL: srv.URL, From: "noreply@shop.example"}, nil)
	require.NoError(t, err)
	return sender
}

func testMessage(t *testing.T) *mail.Message {
	t.Helper()
	msg := mail.NewMessage()
	msg.AddTo(mail.NewAddress("john@example.com", "John"))
	msg.AddCc(mail.NewAddress("cc@example.com", ""))
	msg.AddBcc(mail.NewAddress("bcc@example.com", ""))
	msg.Subject = "Reset your password"
	require.NoError(t, msg.AddView(mail.ContentTypeHTML, "<a>reset</a>"))
	require.NoError(t, msg.AddView(mail.ContentTypeText, "reset"))
	return msg
}

func TestNewSender_MissingAPIKey(t *testing.T) {
	_, err := NewSender(Config{}, nil)
	assert.True(t, mail.IsConfig(err))
}

func TestSender_Compose(t *testing.T) {
	sender, err := NewSender(Config{APIKey: "SG.key", From: "Shop <noreply@shop.example>", TemplateID: "d-123"}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	msg.AddReplyTo(mail.NewAddress("support@shop.example", "Support"))
	msg.Attach("logo.png", []byte("PNG"), true)
	msg.Attach("terms.txt", []byte("terms"), false)

	raw, err := sender.Compose(msg)
	require.NoError(t, err)

	var m mailSend
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, []address{{Email: "john@example.com", Name: "John"}}, p.To)
	assert.Equal(t, []address{{Email: "cc@example.com"}}, p.Cc)
	assert.Equal(t, []address{{Email: "bcc@example.com"}}, p.Bcc)

	assert.Equal(t, address{Email: "noreply@shop.example", Name: "Shop"}, m.From)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "support@shop.example", m.ReplyTo.Email)
	assert.Equal(t, "d-123", m.TemplateID)

	require.Len(t, m.Content, 2)
	assert.Equal(t, content{Type: "text/plain", Value: "reset"}, m.Content[0])
	assert.Equal(t, content{Type: "text/html", Value: "<a>reset</a>"}, m.Content[1])

	require.Len(t, m.Attachments, 2)
	assert.Equal(t, "terms.txt", m.Attachments[0].Filename)
	assert.Equal(t, "attachment", m.Attachments[0].Disposition)
	assert.Empty(t, m.Attachments[0].ContentID)
	assert.Equal(t, "logo.png", m.Attachments[1].Filename)
	assert.Equal(t, "inline", m.Attachments[1].Disposition)
	assert.Equal(t, "logo.png", m.Attachments[1].ContentID)
}

func TestSender_Send(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendPath, r.URL.Path)
		assert.Equal(t, "Bearer SG.key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"subject":"Reset your password"`)

		w.Header().Set("X-Message-Id", "sg-1")
		w.WriteHeader(http.StatusAccepted)
	})

	resp, err := sender.Send(context.Background(), testMessage(t))
	require.NoError(t, err)
	require.Len(t, resp, 3)
	assert.Equal(t, []string{"john@example.com", "cc@example.com", "bcc@example.com"},
		[]string{resp[0].Address, resp[1].Address, resp[2].Address})
	for _, r := range resp {
		assert.Equal(t, mail.StatusQueued, r.Status)
		assert.Equal(t, "sg-1", r.MessageID)
	}
}

func TestSender_Send_ProviderError(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"Does not contain a valid address.","field":"from.email"}]}`))
	})

	_, err := sender.Send(context.Background(), testMessage(t))
	var perr *mail.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "from.email: Does not contain a valid address.", perr.Message)
	assert.Contains(t, string(perr.Body), "errors")
}

func TestSender_SendAsync(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	resp, err := sender.SendAsync(context.Background(), testMessage(t)).Wait(context.Background())
	require.NoError(t, err)
	assert.Len(t, resp, 3)
}

func TestSender_Send_AfterClose(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	})
	require.NoError(t, sender.Close())

	_, err := sender.Send(context.Background(), testMessage(t))
	assert.True(t, mail.IsTransport(err))
}
