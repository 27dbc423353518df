package postmark

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

	sender, err := NewSender(Config{ServerToken: "token", BaseURL: srv.URL, From: "noreply@shop.example"}, nil)
	require.NoError(t, err)
	return sender
}

func testMessage(t *testing.T) *mail.Message {
	t.Helper()
	msg := mail.NewMessage()
	msg.AddTo(mail.NewAddress("john@example.com", "John"), mail.NewAddress("jane@example.com", ""))
	msg.AddCc(mail.NewAddress("cc@example.com", ""))
	msg.AddBcc(mail.NewAddress("bcc@example.com", ""))
	msg.Subject = "Welcome"
	require.NoError(t, msg.AddView(mail.ContentTypeText, "Hello"))
	return msg
}

func TestNewSender_MissingToken(t *testing.T) {
	_, err := NewSender(Config{}, nil)
	assert.True(t, mail.IsConfig(err))
}

func TestSender_Compose(t *testing.T) {
	sender, err := NewSender(Config{ServerToken: "token", From: "Shop <noreply@shop.example>", MessageStream: "outbound"}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	msg.AddReplyTo(mail.NewAddress("support@shop.example", ""))
	msg.SetHeader("X-Order", "42")
	msg.Attach("logo.png", []byte("PNG"), true)

	raw, err := sender.Compose(msg)
	require.NoError(t, err)

	var e email
	require.NoError(t, json.Unmarshal(raw, &e))
	assert.Equal(t, `"Shop" <noreply@shop.example>`, e.From)
	assert.Equal(t, `"John" <john@example.com>, jane@example.com`, e.To)
	assert.Equal(t, "cc@example.com", e.Cc)
	assert.Equal(t, "bcc@example.com", e.Bcc)
	assert.Equal(t, "support@shop.example", e.ReplyTo)
	assert.Equal(t, "Hello", e.TextBody)
	assert.Empty(t, e.HTMLBody)
	assert.Equal(t, "outbound", e.MessageStream)
	assert.Equal(t, []header{{Name: "X-Order", Value: "42"}}, e.Headers)

	require.Len(t, e.Attachments, 1)
	assert.Equal(t, "logo.png", e.Attachments[0].Name)
	assert.Equal(t, "cid:logo.png", e.Attachments[0].ContentID)
	assert.Equal(t, "UE5H", e.Attachments[0].Content)
}

func TestSender_Send(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, sendPath, r.URL.Path)
		assert.Equal(t, "token", r.Header.Get("X-Postmark-Server-Token"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"Subject":"Welcome"`)

		_, _ = w.Write([]byte(`{"To":"john@example.com","MessageID":"pm-1","ErrorCode":0,"Message":"OK"}`))
	})

	resp, err := sender.Send(context.Background(), testMessage(t))
	require.NoError(t, err)
	require.Len(t, resp, 4)
	for _, r := range resp {
		assert.Equal(t, mail.StatusSent, r.Status)
		assert.Equal(t, "pm-1", r.MessageID)
	}
	assert.Equal(t, "bcc@example.com", resp[3].Address)
}

func TestSender_Send_ErrorCode(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"ErrorCode":300,"Message":"Invalid 'To' address"}`))
	})

	_, err := sender.Send(context.Background(), testMessage(t))
	var perr *mail.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 300, perr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
	assert.Equal(t, "Invalid 'To' address", perr.Message)
}

func TestSender_Send_ErrorCodeWithOKStatus(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ErrorCode":406,"Message":"Inactive recipient"}`))
	})

	_, err := sender.Send(context.Background(), testMessage(t))
	var perr *mail.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 406, perr.Code)
}

func TestSender_Send_NoFrom(t *testing.T) {
	sender, err := NewSender(Config{ServerToken: "token"}, nil)
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), testMessage(t))
	assert.True(t, mail.IsInvalidArgument(err))
}

func TestSender_SendAsync(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"MessageID":"pm-2","ErrorCode":0}`))
	})

	resp, err := sender.SendAsync(context.Background(), testMessage(t)).Result()
	require.NoError(t, err)
	assert.Len(t, resp, 4)
}
