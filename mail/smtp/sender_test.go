package smtp

import (
	"context"
	"encoding/base64"
	"io"
	netmail "net/mail"
	"mime"
	"mime/multipart"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailer/mail"
)

func testMessage(t *testing.T) *mail.Message {
	t.Helper()
	msg := mail.NewMessage()
	msg.From = mail.NewAddress("sender@example.com", "Sender")
	msg.AddTo(mail.NewAddress("recipient@example.com", "Recipient"))
	msg.Subject = "Test Subject"
	return msg
}

func TestNewSender_Config(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost", Port: 2525, TLS: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, "localhost", sender.cfg.Host)
	assert.Equal(t, 2525, sender.cfg.Port)
	assert.True(t, sender.cfg.TLS)
	assert.Equal(t, Name, sender.Name())
	assert.Equal(t, mail.AllCapabilities, sender.Capabilities())
}

func TestNewSender_MissingHost(t *testing.T) {
	_, err := NewSender(Config{}, nil)
	require.Error(t, err)
	assert.True(t, mail.IsConfig(err))
}

func TestNewSender_DefaultPort(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 587, sender.cfg.Port)
}

func TestSender_CloseTwice(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	assert.NoError(t, sender.Close())
	assert.NoError(t, sender.Close())
}

func TestSender_Send_WhenClosed(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost", Port: 2525}, nil)
	require.NoError(t, err)
	require.NoError(t, sender.Close())

	_, err = sender.Send(context.Background(), testMessage(t))
	require.Error(t, err)
	assert.True(t, mail.IsTransport(err))
	assert.Contains(t, err.Error(), "closed")
}

func TestSender_Send_NoFromAddress(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost", Port: 2525}, nil)
	require.NoError(t, err)

	msg := mail.NewMessage()
	msg.AddTo(mail.NewAddress("recipient@example.com", ""))

	_, err = sender.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, mail.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "no from address")
}

func TestSender_Send_NoRecipients(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost", Port: 2525}, nil)
	require.NoError(t, err)

	msg := mail.NewMessage()
	msg.From = mail.NewAddress("sender@example.com", "")

	_, err = sender.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, mail.IsTransport(err))
	assert.Contains(t, err.Error(), "no recipients")
}

func TestSender_Send_NilMessage(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), nil)
	assert.True(t, mail.IsInvalidArgument(err))
}

func TestSender_Send_ContextCancellation(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost", Port: 2525, TLS: true}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sender.Send(ctx, testMessage(t))
	require.Error(t, err)
	assert.True(t, mail.IsTransport(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSender_Compose_Headers(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)
	sender.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	msg := testMessage(t)
	msg.AddCc(mail.NewAddress("cc@example.com", ""))
	msg.AddBcc(mail.NewAddress("bcc@example.com", ""))
	msg.AddReplyTo(mail.NewAddress("reply@example.com", ""))
	msg.SetHeader("X-Custom", "value")
	msg.Priority = mail.PriorityHigh
	require.NoError(t, msg.AddView(mail.ContentTypeText, "Test Body"))

	raw, err := sender.Compose(msg)
	require.NoError(t, err)
	s := string(raw)

	assert.Contains(t, s, `From: "Sender" <sender@example.com>`)
	assert.Contains(t, s, `To: "Recipient" <recipient@example.com>`)
	assert.Contains(t, s, "Cc: cc@example.com")
	assert.Contains(t, s, "Reply-To: reply@example.com")
	assert.Contains(t, s, "Subject: Test Subject")
	assert.Contains(t, s, "Date: Wed, 01 May 2024 10:00:00 +0000")
	assert.Contains(t, s, "X-Custom: value")
	assert.Contains(t, s, "X-Priority: 1 (Highest)")
	assert.Contains(t, s, "MIME-Version: 1.0")
	assert.Contains(t, s, "Message-Id: <")
	assert.NotContains(t, s, "bcc@example.com")

	parsed, err := netmail.ReadMessage(strings.NewReader(s))
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", parsed.Header.Get("Content-Type"))
	body, err := io.ReadAll(parsed.Body)
	require.NoError(t, err)
	assert.Equal(t, "Test Body", string(body))
}

func TestSender_Compose_KeepsCallerMessageID(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	msg.SetHeader("Message-ID", "<fixed@example.com>")

	raw, err := sender.Compose(msg)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "Message-Id:"))
	assert.Contains(t, string(raw), "Message-Id: <fixed@example.com>")
}

func TestSender_Compose_EncodedSubject(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	msg.Subject = "Тестовое сообщение"

	raw, err := sender.Compose(msg)
	require.NoError(t, err)

	parsed, err := netmail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Тестовое сообщение", subject)
}

func TestSender_Compose_AlternativePlainBeforeHTML(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	require.NoError(t, msg.AddView(mail.ContentTypeHTML, "<p>HTML content</p>"))
	require.NoError(t, msg.AddView(mail.ContentTypeText, "Plain text"))

	raw, err := sender.Compose(msg)
	require.NoError(t, err)

	parsed, err := netmail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/alternative", mediaType)

	mr := multipart.NewReader(parsed.Body, params["boundary"])
	first, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", first.Header.Get("Content-Type"))
	firstBody, _ := io.ReadAll(first)
	assert.Equal(t, "Plain text", string(firstBody))

	second, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", second.Header.Get("Content-Type"))
	secondBody, _ := io.ReadAll(second)
	assert.Equal(t, "<p>HTML content</p>", string(secondBody))
}

func TestSender_Compose_Attachments(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	logo := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	msg := testMessage(t)
	require.NoError(t, msg.AddView(mail.ContentTypeHTML, `<img src="cid:logo.png">`))
	msg.Attach("logo.png", logo, true)
	msg.Attach("report.pdf", []byte("%PDF-1.4"), false)

	raw, err := sender.Compose(msg)
	require.NoError(t, err)

	parsed, err := netmail.ReadMessage(strings.NewReader(string(raw)))
	require.NoError(t, err)
	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mediaType)

	mixed := multipart.NewReader(parsed.Body, params["boundary"])

	// multipart/related with the HTML body and the inline logo
	related, err := mixed.NextPart()
	require.NoError(t, err)
	relType, relParams, err := mime.ParseMediaType(related.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/related", relType)

	rr := multipart.NewReader(related, relParams["boundary"])
	htmlPart, err := rr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", htmlPart.Header.Get("Content-Type"))

	inlinePart, err := rr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "<logo.png>", inlinePart.Header.Get("Content-Id"))
	assert.True(t, strings.HasPrefix(inlinePart.Header.Get("Content-Disposition"), "inline"))
	assert.Equal(t, "logo.png", inlinePart.FileName())
	assert.Equal(t, logo, decodeBase64Part(t, inlinePart))

	attachment, err := mixed.NextPart()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(attachment.Header.Get("Content-Disposition"), "attachment"))
	assert.Equal(t, "report.pdf", attachment.FileName())
	assert.Equal(t, `application/pdf; name=report.pdf`, attachment.Header.Get("Content-Type"))
	assert.Equal(t, []byte("%PDF-1.4"), decodeBase64Part(t, attachment))

	_, err = mixed.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSender_Compose_Charset(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	msg.Encoding = "iso-8859-1"
	require.NoError(t, msg.AddView(mail.ContentTypeText, "café"))

	raw, err := sender.Compose(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "charset=iso-8859-1")
	assert.Contains(t, string(raw), "caf=E9")
}

func TestSender_Compose_EmptyViewCharsetDefaultsToUTF8(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	msg.Views = append(msg.Views, mail.AlternateView{ContentType: mail.ContentTypeText, Content: []byte("plain")})

	raw, err := sender.Compose(msg)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "charset=utf-8")
	assert.NotContains(t, string(raw), `charset=""`)
}

func TestSender_Compose_RejectsHeaderLineBreaks(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost"}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	msg.SetHeader("X-Tag", "v\r\nBcc: evil@attacker.example\r\nX-Other: 1")

	raw, err := sender.Compose(msg)
	require.Error(t, err)
	assert.True(t, mail.IsInvalidArgument(err))
	assert.Nil(t, raw)
}

func TestSender_Send_RejectsHeaderLineBreaks(t *testing.T) {
	sender, err := NewSender(Config{Host: "localhost", Port: 2525}, nil)
	require.NoError(t, err)

	msg := testMessage(t)
	msg.SetHeader("X-Tag", "v\nBcc: evil@attacker.example")

	_, err = sender.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, mail.IsInvalidArgument(err))
}

func TestEncodeBase64WithLineBreaks(t *testing.T) {
	out := encodeBase64WithLineBreaks(make([]byte, 100))
	lines := strings.Split(strings.TrimSuffix(string(out), "\r\n"), "\r\n")
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 76)
}

func TestFormatAddressList(t *testing.T) {
	addrs := []mail.Address{
		{Name: "John", Address: "john@example.com"},
		{Address: "jane@example.com"},
	}
	assert.Equal(t, `"John" <john@example.com>, jane@example.com`, formatAddressList(addrs))
}

func decodeBase64Part(t *testing.T, p *multipart.Part) []byte {
	t.Helper()
	raw, err := io.ReadAll(p)
	require.NoError(t, err)
	data, err := base64Decode(string(raw))
	require.NoError(t, err)
	return data
}

func base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.NewReplacer("\r", "", "\n", "").Replace(s))
}
