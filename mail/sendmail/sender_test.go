package sendmail

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailer/mail"
)

// fakeSendmail writes a script that records its arguments and stdin next to itself.
func fakeSendmail(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sendmail")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

const recordingScript = `printf '%s\n' "$@" > "$0.args"
cat > "$0.stdin"`

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func testMessage() *mail.Message {
	msg := mail.NewMessage()
	msg.From = mail.NewAddress("sender@example.com", "Sender")
	msg.AddTo(mail.NewAddress("to@example.com", ""))
	msg.Subject = "Hello"
	return msg
}

func TestNewSender_MissingPath(t *testing.T) {
	_, err := NewSender(Config{})
	require.Error(t, err)
	assert.True(t, mail.IsConfig(err))
}

func TestNewSender_CommandNotFound(t *testing.T) {
	_, err := NewSender(Config{Path: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSender_Send(t *testing.T) {
	path := fakeSendmail(t, recordingScript)
	sender, err := NewSender(Config{Path: path})
	require.NoError(t, err)
	defer sender.Close()

	msg := testMessage()
	msg.AddCc(mail.NewAddress("cc@example.com", ""))
	msg.AddBcc(mail.NewAddress("bcc@example.com", ""))
	require.NoError(t, msg.AddView(mail.ContentTypeText, "Body"))

	resp, err := sender.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, resp)

	args := strings.Split(strings.TrimSpace(readFile(t, path+".args")), "\n")
	assert.Equal(t, []string{"-i", "-f", "sender@example.com", "--", "to@example.com", "cc@example.com", "bcc@example.com"}, args)

	stdin := readFile(t, path+".stdin")
	assert.Contains(t, stdin, "Subject: Hello")
	assert.Contains(t, stdin, "Cc: cc@example.com")
	assert.NotContains(t, stdin, "bcc@example.com")
	assert.Contains(t, stdin, "Body")
}

func TestSender_Send_DefaultFrom(t *testing.T) {
	path := fakeSendmail(t, recordingScript)
	sender, err := NewSender(Config{Path: path, From: "Robot <robot@example.com>"})
	require.NoError(t, err)

	msg := mail.NewMessage()
	msg.AddTo(mail.NewAddress("to@example.com", ""))

	_, err = sender.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Contains(t, readFile(t, path+".args"), "robot@example.com")
	assert.Contains(t, readFile(t, path+".stdin"), `From: "Robot" <robot@example.com>`)
}

func TestSender_Send_CommandFails(t *testing.T) {
	path := fakeSendmail(t, `echo "user unknown" >&2
exit 67`)
	sender, err := NewSender(Config{Path: path})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, mail.IsTransport(err))
	assert.Contains(t, err.Error(), "user unknown")
}

func TestSender_Send_Validation(t *testing.T) {
	sender, err := NewSender(Config{Path: fakeSendmail(t, "exit 0")})
	require.NoError(t, err)

	_, err = sender.Send(context.Background(), nil)
	assert.True(t, mail.IsInvalidArgument(err))

	noFrom := mail.NewMessage()
	noFrom.AddTo(mail.NewAddress("to@example.com", ""))
	_, err = sender.Send(context.Background(), noFrom)
	assert.True(t, mail.IsInvalidArgument(err))

	noRcpt := mail.NewMessage()
	noRcpt.From = mail.NewAddress("sender@example.com", "")
	_, err = sender.Send(context.Background(), noRcpt)
	assert.True(t, mail.IsTransport(err))
}

func TestSender_Closed(t *testing.T) {
	sender, err := NewSender(Config{Path: fakeSendmail(t, "exit 0")})
	require.NoError(t, err)
	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())

	_, err = sender.SendAsync(context.Background(), testMessage()).Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errExecutorClosed)
}

func TestSender_Provider(t *testing.T) {
	sender, err := NewSender(Config{Path: fakeSendmail(t, "exit 0")})
	require.NoError(t, err)

	assert.Equal(t, Name, sender.Name())
	assert.Equal(t, mail.AllCapabilities, sender.Capabilities())

	raw, err := sender.Compose(testMessage())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "MIME-Version: 1.0")
}
