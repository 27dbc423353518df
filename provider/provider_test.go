package provider

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailer/mail"
)

func TestNew_DefaultsToNoop(t *testing.T) {
	unsetenv(t, "MAIL_PROVIDER")

	p, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "noop", p.Name())
	assert.NoError(t, p.Close())
}

func TestNewByName(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("MANDRILL_API_KEY", "md-key")
	t.Setenv("POSTMARK_SERVER_TOKEN", "pm-token")
	t.Setenv("SENDGRID_API_KEY", "sg-key")
	t.Setenv("MAIL_KAFKA_BROKERS", "localhost:9092")
	t.Setenv("SENDMAIL_PATH", "/bin/sh")

	for _, name := range []string{"smtp", "sendmail", "mandrill", "postmark", "sendgrid", "kafka", "noop"} {
		t.Run(name, func(t *testing.T) {
			p, err := NewByName(name, nil)
			require.NoError(t, err)
			assert.Equal(t, name, p.Name())
			assert.NoError(t, p.Close())
		})
	}
}

func TestNewByName_FromEnv(t *testing.T) {
	t.Setenv("MAIL_PROVIDER", "postmark")
	t.Setenv("POSTMARK_SERVER_TOKEN", "pm-token")

	p, err := New(&Options{})
	require.NoError(t, err)
	assert.Equal(t, "postmark", p.Name())
	assert.Equal(t, mail.AllCapabilities, p.Capabilities())
}

func TestNewByName_MissingRequired(t *testing.T) {
	unsetenv(t, "SENDGRID_API_KEY")

	p, err := NewByName("sendgrid", nil)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.Contains(t, err.Error(), "failed to load sendgrid config")
}

func TestNewByName_Unknown(t *testing.T) {
	p, err := NewByName("carrier-pigeon", nil)
	assert.Nil(t, p)
	assert.True(t, mail.IsConfig(err))
}

// unsetenv removes key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
