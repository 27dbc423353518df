package smtp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailer/mail"
)

// miniSMTPServer is a minimal SMTP server for testing
type miniSMTPServer struct {
	listener net.Listener
	rejectTo string

	mu         sync.Mutex
	messages   []string
	recipients []string
	from       string
}

// startMiniSMTPServer starts a minimal SMTP server on a random localhost port
func startMiniSMTPServer(t *testing.T) *miniSMTPServer {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to start SMTP server")

	server := &miniSMTPServer{listener: listener}
	go server.handleConnections()
	t.Cleanup(server.close)

	return server
}

func (s *miniSMTPServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *miniSMTPServer) handleConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}

		go func() {
			defer conn.Close()
			s.handleSMTP(conn)
		}()
	}
}

func (s *miniSMTPServer) handleSMTP(conn net.Conn) {
	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)
	reply := func(line string) {
		writer.WriteString(line + "\r\n")
		writer.Flush()
	}

	reply("220 localhost ESMTP Test Server")

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "EHLO") || strings.HasPrefix(line, "HELO"):
			reply("250-localhost\r\n250-SIZE 10240000\r\n250 HELP")
		case strings.HasPrefix(line, "MAIL FROM:"):
			s.mu.Lock()
			s.from = strings.Trim(strings.TrimPrefix(line, "MAIL FROM:"), "<> ")
			s.mu.Unlock()
			reply("250 OK")
		case strings.HasPrefix(line, "RCPT TO:"):
			rcpt := strings.Trim(strings.TrimPrefix(line, "RCPT TO:"), "<> ")
			if rcpt == s.rejectTo {
				reply("550 mailbox unavailable")
				continue
			}
			s.mu.Lock()
			s.recipients = append(s.recipients, rcpt)
			s.mu.Unlock()
			reply("250 OK")
		case line == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")

			var msg strings.Builder
			for {
				text, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if text == ".\r\n" {
					break
				}
				msg.WriteString(text)
			}

			s.mu.Lock()
			s.messages = append(s.messages, msg.String())
			s.mu.Unlock()
			reply("250 OK")
		case line == "QUIT":
			reply("221 localhost closing connection")
			return
		case line == "NOOP" || line == "RSET":
			reply("250 OK")
		default:
			reply("500 Syntax error")
		}
	}
}

func (s *miniSMTPServer) close() {
	if s.listener != nil {
		s.listener.Close()
	}
}

func (s *miniSMTPServer) received() (string, []string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.from, append([]string(nil), s.recipients...), append([]string(nil), s.messages...)
}

func newTestSender(t *testing.T, server *miniSMTPServer) *Sender {
	sender, err := NewSender(Config{Host: "127.0.0.1", Port: server.port(), TLS: false}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sender.Close() })
	return sender
}

func TestSender_MiniSMTPServer_Success(t *testing.T) {
	server := startMiniSMTPServer(t)
	sender := newTestSender(t, server)

	msg := mail.NewMessage()
	msg.From = mail.NewAddress("sender@example.com", "")
	msg.AddTo(mail.NewAddress("recipient@example.com", ""))
	msg.Subject = "Test Subject"
	require.NoError(t, msg.AddView(mail.ContentTypeText, "Test Body"))

	resp, err := sender.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Empty(t, resp)

	from, rcpts, messages := server.received()
	assert.Equal(t, "sender@example.com", from)
	assert.Equal(t, []string{"recipient@example.com"}, rcpts)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Subject: Test Subject")
	assert.Contains(t, messages[0], "Test Body")
}

func TestSender_MiniSMTPServer_AllRecipientsInEnvelope(t *testing.T) {
	server := startMiniSMTPServer(t)
	sender := newTestSender(t, server)

	msg := mail.NewMessage()
	msg.From = mail.NewAddress("sender@example.com", "")
	msg.AddTo(mail.NewAddress("to1@example.com", ""), mail.NewAddress("to2@example.com", ""))
	msg.AddCc(mail.NewAddress("cc@example.com", ""))
	msg.AddBcc(mail.NewAddress("bcc@example.com", ""))

	_, err := sender.Send(context.Background(), msg)
	require.NoError(t, err)

	_, rcpts, messages := server.received()
	assert.Equal(t, []string{"to1@example.com", "to2@example.com", "cc@example.com", "bcc@example.com"}, rcpts)
	require.Len(t, messages, 1)
	assert.NotContains(t, messages[0], "bcc@example.com")
}

func TestSender_MiniSMTPServer_DefaultFrom(t *testing.T) {
	server := startMiniSMTPServer(t)
	sender, err := NewSender(Config{Host: "127.0.0.1", Port: server.port(), From: "Robot <robot@example.com>"}, nil)
	require.NoError(t, err)

	msg := mail.NewMessage()
	msg.AddTo(mail.NewAddress("recipient@example.com", ""))

	_, err = sender.Send(context.Background(), msg)
	require.NoError(t, err)

	from, _, messages := server.received()
	assert.Equal(t, "robot@example.com", from)
	assert.Contains(t, messages[0], `From: "Robot" <robot@example.com>`)
}

func TestSender_MiniSMTPServer_RejectedRecipient(t *testing.T) {
	server := startMiniSMTPServer(t)
	server.rejectTo = "blocked@example.com"
	sender := newTestSender(t, server)

	msg := mail.NewMessage()
	msg.From = mail.NewAddress("sender@example.com", "")
	msg.AddTo(mail.NewAddress("blocked@example.com", ""))

	_, err := sender.Send(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, mail.IsTransport(err))
	assert.Contains(t, err.Error(), "blocked@example.com")
}

func TestSender_MiniSMTPServer_SendAsync(t *testing.T) {
	server := startMiniSMTPServer(t)
	sender := newTestSender(t, server)

	msg := mail.NewMessage()
	msg.From = mail.NewAddress("sender@example.com", "")
	msg.AddTo(mail.NewAddress("recipient@example.com", ""))
	msg.Attach("logo.png", []byte("PNG"), true)

	resp, err := sender.SendAsync(context.Background(), msg).Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, resp)

	_, _, messages := server.received()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "Content-Id: <logo.png>")
}
