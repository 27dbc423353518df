package postmark

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/logger"
	"github.com/pure-golang/mailer/mail"
	"github.com/pure-golang/mailer/mail/internal/apiclient"
)

// Name is the provider identifier.
const Name = "postmark"

const sendPath = "/email"

var _ mail.Provider = (*Sender)(nil)

var errClosed = errors.New("sender is closed")

// Sender implements mail.Provider for the simple relay API.
type Sender struct {
	mx     sync.Mutex
	cfg    Config
	client *apiclient.Client
	closed bool
}

// SenderOptions contains options for creating a Sender.
type SenderOptions struct {
	HTTPClient *http.Client
}

// NewSender creates a new Sender. An empty server token is a ConfigError.
func NewSender(cfg Config, options *SenderOptions) (*Sender, error) {
	if cfg.ServerToken == "" {
		return nil, &mail.ConfigError{Provider: Name, Field: "ServerToken"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.postmarkapp.com"
	}

	var httpClient *http.Client
	if options != nil {
		httpClient = options.HTTPClient
	}
	if httpClient == nil && cfg.Timeout > 0 {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Sender{
		cfg: cfg,
		client: apiclient.New(apiclient.Options{
			Provider:    Name,
			BaseURL:     cfg.BaseURL,
			HTTPClient:  httpClient,
			Header:      http.Header{"X-Postmark-Server-Token": []string{cfg.ServerToken}},
			DecodeError: decodeError,
		}),
	}, nil
}

func (s *Sender) Name() string {
	return Name
}

func (s *Sender) Capabilities() mail.Capabilities {
	return mail.AllCapabilities
}

// Compose returns the JSON request body Send would post.
func (s *Sender) Compose(msg *mail.Message) ([]byte, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}
	from, err := msg.ResolveFrom(s.cfg.From)
	if err != nil {
		return nil, err
	}
	e, err := buildEmail(from, s.cfg.MessageStream, msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Send posts the message. The API answers once for the whole message, so
// every To, Cc and Bcc recipient is reported as sent with the same id.
func (s *Sender) Send(ctx context.Context, msg *mail.Message) ([]mail.Response, error) {
	s.mx.Lock()
	closed := s.closed
	s.mx.Unlock()
	if closed {
		return nil, &mail.TransportError{Provider: Name, Err: errClosed}
	}

	body, err := s.Compose(msg)
	if err != nil {
		return nil, err
	}

	res, err := s.client.PostJSON(ctx, sendPath, body)
	if err != nil {
		return nil, err
	}

	var result sendResult
	if err := s.client.Decode(res, &result); err != nil {
		return nil, err
	}
	if result.ErrorCode != 0 {
		perr := s.client.ProviderError(res)
		return nil, perr
	}

	logger.FromContext(ctx).Debug("postmark: message accepted", "message_id", result.MessageID)
	return mail.RecipientResponses(msg, mail.StatusSent, result.MessageID), nil
}

// SendAsync runs Send in a new goroutine.
func (s *Sender) SendAsync(ctx context.Context, msg *mail.Message) *mail.Future {
	return mail.Go(func() ([]mail.Response, error) {
		return s.Send(ctx, msg)
	})
}

// Close is idempotent; sends after Close fail.
func (s *Sender) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.closed = true
	return nil
}

func decodeError(res *apiclient.Result) (int, string) {
	var r sendResult
	if err := json.Unmarshal(res.Body, &r); err != nil {
		return 0, ""
	}
	return r.ErrorCode, r.Message
}
