package sendgrid

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
const Name = "sendgrid"

const sendPath = "/v3/mail/send"

var _ mail.Provider = (*Sender)(nil)

var errClosed = errors.New("sender is closed")

// Sender implements mail.Provider for the templated relay API.
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

// NewSender creates a new Sender. An empty API key is a ConfigError.
func NewSender(cfg Config, options *SenderOptions) (*Sender, error) {
	if cfg.APIKey == "" {
		return nil, &mail.ConfigError{Provider: Name, Field: "APIKey"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
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
			Provider:   Name,
			BaseURL:    cfg.BaseURL,
			HTTPClient: httpClient,
			Header:     http.Header{"Authorization": []string{"Bearer " + cfg.APIKey}},
			DecodeError: func(res *apiclient.Result) (int, string) {
				var e errorResult
				if err := json.Unmarshal(res.Body, &e); err != nil {
					return 0, ""
				}
				return 0, e.message()
			},
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
	m, err := buildMailSend(from, s.cfg.TemplateID, msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Send posts the message. The API accepts it for later processing, so every
// recipient is reported as queued with the id from the X-Message-Id header.
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

	messageID := res.Header.Get("X-Message-Id")
	logger.FromContext(ctx).Debug("sendgrid: message queued", "message_id", messageID)

	return mail.RecipientResponses(msg, mail.StatusQueued, messageID), nil
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
