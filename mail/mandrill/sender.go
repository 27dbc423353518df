package mandrill

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
const Name = "mandrill"

const sendPath = "/messages/send.json"

// Cc is not transmitted; Bcc is limited to a single address (checked separately).
var capabilities = mail.Capabilities{Cc: false, Bcc: true, ReplyTo: true}

var _ mail.Provider = (*Sender)(nil)

var errClosed = errors.New("sender is closed")

// Sender implements mail.Provider for the bulk transactional API.
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
		cfg.BaseURL = "https://mandrillapp.com/api/1.0"
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.Timeout == 0 {
		httpClient.Timeout = apiclient.DefaultTimeout
	}
	if options != nil && options.HTTPClient != nil {
		httpClient = options.HTTPClient
	}

	return &Sender{
		cfg: cfg,
		client: apiclient.New(apiclient.Options{
			Provider:    Name,
			BaseURL:     cfg.BaseURL,
			HTTPClient:  httpClient,
			DecodeError: decodeError,
		}),
	}, nil
}

func (s *Sender) Name() string {
	return Name
}

func (s *Sender) Capabilities() mail.Capabilities {
	return capabilities
}

// Compose returns the JSON request body Send would post.
func (s *Sender) Compose(msg *mail.Message) ([]byte, error) {
	req, err := s.request(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(req)
}

func (s *Sender) request(msg *mail.Message) (*sendRequest, error) {
	if msg == nil {
		return nil, &mail.InvalidArgumentError{Arg: "message"}
	}
	from, err := msg.ResolveFrom(s.cfg.From)
	if err != nil {
		return nil, err
	}
	return buildRequest(s.cfg.APIKey, from, msg)
}

// Send posts the message and maps the per-recipient results.
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

	var results []sendResult
	if err := s.client.Decode(res, &results); err != nil {
		return nil, err
	}

	responses := make([]mail.Response, 0, len(results))
	for _, r := range results {
		st, err := mail.ParseStatus(Name, r.Status)
		if err != nil {
			return nil, err
		}
		responses = append(responses, mail.Response{
			Address:      r.Email,
			Status:       st,
			RejectReason: r.RejectReason,
			MessageID:    r.ID,
		})
	}

	logger.FromContext(ctx).Debug("mandrill: message accepted", "responses", len(responses))
	return responses, nil
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
	var e errorResult
	if err := json.Unmarshal(res.Body, &e); err != nil || e.Status != "error" {
		return 0, ""
	}
	if e.Name != "" {
		return e.Code, e.Name + ": " + e.Message
	}
	return e.Code, e.Message
}
