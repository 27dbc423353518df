// Package apiclient is the HTTP plumbing shared by the JSON mail API adapters.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailer/mail"
)

var tracer = otel.Tracer("github.com/pure-golang/mailer/mail/internal/apiclient")

// DefaultTimeout is used when Options.HTTPClient is nil.
const DefaultTimeout = 30 * time.Second

// maxBodyBytes caps how much of a response body is retained.
const maxBodyBytes = 1 << 20

// ErrorDecoder extracts the backend error code and message from a failed response.
type ErrorDecoder func(res *Result) (code int, message string)

// Options configures a Client.
type Options struct {
	Provider   string
	BaseURL    string
	HTTPClient *http.Client
	// Header is added to every request (auth tokens and the like).
	Header http.Header
	// DecodeError is optional; without it ProviderError carries only the raw body.
	DecodeError ErrorDecoder
}

// Client posts JSON payloads to a single API base URL.
type Client struct {
	provider    string
	baseURL     string
	httpClient  *http.Client
	header      http.Header
	decodeError ErrorDecoder
}

// Result is a 2xx response.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New creates a Client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		provider:    opts.Provider,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpClient:  httpClient,
		header:      opts.Header.Clone(),
		decodeError: opts.DecodeError,
	}
}

// PostJSON sends payload to baseURL+path. Network failures are returned as
// mail.TransportError and non-2xx answers as mail.ProviderError.
func (c *Client) PostJSON(ctx context.Context, path string, payload []byte) (*Result, error) {
	url := c.baseURL + path

	ctx, span := tracer.Start(ctx, c.provider+".POST", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("mail.provider", c.provider),
		attribute.String("http.request.method", http.MethodPost),
		attribute.String("url.full", url),
		attribute.Int("http.request.body.size", len(payload)),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return nil, &mail.TransportError{Provider: c.provider, Err: errors.Wrap(err, "failed to create request")}
	}
	for name, values := range c.header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, &mail.TransportError{Provider: c.provider, Err: errors.Wrapf(err, "POST %s", path)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read response")
		return nil, &mail.TransportError{Provider: c.provider, Err: errors.Wrap(err, "failed to read response body")}
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	res := &Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := c.providerError(res)
		span.RecordError(perr)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, perr
	}

	span.SetStatus(codes.Ok, "")
	return res, nil
}

// ProviderError builds the error for a response the adapter judged failed.
func (c *Client) ProviderError(res *Result) *mail.ProviderError {
	return c.providerError(res)
}

func (c *Client) providerError(res *Result) *mail.ProviderError {
	perr := &mail.ProviderError{Provider: c.provider, StatusCode: res.StatusCode, Body: res.Body}
	if c.decodeError != nil {
		perr.Code, perr.Message = c.decodeError(res)
	}
	return perr
}

// Decode unmarshals a response body, reporting undecodable bodies as ProviderError.
func (c *Client) Decode(res *Result, v any) error {
	if err := json.Unmarshal(res.Body, v); err != nil {
		return &mail.ProviderError{
			Provider:   c.provider,
			StatusCode: res.StatusCode,
			Message:    errors.Wrap(err, "failed to decode response").Error(),
			Body:       res.Body,
		}
	}
	return nil
}
