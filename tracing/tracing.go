// Package tracing installs the global otel TracerProvider and propagator used
// by the mail adapters and the outbox brokers.
package tracing

import (
	"io"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Provider interface {
	trace.TracerProvider
	io.Closer
}

// ProviderBuilder hides the construction details of a Provider.
type ProviderBuilder func() (Provider, error)

// Init builds the provider and installs it globally together with a
// TraceContext+Baggage propagator. On failure a NoopProvider is returned
// alongside the error and global state is left untouched.
func Init(creator ProviderBuilder) (Provider, error) {
	provider, err := creator()
	if err != nil {
		return &NoopProvider{}, errors.Wrap(err, "failed to load tracing provider")
	}

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider, nil
}

// InitDefault exports to OTLP when an endpoint is configured. Without one
// spans stay in-process and headers still carry trace context.
func InitDefault(conf Config) (Provider, error) {
	if conf.Endpoint == "" {
		otel.SetTextMapPropagator(propagation.TraceContext{})
		return &NoopProvider{}, nil
	}
	return Init(NewOTLPBuilder(conf))
}

type NoopProvider struct{ *tracesdk.TracerProvider }

func (NoopProvider) Close() error { return nil }
