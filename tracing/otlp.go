package tracing

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
)

var _ Provider = (*OTLPProvider)(nil)

type Config struct {
	Endpoint    string  `envconfig:"MAIL_TRACING_ENDPOINT"` // e.g. http://jaeger:4318/v1/traces
	ServiceName string  `envconfig:"MAIL_TRACING_SERVICE_NAME" default:"mail-relay"`
	AppVersion  string  `envconfig:"MAIL_TRACING_APP_VERSION" default:"dev"`
	SampleRatio float64 `envconfig:"MAIL_TRACING_SAMPLE_RATIO" default:"1"`
}

// OTLPProvider extends tracesdk.TracerProvider with an OTLP/HTTP exporter.
type OTLPProvider struct {
	*tracesdk.TracerProvider
}

// Close flushes pending spans and shuts the provider down.
func (p *OTLPProvider) Close() error {
	ctx := context.Background()
	if err := p.ForceFlush(ctx); err != nil {
		if shutdownErr := p.Shutdown(ctx); shutdownErr != nil {
			return errors.Wrap(err, "otlp force flush failed (also shutdown failed)")
		}
		return errors.Wrap(err, "otlp force flush failed")
	}
	return errors.Wrap(p.Shutdown(ctx), "shutdown otlp")
}

func NewOTLPBuilder(conf Config) ProviderBuilder {
	return func() (Provider, error) {
		if conf.Endpoint == "" {
			return nil, errors.New("empty endpoint")
		}
		if conf.ServiceName == "" {
			return nil, errors.New("service name is empty")
		}

		exp, err := otlptrace.New(
			context.Background(),
			otlptracehttp.NewClient(otlptracehttp.WithEndpointURL(conf.Endpoint)),
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create otlp exporter")
		}

		tp := tracesdk.NewTracerProvider(
			tracesdk.WithBatcher(exp),
			tracesdk.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceNameKey.String(conf.ServiceName),
				semconv.ServiceVersionKey.String(conf.AppVersion),
			)),
			tracesdk.WithSampler(sampler(conf.SampleRatio)),
		)
		return &OTLPProvider{TracerProvider: tp}, nil
	}
}

func sampler(ratio float64) tracesdk.Sampler {
	switch {
	case ratio >= 1:
		return tracesdk.AlwaysSample()
	case ratio <= 0:
		return tracesdk.NeverSample()
	default:
		return tracesdk.ParentBased(tracesdk.TraceIDRatioBased(ratio))
	}
}
