package outbox

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Relay result label values.
const (
	resultDelivered = "delivered"
	resultMalformed = "malformed"
	resultRetry     = "retry"
	resultFailed    = "failed"
)

var (
	meter = otel.Meter("github.com/pure-golang/mailer/mail/outbox")

	envelopesCount   metric.Int64Counter
	envelopeDuration metric.Int64Histogram
	envelopeSize     metric.Int64Histogram
)

func init() {
	var err error

	envelopesCount, err = meter.Int64Counter(
		"mail.relay.envelopes_total",
		metric.WithDescription("Total number of relayed envelopes"),
	)
	if err != nil {
		panic(errors.Wrap(err, "failed to create envelopes counter"))
	}

	envelopeDuration, err = meter.Int64Histogram(
		"mail.relay.duration_ms",
		metric.WithDescription("Envelope handling duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(errors.Wrap(err, "failed to create envelope duration histogram"))
	}

	envelopeSize, err = meter.Int64Histogram(
		"mail.relay.envelope_size_bytes",
		metric.WithDescription("Encoded envelope size in bytes"),
		metric.WithUnit("bytes"),
	)
	if err != nil {
		panic(errors.Wrap(err, "failed to create envelope size histogram"))
	}
}

// recordEnvelope записывает метрики обработки одного конверта
func recordEnvelope(ctx context.Context, size int, result string, started time.Time) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	envelopesCount.Add(ctx, 1, attrs)
	envelopeDuration.Record(ctx, time.Since(started).Milliseconds(), attrs)
	envelopeSize.Record(ctx, int64(size))
}
