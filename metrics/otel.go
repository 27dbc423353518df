package metrics

import (
	"sync"

	"github.com/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

var (
	otelOnce sync.Once
	otelErr  error
)

// InitOtel installs a global otel MeterProvider that exports into the default
// prometheus registry and starts runtime instrumentation. Only the first call
// has an effect; the exporter cannot be registered twice.
func InitOtel() error {
	otelOnce.Do(func() {
		exporter, err := prometheus.New()
		if err != nil {
			otelErr = errors.Wrap(err, "failed to create prometheus exporter")
			return
		}
		otel.SetMeterProvider(metric.NewMeterProvider(metric.WithReader(exporter)))

		if err := runtime.Start(); err != nil {
			otelErr = errors.Wrap(err, "failed to start runtime instrumentation")
		}
	})
	return otelErr
}
