package sendmail

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/pure-golang/mailer/mail/sendmail")

var (
	// execDuration - длительность запуска sendmail по команде и результату
	execDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_sendmail_duration_seconds",
			Help:    "Длительность выполнения sendmail",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command", "status"},
	)

	// execTotal - количество запусков sendmail
	execTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_sendmail_executions_total",
			Help: "Количество запусков sendmail",
		},
		[]string{"command", "status"},
	)
)

func init() {
	prometheus.MustRegister(execDuration, execTotal)
}

// finishExecution закрывает измерения одного запуска: метрики и статус span
func finishExecution(span trace.Span, command string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		recordError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	execDuration.WithLabelValues(command, status).Observe(time.Since(started).Seconds())
	execTotal.WithLabelValues(command, status).Inc()
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
