package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	outcomeSent      = "sent"
	outcomeCancelled = "cancelled"
	outcomeInvalid   = "invalid"
	outcomeFailed    = "failed"
)

var (
	// deliveriesTotal - счётчик доставок по провайдеру и результату
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_deliveries_total",
			Help: "Количество доставок писем по провайдеру и результату",
		},
		[]string{"provider", "outcome"},
	)

	// deliveryDuration - гистограмма длительности доставки
	deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_delivery_duration_seconds",
			Help:    "Длительность доставки писем",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(deliveriesTotal)
	prometheus.MustRegister(deliveryDuration)
}

// recordDelivery записывает метрики одной доставки
func recordDelivery(provider, outcome string, started time.Time) {
	deliveriesTotal.WithLabelValues(provider, outcome).Inc()
	deliveryDuration.WithLabelValues(provider, outcome).Observe(time.Since(started).Seconds())
}
