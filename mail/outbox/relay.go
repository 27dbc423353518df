package outbox

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/logger"
	"github.com/pure-golang/mailer/mail"
)

// Handler processes one broker message. It returns retry=true when the
// failure is transient and the message should be redelivered.
type Handler func(ctx context.Context, body []byte) (retry bool, err error)

// Deliverer is satisfied by *delivery.Coordinator.
type Deliverer interface {
	Deliver(ctx context.Context, msg *mail.Message) ([]mail.Response, error)
}

// Relay turns envelopes back into messages and delivers them.
type Relay struct {
	deliverer Deliverer
}

// NewRelay creates a Relay.
func NewRelay(d Deliverer) *Relay {
	return &Relay{deliverer: d}
}

// Handle implements Handler. Malformed envelopes and permanent provider
// errors are not retried.
func (r *Relay) Handle(ctx context.Context, body []byte) (bool, error) {
	started := time.Now()

	env, err := Decode(body)
	if err != nil {
		recordEnvelope(ctx, len(body), resultMalformed, started)
		return false, err
	}

	log := logger.FromContext(ctx).With("envelope_id", env.ID)
	responses, err := r.deliverer.Deliver(ctx, env.Message())
	if err != nil {
		retry := Retryable(err)
		result := resultFailed
		if retry {
			result = resultRetry
		}
		recordEnvelope(ctx, len(body), result, started)
		return retry, errors.Wrapf(err, "failed to deliver envelope %s", env.ID)
	}

	recordEnvelope(ctx, len(body), resultDelivered, started)
	log.Debug("envelope delivered", "responses", len(responses))
	return false, nil
}

// Retryable reports whether a delivery error is worth another attempt:
// transport failures, throttling and server-side provider errors.
func Retryable(err error) bool {
	if mail.IsTransport(err) {
		return true
	}
	var pe *mail.ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode == http.StatusTooManyRequests || pe.StatusCode >= http.StatusInternalServerError
	}
	return false
}
