package main

import (
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/mail/outbox/kafka"
	"github.com/pure-golang/mailer/mail/outbox/rabbitmq"
)

// Config of the relay process. Adapter, broker, dedup and audit settings are
// read by their own packages.
type Config struct {
	Broker        string        `envconfig:"MAIL_RELAY_BROKER" default:"kafka"` // kafka|rabbitmq
	Provider      string        `envconfig:"MAIL_RELAY_PROVIDER" required:"true"`
	MaxTryNum     int           `envconfig:"MAIL_RELAY_MAX_TRY_NUM" default:"3"`
	Backoff       time.Duration `envconfig:"MAIL_RELAY_BACKOFF" default:"5s"`
	RetryInterval time.Duration `envconfig:"MAIL_RELAY_RETRY_INTERVAL" default:"5s"`
	PrefetchCount int           `envconfig:"MAIL_RELAY_PREFETCH_COUNT" default:"1"`
	Dedup         bool          `envconfig:"MAIL_RELAY_DEDUP" default:"false"`
	Audit         bool          `envconfig:"MAIL_RELAY_AUDIT" default:"false"`
	Metrics       bool          `envconfig:"MAIL_RELAY_METRICS" default:"true"`
}

var brokers = []string{kafka.Name, rabbitmq.Name}

func (c Config) validate() error {
	if !slices.Contains(brokers, c.Broker) {
		return errors.Errorf("unknown broker %q, expected one of %v", c.Broker, brokers)
	}
	// The relay consumes the outbox; delivering back into a broker would loop.
	if slices.Contains(brokers, c.Provider) {
		return errors.Errorf("provider %q cannot be used by the relay", c.Provider)
	}
	if c.MaxTryNum < 1 {
		return errors.Errorf("MAIL_RELAY_MAX_TRY_NUM must be positive, got %d", c.MaxTryNum)
	}
	return nil
}
