// Package rabbitmq publishes and consumes outbox envelopes over AMQP 0.9.1.
package rabbitmq

import "time"

// Config of the RabbitMQ outbox.
type Config struct {
	URL        string        `envconfig:"MAIL_RABBITMQ_URL" required:"true"`
	Exchange   string        `envconfig:"MAIL_RABBITMQ_EXCHANGE"`                         // default exchange when empty
	RoutingKey string        `envconfig:"MAIL_RABBITMQ_ROUTING_KEY" default:"mail.outbox"` // also the consumed queue name
	MessageTTL time.Duration `envconfig:"MAIL_RABBITMQ_MESSAGE_TTL"`                      // precision to milliseconds
}
