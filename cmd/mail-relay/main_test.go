package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailer/logger"
	"github.com/pure-golang/mailer/mail/outbox/kafka"
)

func validConfig() Config {
	return Config{Broker: kafka.Name, Provider: "noop", MaxTryNum: 3}
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, validConfig().validate())

	cases := map[string]func(*Config){
		"unknown broker":        func(c *Config) { c.Broker = "nats" },
		"broker as provider":    func(c *Config) { c.Provider = "rabbitmq" },
		"non positive attempts": func(c *Config) { c.MaxTryNum = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestNewListener_Kafka(t *testing.T) {
	t.Setenv("MAIL_KAFKA_BROKERS", "localhost:9092")

	l, err := newListener(validConfig(), logger.NewNoop())
	require.NoError(t, err)
	assert.IsType(t, &kafka.Consumer{}, l)
	assert.NoError(t, l.Close())
}

func TestNewListener_UnknownBroker(t *testing.T) {
	cfg := validConfig()
	cfg.Broker = "nats"

	_, err := newListener(cfg, logger.NewNoop())
	assert.Error(t, err)
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Provider = "kafka"

	err := run(context.Background(), cfg, logger.NewNoop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be used by the relay")
}
