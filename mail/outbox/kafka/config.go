// Package kafka публикует и читает конверты outbox через Kafka.
package kafka

import "time"

// Config содержит параметры подключения к Kafka
type Config struct {
	Brokers []string      `envconfig:"MAIL_KAFKA_BROKERS" required:"true"`       // список брокеров (например: localhost:9092)
	Topic   string        `envconfig:"MAIL_KAFKA_TOPIC" default:"mail.outbox"`   // тема с конвертами писем
	GroupID string        `envconfig:"MAIL_KAFKA_GROUP_ID" default:"mail-relay"` // группа потребителей relay
	Timeout time.Duration `envconfig:"MAIL_KAFKA_TIMEOUT" default:"10s"`         // таймаут записи
}

// ConsumerConfig содержит параметры для Consumer
type ConsumerConfig struct {
	MaxTryNum     int           // максимальное количество попыток обработки сообщения
	Backoff       time.Duration // время ожидания между попытками
	RetryInterval time.Duration // пауза после ошибки чтения
}
