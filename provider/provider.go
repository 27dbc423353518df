// Package provider builds the configured mail.Provider from the environment.
package provider

import (
	"log/slog"
	"net/http"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailer/env"
	"github.com/pure-golang/mailer/mail"
	"github.com/pure-golang/mailer/mail/mandrill"
	"github.com/pure-golang/mailer/mail/noop"
	"github.com/pure-golang/mailer/mail/outbox/kafka"
	"github.com/pure-golang/mailer/mail/outbox/rabbitmq"
	"github.com/pure-golang/mailer/mail/postmark"
	"github.com/pure-golang/mailer/mail/sendgrid"
	"github.com/pure-golang/mailer/mail/sendmail"
	"github.com/pure-golang/mailer/mail/smtp"
)

// Config selects the active adapter.
type Config struct {
	Provider string `envconfig:"MAIL_PROVIDER" default:"noop"` // smtp|sendmail|mandrill|postmark|sendgrid|kafka|rabbitmq|noop
}

// Options are shared by the adapters that accept them.
type Options struct {
	Logger     *slog.Logger
	HTTPClient *http.Client
}

// Names lists the supported MAIL_PROVIDER values.
var Names = []string{smtp.Name, sendmail.Name, mandrill.Name, postmark.Name, sendgrid.Name, kafka.Name, rabbitmq.Name, noop.Name}

// New reads MAIL_PROVIDER and builds that adapter.
func New(options *Options) (mail.Provider, error) {
	var cfg Config
	if err := env.InitConfig(&cfg); err != nil {
		return nil, err
	}
	return NewByName(cfg.Provider, options)
}

// NewByName loads the named adapter's configuration and builds it.
func NewByName(name string, options *Options) (mail.Provider, error) {
	if options == nil {
		options = new(Options)
	}

	switch name {
	case smtp.Name:
		var cfg smtp.Config
		if err := load(name, &cfg); err != nil {
			return nil, err
		}
		return provider(smtp.NewSender(cfg, nil))
	case mandrill.Name:
		var cfg mandrill.Config
		if err := load(name, &cfg); err != nil {
			return nil, err
		}
		return provider(mandrill.NewSender(cfg, &mandrill.SenderOptions{HTTPClient: options.HTTPClient}))
	case postmark.Name:
		var cfg postmark.Config
		if err := load(name, &cfg); err != nil {
			return nil, err
		}
		return provider(postmark.NewSender(cfg, &postmark.SenderOptions{HTTPClient: options.HTTPClient}))
	case sendgrid.Name:
		var cfg sendgrid.Config
		if err := load(name, &cfg); err != nil {
			return nil, err
		}
		return provider(sendgrid.NewSender(cfg, &sendgrid.SenderOptions{HTTPClient: options.HTTPClient}))
	case kafka.Name:
		var cfg kafka.Config
		if err := load(name, &cfg); err != nil {
			return nil, err
		}
		return provider(kafka.NewSender(cfg, &kafka.PublisherOptions{Logger: options.Logger}))
	case rabbitmq.Name:
		var cfg rabbitmq.Config
		if err := load(name, &cfg); err != nil {
			return nil, err
		}
		return provider(rabbitmq.NewSender(cfg, &rabbitmq.SenderOptions{Logger: options.Logger}))
	case sendmail.Name:
		var cfg sendmail.Config
		if err := load(name, &cfg); err != nil {
			return nil, err
		}
		return provider(sendmail.NewSender(cfg))
	case noop.Name:
		return noop.NewSender(), nil
	}
	return nil, &mail.ConfigError{Provider: name, Field: "MAIL_PROVIDER"}
}

func load(name string, cfg any) error {
	return errors.Wrapf(env.InitConfig(cfg), "failed to load %s config", name)
}

// provider converts a constructor result without leaking typed nil pointers
// into the interface.
func provider[T mail.Provider](p T, err error) (mail.Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
