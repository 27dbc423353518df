package sendgrid

import "time"

// Config holds the templated relay API settings.
type Config struct {
	APIKey     string        `envconfig:"SENDGRID_API_KEY" required:"true"`
	BaseURL    string        `envconfig:"SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
	From       string        `envconfig:"SENDGRID_FROM"`
	TemplateID string        `envconfig:"SENDGRID_TEMPLATE_ID"` // optional dynamic template
	Timeout    time.Duration `envconfig:"SENDGRID_TIMEOUT" default:"30s"`
}
