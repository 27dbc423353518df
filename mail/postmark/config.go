package postmark

import "time"

// Config holds the simple relay API settings.
type Config struct {
	ServerToken   string        `envconfig:"POSTMARK_SERVER_TOKEN" required:"true"`
	BaseURL       string        `envconfig:"POSTMARK_BASE_URL" default:"https://api.postmarkapp.com"`
	From          string        `envconfig:"POSTMARK_FROM"`
	MessageStream string        `envconfig:"POSTMARK_MESSAGE_STREAM"`
	Timeout       time.Duration `envconfig:"POSTMARK_TIMEOUT" default:"30s"`
}
