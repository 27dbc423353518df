package mandrill

import "time"

// Config holds the bulk transactional API settings.
type Config struct {
	APIKey  string        `envconfig:"MANDRILL_API_KEY" required:"true"`
	BaseURL string        `envconfig:"MANDRILL_BASE_URL" default:"https://mandrillapp.com/api/1.0"`
	From    string        `envconfig:"MANDRILL_FROM"` // default sender, e.g. "Shop <noreply@shop.example>"
	Timeout time.Duration `envconfig:"MANDRILL_TIMEOUT" default:"30s"`
}
