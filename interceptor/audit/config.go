package audit

import (
	"fmt"
	"net/url"
)

type Config struct {
	User            string `envconfig:"MAIL_AUDIT_POSTGRES_USER" required:"true"`
	Password        string `envconfig:"MAIL_AUDIT_POSTGRES_PASSWORD" required:"true"`
	Host            string `envconfig:"MAIL_AUDIT_POSTGRES_HOST" required:"true"`
	Port            int    `envconfig:"MAIL_AUDIT_POSTGRES_PORT" default:"5432"`
	Name            string `envconfig:"MAIL_AUDIT_POSTGRES_DB_NAME" required:"true"`
	CertPath        string `envconfig:"MAIL_AUDIT_POSTGRES_SSL_CERT_PATH"`
	MaxOpenConns    int32  `envconfig:"MAIL_AUDIT_POSTGRES_MAX_OPEN_CONNECTIONS" default:"5"`
	MaxConnLifeTime int32  `envconfig:"MAIL_AUDIT_POSTGRES_MAX_CONNECTIONS_LIFETIME" default:"300"`
	MaxConnIdleTime int32  `envconfig:"MAIL_AUDIT_POSTGRES_MAX_CONNECTIONS_IDLE_TIME" default:"60"`
	// TraceLogLevel values: trace, debug, info, warn, error, none.
	TraceLogLevel string `envconfig:"MAIL_AUDIT_POSTGRES_TRACE_LOG_LEVEL" default:"error"`
	Table         string `envconfig:"MAIL_AUDIT_TABLE" default:"mail_deliveries"`
}

// URL returns database config in URL presentation
func (c *Config) URL() *url.URL {
	q := url.Values{"timezone": []string{"utc"}}
	if c.CertPath != "" {
		q.Set("sslmode", "verify-full")
		q.Set("sslrootcert", c.CertPath)
	} else {
		q.Set("sslmode", "disable")
	}

	host := c.Host
	if c.Port != 0 && c.Port != 5432 {
		host = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}

	return &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     host,
		Path:     c.Name,
		RawQuery: q.Encode(),
	}
}
