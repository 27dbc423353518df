// Package metrics exposes the prometheus registry of the mail relay over HTTP.
package metrics

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Host                  string `envconfig:"MAIL_METRICS_HOST" default:"0.0.0.0"`
	Port                  int    `envconfig:"MAIL_METRICS_PORT" default:"9090"`
	HttpServerReadTimeout int    `envconfig:"MAIL_METRICS_READ_TIMEOUT" default:"30"`
}

type Metrics struct {
	config Config
	server *http.Server
	logger *slog.Logger
}

var _ io.Closer = (*Metrics)(nil)

// InitDefault creates the metrics server and starts serving in the background.
func InitDefault(config Config, logger *slog.Logger) (io.Closer, error) {
	m := New(config, logger)
	if err := m.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start metrics server")
	}
	return m, nil
}

func New(config Config, logger *slog.Logger) *Metrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &Metrics{
		config: config,
		server: NewHttpServer(config),
		logger: logger,
	}
}

// Start binds the listener synchronously so address errors surface to the caller.
func (s *Metrics) Start() error {
	if err := InitOtel(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.server.Addr)
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server failed", "error", err.Error())
		}
	}()

	s.logger.Info("metrics server started", "addr", ln.Addr().String())
	return nil
}

func (s *Metrics) Close() error {
	return errors.Wrap(s.server.Close(), "failed to close metrics")
}

func NewHttpServer(conf Config) *http.Server {
	r := http.NewServeMux()
	r.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", conf.Host, conf.Port),
		Handler:           r,
		ReadTimeout:       time.Duration(conf.HttpServerReadTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(conf.HttpServerReadTimeout) * time.Second,
	}
}
