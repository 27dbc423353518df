package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pure-golang/mailer/logger"
)

func TestNewHttpServer(t *testing.T) {
	t.Run("serves the default registry", func(t *testing.T) {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mail_metrics_test_total",
			Help: "test counter",
		})
		require.NoError(t, prometheus.Register(counter))
		t.Cleanup(func() { prometheus.Unregister(counter) })
		counter.Inc()

		server := NewHttpServer(Config{HttpServerReadTimeout: 5})
		ts := httptest.NewServer(server.Handler)
		defer ts.Close()

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "mail_metrics_test_total 1")
	})

	t.Run("address and timeouts", func(t *testing.T) {
		server := NewHttpServer(Config{Host: "127.0.0.1", Port: 8080, HttpServerReadTimeout: 15})

		assert.Equal(t, "127.0.0.1:8080", server.Addr)
		assert.Equal(t, 15*time.Second, server.ReadTimeout)
		assert.Equal(t, 15*time.Second, server.ReadHeaderTimeout)
	})

	t.Run("unknown path", func(t *testing.T) {
		server := NewHttpServer(Config{})
		rec := httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMetrics_StartClose(t *testing.T) {
	m := New(Config{Host: "127.0.0.1", Port: 0, HttpServerReadTimeout: 5}, logger.NewNoop())

	require.NoError(t, m.Start())
	assert.NoError(t, m.Close())
}

func TestMetrics_StartAddressInUse(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	m := New(Config{HttpServerReadTimeout: 5}, nil)
	m.server.Addr = ts.Listener.Addr().String()

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestMetrics_CloseWithoutStart(t *testing.T) {
	m := New(Config{Host: "127.0.0.1", Port: 9090}, nil)
	assert.NoError(t, m.Close())
}

func TestInitDefault(t *testing.T) {
	closer, err := InitDefault(Config{Host: "127.0.0.1", Port: 0, HttpServerReadTimeout: 5}, logger.NewNoop())
	require.NoError(t, err)
	require.NotNil(t, closer)
	assert.NoError(t, closer.Close())
}

func TestInitOtel_Idempotent(t *testing.T) {
	require.NoError(t, InitOtel())
	require.NoError(t, InitOtel())

	server := NewHttpServer(Config{})
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "target_info")
}
