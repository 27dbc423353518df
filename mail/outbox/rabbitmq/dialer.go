package rabbitmq

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrConnectionClosed = errors.New("connection is closed manually")

// DefaultConnectionName is reported to the broker in the client properties.
const DefaultConnectionName = "mail-outbox"

// Dialer keeps one AMQP connection to the outbox broker and redials it with
// the retry policy when the broker drops it. Close stops a pending redial.
type Dialer struct {
	uri    string
	amqp   amqp.Config
	policy RetryPolicy
	logger *slog.Logger

	mx     sync.Mutex
	conn   *amqp.Connection
	closed bool
	done   chan struct{}
}

// DialerOptions set dialer params.
type DialerOptions struct {
	RetryPolicy RetryPolicy
	Logger      *slog.Logger
	// Name shows up as connection_name in the management UI.
	Name      string
	Heartbeat time.Duration // 10s by default
}

func NewDialer(uri string, options *DialerOptions) *Dialer {
	if options == nil {
		options = new(DialerOptions)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := options.RetryPolicy
	if policy == nil {
		policy = NewDefaultMaxInterval()
	}
	name := options.Name
	if name == "" {
		name = DefaultConnectionName
	}
	heartbeat := options.Heartbeat
	if heartbeat == 0 {
		heartbeat = 10 * time.Second
	}

	return &Dialer{
		uri: uri,
		amqp: amqp.Config{
			Heartbeat:  heartbeat,
			Locale:     "en_US",
			Properties: amqp.Table{"connection_name": name},
		},
		policy: policy,
		logger: logger.WithGroup("rabbitmq").With("connection", name),
		done:   make(chan struct{}),
	}
}

// Connect dials the broker and starts watching the connection.
func (d *Dialer) Connect() error {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.closed {
		return ErrConnectionClosed
	}

	conn, err := amqp.DialConfig(d.uri, d.amqp)
	if err != nil {
		return errors.Wrap(err, "failed to dial")
	}

	d.conn = conn
	go d.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	d.logger.Debug("connected")
	return nil
}

// Channel opens a new channel on the current connection.
func (d *Dialer) Channel() (Channel, error) {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.conn == nil || d.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	channel, err := d.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open channel")
	}
	return channel, nil
}

func (d *Dialer) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	close(d.done)

	if d.conn == nil {
		return nil
	}
	conn := d.conn
	d.conn = nil
	return errors.Wrap(conn.Close(), "failed to close RabbitMQ connection")
}

// watch blocks until the connection closes. A nil error means Close was
// called; anything else triggers a redial.
func (d *Dialer) watch(notify chan *amqp.Error) {
	amqpErr, ok := <-notify
	if !ok || amqpErr == nil {
		return
	}
	d.logger.Warn("connection lost", "error", amqpErr.Error(), "code", amqpErr.Code)

	for try := 1; ; try++ {
		pause, stop := d.policy.TryNum(try)
		if stop {
			d.logger.Error("giving up reconnecting", "tries", try-1)
			return
		}

		select {
		case <-d.done:
			return
		case <-time.After(pause):
		}

		err := d.Connect()
		if err == nil || errors.Is(err, ErrConnectionClosed) {
			return
		}
		d.logger.Error("failed to reconnect", "error", err.Error(), "try", try)
	}
}
