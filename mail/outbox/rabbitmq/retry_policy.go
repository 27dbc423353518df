package rabbitmq

import "time"

// RetryPolicy decides the pause before reconnect attempt tryNum (1-based) and
// whether to give up.
type RetryPolicy interface {
	TryNum(tryNum int) (pause time.Duration, stop bool)
}

// Reconnect defaults: 200ms, 400ms, 600ms... until the pause exceeds ten minutes.
const (
	DefaultRetryInterval             = 100 * time.Millisecond
	DefaultConnIntervalMultiplicator = 2
	DefaultMaxInterval               = 10 * time.Minute
)

func NewDefaultMaxInterval() *MaxInterval {
	return NewMaxInterval(DefaultRetryInterval, DefaultMaxInterval, DefaultConnIntervalMultiplicator)
}

// NewMaxInterval panics on zero arguments; they would spin or never stop.
func NewMaxInterval(base, max time.Duration, multiplicator int) *MaxInterval {
	switch {
	case base == 0:
		panic("interval should not be 0")
	case multiplicator == 0:
		panic("multiplicator should not be 0")
	case max == 0:
		panic("max interval should not be 0")
	}
	return &MaxInterval{base: base, max: max, step: multiplicator}
}

// MaxInterval grows the pause linearly and stops once it exceeds max.
type MaxInterval struct {
	base time.Duration
	max  time.Duration
	step int
}

func (p *MaxInterval) TryNum(tryNum int) (time.Duration, bool) {
	pause := p.base * time.Duration(tryNum*p.step)
	if pause > p.max {
		return 0, true
	}
	return pause, false
}

// ConstantInterval retries forever with the same pause.
type ConstantInterval struct {
	pause time.Duration
}

func NewConstantInterval(pause time.Duration) *ConstantInterval {
	return &ConstantInterval{pause: pause}
}

func (c *ConstantInterval) TryNum(int) (time.Duration, bool) {
	return c.pause, false
}
