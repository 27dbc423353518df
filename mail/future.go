package mail

import (
	"context"
	"sync"
)

// Future is the pending result of an asynchronous send. It is resolved exactly
// once; later resolutions are ignored.
type Future struct {
	once      sync.Once
	done      chan struct{}
	responses []Response
	err       error
}

// NewFuture creates an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns an already completed future.
func Resolved(responses []Response, err error) *Future {
	f := NewFuture()
	f.Resolve(responses, err)
	return f
}

// Go runs fn in a new goroutine and resolves the future with its result.
func Go(fn func() ([]Response, error)) *Future {
	f := NewFuture()
	go func() {
		f.Resolve(fn())
	}()
	return f
}

// Resolve completes the future. It reports whether this call resolved it.
func (f *Future) Resolve(responses []Response, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.responses, f.err = responses, err
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome after Done is closed. It blocks until then.
func (f *Future) Result() ([]Response, error) {
	<-f.done
	return f.responses, f.err
}

// Wait blocks until the future resolves or ctx is done. A ctx error does not
// abort the underlying send.
func (f *Future) Wait(ctx context.Context) ([]Response, error) {
	select {
	case <-f.done:
		return f.responses, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
