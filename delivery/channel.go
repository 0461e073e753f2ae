// Package delivery contains the transports that hand a batch of events to a
// collection backend. A batch is delivered atomically or not at all: a nil
// error from Send means the whole batch was accepted, any error means none
// of it should be considered delivered.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/tonkeeper/analytics/event"
)

// Channel delivers analytics batches to a backend.
type Channel interface {
	Send(ctx context.Context, batch event.Batch) error
}

// Func adapts an ordinary function to the Channel interface.
type Func func(ctx context.Context, batch event.Batch) error

func (f Func) Send(ctx context.Context, batch event.Batch) error {
	return f(ctx, batch)
}

// ErrTransport is matched by every TransportError.
var ErrTransport = errors.New("delivery failed")

// TransportError reports a failed delivery: network error, timeout,
// serialization failure or a non-2xx response.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status code %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func transportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}
