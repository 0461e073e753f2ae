package analytics

import (
	"errors"
	"fmt"

	"github.com/tonkeeper/analytics/event"
)

var (
	// ErrValidation is matched by errors returned from Track and Identify
	// for rejected input. Rejected events never enter the buffer.
	ErrValidation = event.ErrValidation
	// ErrConfiguration is matched by errors returned from New.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrClientClosed is returned by calls made after Shutdown.
	ErrClientClosed = errors.New("analytics client is shut down")
	// ErrUndelivered is returned by Shutdown when the final flush failed.
	ErrUndelivered = errors.New("events left undelivered")
)

// ValidationError describes which input was rejected and why.
type ValidationError = event.ValidationError

// ConfigurationError names the offending Config field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
