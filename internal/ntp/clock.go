package ntp

import "time"

// TimeProvider supplies the wall-clock time stamped on events.
type TimeProvider interface {
	Now() time.Time
}

// LocalTimeProvider reports the host clock unchanged.
type LocalTimeProvider struct{}

func NewLocalTimeProvider() *LocalTimeProvider {
	return &LocalTimeProvider{}
}

func (*LocalTimeProvider) Now() time.Time {
	return time.Now()
}

var (
	_ TimeProvider = (*LocalTimeProvider)(nil)
	_ TimeProvider = (*Client)(nil)
)
