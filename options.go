package analytics

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tonkeeper/analytics/delivery"
	"github.com/tonkeeper/analytics/internal/ntp"
)

// Option customises a Client at construction.
type Option func(*Client)

// WithChannel replaces the default HTTP channel. When set, APIURL and APIKey
// are not required.
func WithChannel(channel delivery.Channel) Option {
	return func(c *Client) {
		c.channel = channel
	}
}

// WithLogger sets the logger entry used by the client.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithObserver registers a callback for delivery outcomes and drops.
// Observers run on the flushing goroutine and must return quickly.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		if observer != nil {
			c.observers = append(c.observers, observer)
		}
	}
}

// WithClock overrides the source of event timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.clock = clockFunc(now)
		}
	}
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

var _ ntp.TimeProvider = clockFunc(nil)
