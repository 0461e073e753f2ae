// Package analytics is a client-side telemetry SDK. Application code calls
// Identify and Track; the client buffers events in memory and delivers them
// in batches, either when BatchSize events are pending or every
// FlushInterval, whichever comes first. A failed batch is put back at the
// head of the buffer and retried on the next flush.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tonkeeper/analytics/delivery"
	"github.com/tonkeeper/analytics/event"
	"github.com/tonkeeper/analytics/internal/buffer"
	"github.com/tonkeeper/analytics/internal/metrics"
	"github.com/tonkeeper/analytics/internal/ntp"
	"github.com/tonkeeper/analytics/internal/scheduler"
	"github.com/tonkeeper/analytics/internal/session"
	"golang.org/x/time/rate"
)

// Properties are JSON-representable event attributes.
type Properties = event.Properties

// Client buffers events and delivers them through a delivery.Channel.
// It is safe for concurrent use.
type Client struct {
	cfg       Config
	channel   delivery.Channel
	buffer    *buffer.Buffer[event.Event]
	session   *session.Session
	scheduler *scheduler.Scheduler
	clock     ntp.TimeProvider
	ntpClient *ntp.Client
	log       *logrus.Entry
	observers []Observer

	// throttles Warn level delivery failure logs
	failureLog *rate.Limiter

	mu     sync.RWMutex
	closed bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// Init builds a client for apiURL with default settings.
func Init(apiURL, apiKey string, opts ...Option) (*Client, error) {
	return New(Config{APIURL: apiURL, APIKey: apiKey}, opts...)
}

// New validates cfg, builds the client and starts its flush scheduler.
// The caller owns the client and must call Shutdown.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()

	c := &Client{
		log:        logrus.WithField("prefix", "analytics"),
		failureLog: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := cfg.validate(c.channel == nil); err != nil {
		return nil, err
	}
	c.cfg = cfg

	if c.channel == nil {
		ch, err := delivery.NewHTTPChannel(delivery.HTTPOptions{
			APIURL:       cfg.APIURL,
			APIKey:       cfg.APIKey,
			Timeout:      cfg.DeliveryTimeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
		})
		if err != nil {
			return nil, &ConfigurationError{Field: "APIURL", Reason: err.Error()}
		}
		c.channel = ch
	}

	if c.clock == nil {
		if cfg.NTPEnabled {
			c.ntpClient = ntp.NewClient(ntp.Options{Servers: cfg.NTPServers})
			c.ntpClient.Start(context.Background())
			c.clock = c.ntpClient
		} else {
			c.clock = ntp.NewLocalTimeProvider()
		}
	}

	c.session = session.New()
	c.buffer = buffer.New[event.Event](cfg.MaxBufferSize, cfg.DropPolicy.bufferPolicy())
	c.scheduler = scheduler.New(cfg.FlushInterval, c.scheduledFlush)
	c.scheduler.Start(context.Background())

	c.log.WithFields(logrus.Fields{
		"session_id":     c.session.ID(),
		"batch_size":     cfg.BatchSize,
		"flush_interval": cfg.FlushInterval,
	}).Debug("analytics client started")

	return c, nil
}

// Identify binds userID to every event tracked from now on and enqueues an
// $identify event carrying traits as its properties. Events already
// buffered keep their previous identity.
func (c *Client) Identify(userID string, traits Properties) error {
	if userID == "" {
		return &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	ev, err := event.New(event.IdentifyName, traits, userID, c.session.ID(), c.clock.Now())
	if err != nil {
		return err
	}
	return c.enqueue(ev, func() {
		c.session.SetUser(userID, traits)
	})
}

// Track buffers one event. When the buffer reaches BatchSize the batch is
// delivered synchronously on the calling goroutine before Track returns.
// Delivery failures are never returned; only invalid input is.
func (c *Client) Track(eventName string, properties Properties) error {
	identity := c.session.Current()
	ev, err := event.New(eventName, properties, identity.UserID, c.session.ID(), c.clock.Now())
	if err != nil {
		return err
	}
	return c.enqueue(ev, nil)
}

// enqueue buffers ev unless the client is closed. accepted runs under the
// same lock, so a rejected event leaves no other state behind.
func (c *Client) enqueue(ev event.Event, accepted func()) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClientClosed
	}
	if accepted != nil {
		accepted()
	}
	length, dropped := c.buffer.Append(ev)
	c.mu.RUnlock()

	metrics.EventsTracked.Inc()
	metrics.BufferLength.Set(float64(length))
	if dropped > 0 {
		c.reportDrop(dropped, length)
	}

	if length >= c.cfg.BatchSize {
		_ = c.flush(context.Background())
	}
	return nil
}

// Flush drains the buffer and attempts delivery. It is a no-op when the
// buffer is empty. On failure the batch is requeued ahead of newer events
// and the outcome goes to observers and the log, not to the caller.
func (c *Client) Flush(ctx context.Context) {
	_ = c.flush(ctx)
}

func (c *Client) scheduledFlush(ctx context.Context) {
	_ = c.flush(ctx)
}

func (c *Client) flush(ctx context.Context) error {
	batch := c.buffer.DrainAll()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := c.send(ctx, batch)
	duration := time.Since(start)
	metrics.FlushDuration.Observe(duration.Seconds())

	if err == nil {
		buffered := c.buffer.Len()
		metrics.DeliveryAttempts.WithLabelValues(metrics.ResultSuccess).Inc()
		metrics.EventsDelivered.Add(float64(len(batch)))
		metrics.BufferLength.Set(float64(buffered))

		c.log.WithFields(logrus.Fields{
			"events":   len(batch),
			"duration": duration,
		}).Debug("analytics batch delivered")
		c.notify(DeliveryReport{
			Outcome:  Delivered,
			Events:   len(batch),
			Duration: duration,
			Buffered: buffered,
		})
		return nil
	}

	dropped := c.buffer.PrependAll(batch)
	buffered := c.buffer.Len()
	metrics.DeliveryAttempts.WithLabelValues(metrics.ResultFailure).Inc()
	metrics.EventsRequeued.Add(float64(len(batch)))
	metrics.BufferLength.Set(float64(buffered))

	log := c.log.WithError(err).WithFields(logrus.Fields{
		"events":   len(batch),
		"buffered": buffered,
	})
	if c.failureLog.Allow() {
		log.Warn("analytics: failed to deliver batch, requeued for next flush")
	} else {
		log.Debug("analytics: failed to deliver batch, requeued for next flush")
	}

	c.notify(DeliveryReport{
		Outcome:  Failed,
		Events:   len(batch),
		Requeued: len(batch),
		Err:      err,
		Duration: duration,
		Buffered: buffered,
	})
	if dropped > 0 {
		c.reportDrop(dropped, buffered)
	}
	return err
}

// send bounds one delivery attempt by DeliveryTimeout even when the channel
// ignores its context. An abandoned attempt may still reach the backend, so
// delivery is at-least-once. A context that is already done skips the
// attempt and the channel is not called.
func (c *Client) send(ctx context.Context, batch event.Batch) error {
	if err := ctx.Err(); err != nil {
		return &delivery.TransportError{Op: "delivery attempt skipped", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DeliveryTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- c.channel.Send(ctx, batch)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		select {
		case err := <-result:
			return err
		default:
		}
		return &delivery.TransportError{Op: "delivery attempt abandoned", Err: ctx.Err()}
	}
}

func (c *Client) reportDrop(dropped, buffered int) {
	metrics.EventsDropped.Add(float64(dropped))
	c.log.WithFields(logrus.Fields{
		"dropped":  dropped,
		"capacity": c.cfg.MaxBufferSize,
		"policy":   c.cfg.DropPolicy,
	}).Warn("analytics: buffer at capacity, events dropped")
	c.notify(DeliveryReport{
		Outcome:  Dropped,
		Dropped:  dropped,
		Buffered: buffered,
	})
}

func (c *Client) notify(report DeliveryReport) {
	for _, observer := range c.observers {
		observer(report)
	}
}

// Shutdown stops the flush scheduler, waits for it to exit and makes one
// final delivery attempt bounded by ctx and DeliveryTimeout. A ctx that is
// already done skips that attempt. It is idempotent; later calls return the
// result of the first one. Events still buffered after a failed or skipped
// final attempt are reported through ErrUndelivered.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.scheduler.Stop()

		err := c.flush(ctx)
		if c.ntpClient != nil {
			c.ntpClient.Stop()
		}

		log := c.log.WithField("session_id", c.session.ID())
		if err != nil {
			remaining := c.buffer.Len()
			c.shutdownErr = fmt.Errorf("%w: %d events remain buffered: %v", ErrUndelivered, remaining, err)
			log.WithError(err).WithField("remaining", remaining).Warn("analytics client shut down with undelivered events")
			return
		}
		log.Debug("analytics client shut down")
	})
	return c.shutdownErr
}

// Len returns the advisory number of buffered events.
func (c *Client) Len() int {
	return c.buffer.Len()
}

// Dropped returns how many events a bounded buffer has discarded.
func (c *Client) Dropped() uint64 {
	return c.buffer.Dropped()
}

// SessionID returns the id fixed at construction.
func (c *Client) SessionID() string {
	return c.session.ID()
}

// UserID returns the identity attached to the next event, empty if none.
func (c *Client) UserID() string {
	return c.session.Current().UserID
}

// Traits returns a copy of the traits passed to the last Identify.
func (c *Client) Traits() Properties {
	traits := c.session.Current().Traits
	out := make(Properties, len(traits))
	for k, v := range traits {
		out[k] = v
	}
	return out
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}
