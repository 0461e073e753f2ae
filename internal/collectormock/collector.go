// Package collectormock is an in-memory stand-in for the collection
// endpoint. It accepts POST /api/v1/events with an x-api-key header and keeps
// every batch it accepted, for tests and local development.
package collectormock

import (
	"io"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Event is one event as received on the wire.
type Event struct {
	EventName  string                 `json:"eventName"`
	Properties map[string]interface{} `json:"properties"`
	UserID     *string                `json:"userId"`
	SessionID  string                 `json:"sessionId"`
	Timestamp  float64                `json:"timestamp"`
}

type payload struct {
	Events []Event `json:"events"`
}

// Stats summarises what the collector has accepted.
type Stats struct {
	TotalEvents  int            `json:"total_events"`
	TotalBatches int            `json:"total_batches"`
	Rejected     int            `json:"rejected"`
	EventTypes   map[string]int `json:"event_types"`
	Clients      map[string]int `json:"clients"`
}

type Options struct {
	APIKey string
	// Registerer enables request metrics and GET /metrics when set.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	// TrustedProxyRanges are used to attribute batches to a client address.
	TrustedProxyRanges []string
}

// Collector records accepted batches. Failures can be scripted with FailNext.
type Collector struct {
	echo      *echo.Echo
	apiKey    string
	extractor *RealIPExtractor

	mu       sync.RWMutex
	batches  [][]Event
	clients  map[string]int
	rejected int
	failNext int
	status   int
}

func New(opts Options) *Collector {
	logger := log.WithField("prefix", "collectormock")

	extractor, err := NewRealIPExtractor(opts.TrustedProxyRanges)
	if err != nil {
		logger.Warnf("failed to create realIPExtractor: %v, using defaults", err)
		extractor, _ = NewRealIPExtractor([]string{})
	}

	c := &Collector{
		echo:      echo.New(),
		apiKey:    opts.APIKey,
		extractor: extractor,
		clients:   make(map[string]int),
		status:    http.StatusServiceUnavailable,
	}
	c.echo.HideBanner = true
	c.echo.HidePort = true

	if opts.Registerer != nil {
		c.echo.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Subsystem:  "collectormock",
			Registerer: opts.Registerer,
		}))
		gatherer := opts.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		c.echo.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
			Gatherer: gatherer,
		}))
	}

	c.echo.POST("/api/v1/events", c.receive)
	c.echo.GET("/stats", c.stats)
	c.echo.GET("/health", func(ctx echo.Context) error {
		return ctx.String(http.StatusOK, "OK")
	})
	return c
}

// Handler exposes the collector as an http.Handler, e.g. for httptest.
func (c *Collector) Handler() http.Handler {
	return c.echo
}

// Start listens on address until Shutdown.
func (c *Collector) Start(address string) error {
	return c.echo.Start(address)
}

// Echo returns the underlying server.
func (c *Collector) Echo() *echo.Echo {
	return c.echo
}

func (c *Collector) receive(ctx echo.Context) error {
	logger := log.WithField("prefix", "collectormock.receive")

	if c.apiKey != "" && ctx.Request().Header.Get("x-api-key") != c.apiKey {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		return ctx.NoContent(http.StatusUnauthorized)
	}

	c.mu.Lock()
	if c.failNext > 0 {
		c.failNext--
		c.rejected++
		status := c.status
		c.mu.Unlock()
		return ctx.NoContent(status)
	}
	c.mu.Unlock()

	body, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		logger.Errorf("failed to read body: %v", err)
		return ctx.NoContent(http.StatusBadRequest)
	}

	var p payload
	if err := sonic.Unmarshal(body, &p); err != nil {
		logger.Errorf("failed to unmarshal events: %v", err)
		return ctx.NoContent(http.StatusBadRequest)
	}

	client := c.extractor.Extract(ctx.Request())

	c.mu.Lock()
	c.batches = append(c.batches, p.Events)
	c.clients[client] += len(p.Events)
	total := 0
	for _, b := range c.batches {
		total += len(b)
	}
	c.mu.Unlock()

	logger.WithFields(log.Fields{
		"client": client,
		"events": len(p.Events),
		"total":  total,
	}).Debug("received batch")

	// Return 202 Accepted like the real collection service
	return ctx.NoContent(http.StatusAccepted)
}

func (c *Collector) stats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Stats())
}

// FailNext makes the next n requests fail with status.
func (c *Collector) FailNext(n int, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
	c.status = status
}

// Batches returns a copy of every accepted batch in arrival order.
func (c *Collector) Batches() [][]Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([][]Event, len(c.batches))
	for i, b := range c.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

// Events returns every accepted event in arrival order.
func (c *Collector) Events() []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Event
	for _, b := range c.batches {
		out = append(out, b...)
	}
	return out
}

// EventCount returns the total number of accepted events.
func (c *Collector) EventCount() int {
	return len(c.Events())
}

func (c *Collector) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		TotalBatches: len(c.batches),
		Rejected:     c.rejected,
		EventTypes:   make(map[string]int),
		Clients:      make(map[string]int, len(c.clients)),
	}
	for _, b := range c.batches {
		for _, e := range b {
			stats.TotalEvents++
			stats.EventTypes[e.EventName]++
		}
	}
	for client, n := range c.clients {
		stats.Clients[client] = n
	}
	return stats
}

// Reset clears all received events.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = nil
	c.clients = make(map[string]int)
	c.rejected = 0
	c.failNext = 0
}
