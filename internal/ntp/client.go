package ntp

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"
	"github.com/sirupsen/logrus"
)

// Client corrects the local clock by the offset measured against NTP
// servers. Until the first successful sync it reports local time.
type Client struct {
	servers      []string
	syncInterval time.Duration
	queryTimeout time.Duration
	offset       atomic.Int64 // stored as nanoseconds (time.Duration)
	lastSync     atomic.Int64
	stopCh       chan struct{}
	done         chan struct{}
	started      atomic.Bool
	stopped      atomic.Bool

	query func(server string, opts ntp.QueryOptions) (*ntp.Response, error)
}

type Options struct {
	Servers      []string
	SyncInterval time.Duration
	QueryTimeout time.Duration
}

func NewClient(opts Options) *Client {
	if len(opts.Servers) == 0 {
		opts.Servers = []string{
			"time.google.com",
			"time.cloudflare.com",
			"pool.ntp.org",
		}
	}

	if opts.SyncInterval == 0 {
		opts.SyncInterval = 5 * time.Minute
	}

	if opts.QueryTimeout == 0 {
		opts.QueryTimeout = 5 * time.Second
	}

	return &Client{
		servers:      opts.Servers,
		syncInterval: opts.SyncInterval,
		queryTimeout: opts.QueryTimeout,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		query:        ntp.QueryWithOptions,
	}
}

// Start launches the background sync loop. The first sync happens inside
// the loop so Start never blocks on the network.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		logrus.WithField("prefix", "ntp").Warn("NTP client already started")
		return
	}

	logrus.WithFields(logrus.Fields{
		"prefix":        "ntp",
		"servers":       c.servers,
		"sync_interval": c.syncInterval,
	}).Info("Starting NTP client")

	go c.syncLoop(ctx)
}

// Stop ends the sync loop and waits for it. Safe to call more than once.
func (c *Client) Stop() {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}
	close(c.stopCh)
	if c.started.Load() {
		<-c.done
	}
	logrus.WithField("prefix", "ntp").Info("NTP client stopped")
}

func (c *Client) syncLoop(ctx context.Context) {
	defer close(c.done)

	c.syncOnce()

	ticker := time.NewTicker(c.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.syncOnce()
		}
	}
}

func (c *Client) syncOnce() bool {
	for _, server := range c.servers {
		select {
		case <-c.stopCh:
			return false
		default:
		}
		if c.trySyncWithServer(server) {
			return true
		}
	}

	logrus.WithField("prefix", "ntp").Warn("Failed to synchronize with any NTP server, using local time")
	return false
}

func (c *Client) trySyncWithServer(server string) bool {
	log := logrus.WithFields(logrus.Fields{
		"prefix": "ntp",
		"server": server,
	})

	response, err := c.query(server, ntp.QueryOptions{Timeout: c.queryTimeout})
	if err != nil {
		log.WithError(err).Debug("Failed to query NTP server")
		return false
	}

	if err := response.Validate(); err != nil {
		log.WithError(err).Debug("Invalid response from NTP server")
		return false
	}

	c.offset.Store(int64(response.ClockOffset))
	c.lastSync.Store(time.Now().Unix())

	log.WithFields(logrus.Fields{
		"offset":    response.ClockOffset,
		"precision": response.RTT / 2,
		"rtt":       response.RTT,
	}).Info("Successfully synchronized with NTP server")
	return true
}

// Offset returns the last measured difference between NTP and local time.
func (c *Client) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

// LastSync returns when the offset was last refreshed, zero if never.
func (c *Client) LastSync() time.Time {
	ts := c.lastSync.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// Now returns local time adjusted by the measured offset.
func (c *Client) Now() time.Time {
	return time.Now().Add(c.Offset())
}
