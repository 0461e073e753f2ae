package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
	"github.com/tonkeeper/analytics/event"
	"github.com/tonkeeper/analytics/internal"
)

const (
	eventsPath   = "/api/v1/events"
	apiKeyHeader = "x-api-key"

	defaultTimeout = 10 * time.Second
)

// HTTPOptions configures an HTTPChannel.
type HTTPOptions struct {
	APIURL string
	APIKey string
	// Timeout bounds one Send including in-attempt retries.
	Timeout time.Duration
	// MaxRetries is the number of extra tries inside one Send for
	// transport errors, 429 and 5xx responses.
	MaxRetries   uint64
	RetryBackoff time.Duration
	Client       *http.Client
}

// HTTPChannel posts batches to {APIURL}/api/v1/events.
type HTTPChannel struct {
	url     string
	apiKey  string
	timeout time.Duration
	retries uint64
	backoff time.Duration
	client  *http.Client
}

// NewHTTPChannel validates the options and builds the channel.
func NewHTTPChannel(opts HTTPOptions) (*HTTPChannel, error) {
	if strings.TrimSpace(opts.APIURL) == "" {
		return nil, errors.New("api url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}

	return &HTTPChannel{
		url:     strings.TrimRight(opts.APIURL, "/") + eventsPath,
		apiKey:  opts.APIKey,
		timeout: opts.Timeout,
		retries: opts.MaxRetries,
		backoff: opts.RetryBackoff,
		client:  opts.Client,
	}, nil
}

// URL returns the endpoint batches are posted to.
func (c *HTTPChannel) URL() string {
	return c.url
}

// Send posts the batch as {"events": [...]}. Any non-2xx status is a failure.
func (c *HTTPChannel) Send(ctx context.Context, batch event.Batch) error {
	if len(batch) == 0 {
		return nil
	}

	payload, err := batch.Encode()
	if err != nil {
		return transportError("failed to marshal analytics batch", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := logrus.WithFields(logrus.Fields{
		"prefix": "HTTPChannel",
		"url":    c.url,
		"events": len(batch),
	})

	backoff := retry.WithMaxRetries(c.retries, retry.NewConstant(c.backoff))
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.post(ctx, payload)
		if err == nil {
			return nil
		}
		if isRetryable(err) && ctx.Err() == nil {
			log.WithError(err).WithField("attempt", attempt).Debug("analytics batch attempt failed")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		var terr *TransportError
		if errors.As(err, &terr) {
			return terr
		}
		return transportError("failed to send analytics batch", err)
	}

	log.Debug("analytics batch delivered")
	return nil
}

func (c *HTTPChannel) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create analytics request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", internal.UserAgent())
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: "failed to send analytics request", Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if err := resp.Body.Close(); err != nil {
			logrus.WithField("prefix", "HTTPChannel").Debugf("failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{
			Op:         "analytics endpoint rejected batch",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("bad status code: %v", resp.StatusCode),
		}
	}
	return nil
}

func isRetryable(err error) bool {
	var terr *TransportError
	if !errors.As(err, &terr) {
		return false
	}
	if terr.StatusCode == 0 {
		return true
	}
	return terr.StatusCode == http.StatusTooManyRequests || terr.StatusCode >= 500
}
