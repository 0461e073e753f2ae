package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tonkeeper/analytics/event"
)

type capturedRequest struct {
	method  string
	path    string
	apiKey  string
	ctype   string
	payload struct {
		Events []map[string]interface{} `json:"events"`
	}
}

func TestNewHTTPChannel_RequiresURL(t *testing.T) {
	if _, err := NewHTTPChannel(HTTPOptions{APIKey: "key"}); err == nil {
		t.Error("expected error for missing api url")
	}
}

func TestHTTPChannel_URL(t *testing.T) {
	ch, err := NewHTTPChannel(HTTPOptions{APIURL: "http://collector.local/", APIKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ch.URL() != "http://collector.local/api/v1/events" {
		t.Errorf("unexpected url %s", ch.URL())
	}
}

func TestHTTPChannel_Send(t *testing.T) {
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.apiKey = r.Header.Get("x-api-key")
		got.ctype = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got.payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ch, err := NewHTTPChannel(HTTPOptions{APIURL: srv.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ch.Send(context.Background(), newTestBatch(t, "a", "b")); err != nil {
		t.Fatalf("expected delivery to succeed, got %v", err)
	}

	if got.method != http.MethodPost {
		t.Errorf("expected POST, got %s", got.method)
	}
	if got.path != "/api/v1/events" {
		t.Errorf("expected /api/v1/events, got %s", got.path)
	}
	if got.apiKey != "secret" {
		t.Errorf("expected api key header, got %q", got.apiKey)
	}
	if got.ctype != "application/json" {
		t.Errorf("expected json content type, got %q", got.ctype)
	}
	if len(got.payload.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got.payload.Events))
	}
	if got.payload.Events[0]["eventName"] != "a" || got.payload.Events[1]["eventName"] != "b" {
		t.Errorf("expected events in order, got %v", got.payload.Events)
	}
}

func TestHTTPChannel_EmptyBatchIsNoop(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	ch, _ := NewHTTPChannel(HTTPOptions{APIURL: srv.URL, APIKey: "key"})
	if err := ch.Send(context.Background(), nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request, got %d", calls.Load())
	}
}

func TestHTTPChannel_NonSuccessStatus(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError, http.StatusMovedPermanently} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// a redirect without Location is returned to the caller as is
			w.WriteHeader(status)
		}))

		ch, _ := NewHTTPChannel(HTTPOptions{APIURL: srv.URL, APIKey: "key"})
		err := ch.Send(context.Background(), newTestBatch(t, "a"))
		srv.Close()

		if !errors.Is(err, ErrTransport) {
			t.Errorf("status %d: expected transport error, got %v", status, err)
			continue
		}
		var terr *TransportError
		if errors.As(err, &terr) && terr.StatusCode != status {
			t.Errorf("status %d: expected status code in error, got %d", status, terr.StatusCode)
		}
	}
}

func TestHTTPChannel_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ch, _ := NewHTTPChannel(HTTPOptions{APIURL: url, APIKey: "key"})
	err := ch.Send(context.Background(), newTestBatch(t, "a"))
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestHTTPChannel_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ch, _ := NewHTTPChannel(HTTPOptions{APIURL: srv.URL, APIKey: "key", Timeout: 50 * time.Millisecond})

	start := time.Now()
	err := ch.Send(context.Background(), newTestBatch(t, "a"))
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected transport error on timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected send to give up quickly, took %v", elapsed)
	}
}

func TestHTTPChannel_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch, _ := NewHTTPChannel(HTTPOptions{
		APIURL:       srv.URL,
		APIKey:       "key",
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})

	if err := ch.Send(context.Background(), newTestBatch(t, "a")); err != nil {
		t.Fatalf("expected delivery after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestHTTPChannel_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ch, _ := NewHTTPChannel(HTTPOptions{
		APIURL:       srv.URL,
		APIKey:       "wrong",
		MaxRetries:   5,
		RetryBackoff: time.Millisecond,
	})

	err := ch.Send(context.Background(), newTestBatch(t, "a"))
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 failure, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestHTTPChannel_NoRetriesByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch, _ := NewHTTPChannel(HTTPOptions{APIURL: srv.URL, APIKey: "key"})
	if err := ch.Send(context.Background(), newTestBatch(t, "a")); err == nil {
		t.Error("expected failure")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestFunc_Adapter(t *testing.T) {
	var got int
	var ch Channel = Func(func(_ context.Context, batch event.Batch) error {
		got = len(batch)
		return nil
	})
	if err := ch.Send(context.Background(), newTestBatch(t, "a", "b", "c")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 3 {
		t.Errorf("expected 3 events, got %d", got)
	}
}
