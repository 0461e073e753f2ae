package app

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tonkeeper/analytics/internal"
)

// HealthChecker is implemented by delivery sinks that hold a connection.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthManager tracks whether the configured sink is reachable.
type HealthManager struct {
	healthy  int64
	interval time.Duration
	timeout  time.Duration
}

func NewHealthManager() *HealthManager {
	return &HealthManager{
		interval: 5 * time.Second,
		timeout:  2 * time.Second,
	}
}

// UpdateHealthStatus checks the sink and updates metrics. A nil checker
// counts as healthy.
func (h *HealthManager) UpdateHealthStatus(ctx context.Context, sink HealthChecker) {
	var healthStatus int64 = 1
	if sink != nil {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		if err := sink.HealthCheck(ctx); err != nil {
			log.WithField("prefix", "HealthManager").Warnf("sink health check failed: %v", err)
			healthStatus = 0
		}
	}

	atomic.StoreInt64(&h.healthy, healthStatus)
	SinkHealthMetric.Set(float64(healthStatus))
}

// StartHealthMonitoring checks the sink until ctx is cancelled.
func (h *HealthManager) StartHealthMonitoring(ctx context.Context, sink HealthChecker) {
	h.UpdateHealthStatus(ctx, sink)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.UpdateHealthStatus(ctx, sink)
		}
	}
}

func (h *HealthManager) Healthy() bool {
	return atomic.LoadInt64(&h.healthy) == 1
}

func (h *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Build-Commit", internal.SDKVersionRevision)

	if !h.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := fmt.Fprintf(w, `{"status":"unhealthy"}`+"\n"); err != nil {
			log.Errorf("health response write error: %v", err)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, `{"status":"ok"}`+"\n"); err != nil {
		log.Errorf("health response write error: %v", err)
	}
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Build-Commit", internal.SDKVersionRevision)

	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprintf(w, `{"version":"%s"}`+"\n", internal.SDKVersionRevision); err != nil {
		log.Errorf("version response write error: %v", err)
	}
}
