package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/tonkeeper/analytics/internal"
	"github.com/tonkeeper/analytics/internal/collectormock"
	"github.com/tonkeeper/analytics/internal/config"
)

func main() {
	log.Info(fmt.Sprintf("analytics-mock %s is running", internal.SDKVersionRevision))
	config.LoadConfig()

	collector := collectormock.New(collectormock.Options{
		APIKey:             config.Config.MockAPIKey,
		Registerer:         prometheus.DefaultRegisterer,
		Gatherer:           prometheus.DefaultGatherer,
		TrustedProxyRanges: config.Config.TrustedProxyRanges,
	})

	go func() {
		address := fmt.Sprintf(":%d", config.Config.MockPort)
		log.WithField("address", address).Info("mock collector listening")
		if err := collector.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("mock collector failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	stats := collector.Stats()
	log.WithFields(log.Fields{
		"events":   stats.TotalEvents,
		"batches":  stats.TotalBatches,
		"rejected": stats.Rejected,
	}).Info("shutting down mock collector")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := collector.Echo().Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}
