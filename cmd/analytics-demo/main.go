package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tonkeeper/analytics"
	"github.com/tonkeeper/analytics/delivery"
	"github.com/tonkeeper/analytics/internal"
	"github.com/tonkeeper/analytics/internal/app"
	"github.com/tonkeeper/analytics/internal/config"
)

type closer interface {
	Close() error
}

func main() {
	log.Info(fmt.Sprintf("analytics-demo %s is running", internal.SDKVersionRevision))
	config.LoadConfig()

	cfg, err := analytics.ConfigFromEnv()
	if err != nil {
		log.Fatalf("failed to load analytics config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []analytics.Option
	var sink app.HealthChecker
	switch config.Config.Sink {
	case config.SinkRedis:
		log.Info("Using Redis sink")
		ch, err := delivery.NewRedisChannel(ctx, config.Config.ValkeyURI, config.Config.RedisKey)
		if err != nil {
			log.Fatalf("failed to create redis channel: %v", err)
		}
		defer closeChannel(ch)
		sink = ch
		opts = append(opts, analytics.WithChannel(ch))
	case config.SinkPostgres:
		log.Info("Using PostgreSQL sink")
		ch, err := delivery.NewPostgresChannel(ctx, postgresOptions())
		if err != nil {
			log.Fatalf("failed to create postgres channel: %v", err)
		}
		defer closeChannel(ch)
		sink = ch
		opts = append(opts, analytics.WithChannel(ch))
	default:
		log.WithField("api_url", cfg.APIURL).Info("Using HTTP sink")
		config.Config.Sink = config.SinkHTTP
	}
	app.SetSinkInfo(config.Config.Sink)

	healthManager := app.NewHealthManager()
	go healthManager.StartHealthMonitoring(ctx, sink)

	opts = append(opts, analytics.WithObserver(func(r analytics.DeliveryReport) {
		if r.Outcome != analytics.Delivered {
			log.WithFields(log.Fields{
				"outcome":  r.Outcome,
				"events":   r.Events,
				"dropped":  r.Dropped,
				"buffered": r.Buffered,
			}).Info("delivery report")
		}
	}))

	client, err := analytics.New(cfg, opts...)
	if err != nil {
		log.Fatalf("failed to create analytics client: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", http.HandlerFunc(healthManager.HealthHandler))
	mux.Handle("/ready", http.HandlerFunc(healthManager.HealthHandler))
	mux.Handle("/version", http.HandlerFunc(app.VersionHandler))
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Fatal(http.ListenAndServe(fmt.Sprintf(":%d", config.Config.MetricsPort), mux))
	}()

	if err := client.Identify(config.Config.DemoUserID, analytics.Properties{"source": "analytics-demo"}); err != nil {
		log.Errorf("identify failed: %v", err)
	}
	produce(ctx, client)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := client.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
		return
	}
	log.WithField("session_id", client.SessionID()).Info("all events delivered")
}

func produce(ctx context.Context, client *analytics.Client) {
	interval, err := time.ParseDuration(config.Config.DemoInterval)
	if err != nil {
		log.Warnf("invalid DEMO_INTERVAL %q, using 100ms", config.Config.DemoInterval)
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; config.Config.DemoEvents <= 0 || i < config.Config.DemoEvents; i++ {
		select {
		case <-ctx.Done():
			log.Info("interrupted, shutting down")
			return
		case <-ticker.C:
		}
		err := client.Track("demo_tick", analytics.Properties{
			"seq":      i,
			"buffered": client.Len(),
		})
		if err != nil {
			log.Errorf("track failed: %v", err)
			return
		}
	}
}

func postgresOptions() delivery.PostgresOptions {
	opts := delivery.PostgresOptions{
		URI:         config.Config.PostgresURI,
		MaxConns:    config.Config.PostgresMaxConns,
		MinConns:    config.Config.PostgresMinConns,
		LazyConnect: config.Config.PostgresLazyConnect,
	}
	if d, err := time.ParseDuration(config.Config.PostgresMaxConnLifetime); err == nil {
		opts.MaxConnLifetime = d
	} else {
		log.Warnf("invalid POSTGRES_MAX_CONN_LIFETIME %q: %v", config.Config.PostgresMaxConnLifetime, err)
	}
	if d, err := time.ParseDuration(config.Config.PostgresMaxConnIdleTime); err == nil {
		opts.MaxConnIdleTime = d
	} else {
		log.Warnf("invalid POSTGRES_MAX_CONN_IDLE_TIME %q: %v", config.Config.PostgresMaxConnIdleTime, err)
	}
	return opts
}

func closeChannel(c closer) {
	if err := c.Close(); err != nil {
		log.Warnf("failed to close channel: %v", err)
	}
}
