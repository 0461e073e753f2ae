package config

import (
	"log"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/sirupsen/logrus"
)

// Sink kinds accepted by SINK.
const (
	SinkHTTP     = "http"
	SinkRedis    = "redis"
	SinkPostgres = "postgres"
)

var Config = struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"9103"`
	Sink        string `env:"SINK" envDefault:"http"` // http, redis or postgres

	// PostgreSQL related settings
	PostgresURI             string `env:"POSTGRES_URI"`
	PostgresMaxConns        int32  `env:"POSTGRES_MAX_CONNS" envDefault:"4"`
	PostgresMinConns        int32  `env:"POSTGRES_MIN_CONNS" envDefault:"0"`
	PostgresMaxConnLifetime string `env:"POSTGRES_MAX_CONN_LIFETIME" envDefault:"1h"`
	PostgresMaxConnIdleTime string `env:"POSTGRES_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	PostgresLazyConnect     bool   `env:"POSTGRES_LAZY_CONNECT" envDefault:"false"`

	// Redis related settings
	ValkeyURI string `env:"VALKEY_URI"`
	RedisKey  string `env:"REDIS_KEY" envDefault:"analytics:events"`

	// Mock collector settings
	MockPort           int      `env:"MOCK_PORT" envDefault:"8080"`
	MockAPIKey         string   `env:"MOCK_API_KEY"`
	TrustedProxyRanges []string `env:"TRUSTED_PROXY_RANGES" envDefault:"0.0.0.0/0"`

	// Demo producer settings
	DemoEvents   int    `env:"DEMO_EVENTS" envDefault:"100"`
	DemoInterval string `env:"DEMO_INTERVAL" envDefault:"100ms"`
	DemoUserID   string `env:"DEMO_USER_ID" envDefault:"demo-user"`
}{}

func LoadConfig() {
	if err := env.Parse(&Config); err != nil {
		log.Fatalf("config parsing failed: %v\n", err)
	}

	Config.Sink = strings.ToLower(Config.Sink)

	level, err := logrus.ParseLevel(strings.ToLower(Config.LogLevel))
	if err != nil {
		log.Printf("Invalid LOG_LEVEL '%s', using default 'info'. Valid levels: panic, fatal, error, warn, info, debug, trace", Config.LogLevel)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
