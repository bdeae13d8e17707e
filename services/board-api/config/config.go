package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the board-api service.
type Config struct {
	LogLevel       string
	HTTPPort       string
	MetricsAddr    string
	PostgresDSN    string
	RedisAddr      string
	KafkaBrokers   []string
	EventsTopic    string
	WebhookURLs    []string
	JWTSecret      string
	AllowedOrigins []string
	OTelEndpoint   string
	RateLimit      int
	RateWindow     time.Duration
	BusBuffer      int
	LoadRefresh    string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		HTTPPort:       v.GetString("http_port"),
		MetricsAddr:    v.GetString("metrics_addr"),
		PostgresDSN:    v.GetString("postgres_dsn"),
		RedisAddr:      v.GetString("redis_addr"),
		KafkaBrokers:   splitList(v.GetString("kafka_brokers")),
		EventsTopic:    v.GetString("events_topic"),
		WebhookURLs:    splitList(v.GetString("webhook_urls")),
		JWTSecret:      v.GetString("jwt_secret"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
		OTelEndpoint:   v.GetString("otel_endpoint"),
		RateLimit:      v.GetInt("rate_limit"),
		RateWindow:     v.GetDuration("rate_window"),
		BusBuffer:      v.GetInt("bus_buffer"),
		LoadRefresh:    v.GetString("load_refresh"),
	}
}

// splitList turns "a, b,,c" into [a b c].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
