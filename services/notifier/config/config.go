package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the notifier service.
type Config struct {
	LogLevel      string
	KafkaBrokers  string
	RedisAddr     string
	PostgresDSN   string
	MaxRetries    int
	RetryBase     time.Duration
	RateLimit     int
	RateWindow    time.Duration
	SMTPHost      string
	SMTPPort      int
	SMTPFrom      string
	SMTPUsername  string
	SMTPPassword  string
	TelegramToken string
	LogRetention  time.Duration
	MetricsAddr   string
	OTelEndpoint  string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:      v.GetString("log_level"),
		KafkaBrokers:  v.GetString("kafka_brokers"),
		RedisAddr:     v.GetString("redis_addr"),
		PostgresDSN:   v.GetString("postgres_dsn"),
		MaxRetries:    v.GetInt("max_retries"),
		RetryBase:     v.GetDuration("retry_base"),
		RateLimit:     v.GetInt("rate_limit"),
		RateWindow:    v.GetDuration("rate_window"),
		SMTPHost:      v.GetString("smtp_host"),
		SMTPPort:      v.GetInt("smtp_port"),
		SMTPFrom:      v.GetString("smtp_from"),
		SMTPUsername:  v.GetString("smtp_username"),
		SMTPPassword:  v.GetString("smtp_password"),
		TelegramToken: v.GetString("telegram_token"),
		LogRetention:  v.GetDuration("log_retention"),
		MetricsAddr:   v.GetString("metrics_addr"),
		OTelEndpoint:  v.GetString("otel_endpoint"),
	}
}
