package config

import "github.com/spf13/viper"

// Config holds typed configuration for the sweeper service.
type Config struct {
	LogLevel      string
	KafkaBrokers  string
	RedisAddr     string
	PostgresDSN   string
	SweepSchedule string
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
		SweepSchedule: v.GetString("sweep_schedule"),
		MetricsAddr:   v.GetString("metrics_addr"),
		OTelEndpoint:  v.GetString("otel_endpoint"),
	}
}
