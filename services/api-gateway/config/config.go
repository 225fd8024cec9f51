package config

import "github.com/spf13/viper"

// Config holds typed configuration for the API gateway.
type Config struct {
	LogLevel     string
	HTTPPort     string
	RedisAddr    string
	PostgresDSN  string
	NLPEndpoint  string
	NLPAPIKey    string
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:     v.GetString("log_level"),
		HTTPPort:     v.GetString("http_port"),
		RedisAddr:    v.GetString("redis_addr"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		NLPEndpoint:  v.GetString("nlp_endpoint"),
		NLPAPIKey:    v.GetString("nlp_api_key"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
