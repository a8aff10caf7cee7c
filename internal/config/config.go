/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the gateway-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string  `mapstructure:"SERVER_PORT"`
	DatabaseURL          string  `mapstructure:"DATABASE_URL"`
	RedisURL             string  `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string  `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string  `mapstructure:"RABBITMQ_URL"`
	ExchangeAPIBaseURL   string  `mapstructure:"EXCHANGE_API_BASE_URL"`
	ExchangeAPIKey       string  `mapstructure:"EXCHANGE_API_KEY"`

	// Outbound budget. The documented ceiling is global to the upstream
	// account; each instance dispatches at ceiling * headroom% / instance count.
	UpstreamMaxRequestsPerSecond float64 `mapstructure:"UPSTREAM_MAX_REQUESTS_PER_SECOND"`
	UpstreamRateHeadroomPercent  float64 `mapstructure:"UPSTREAM_RATE_HEADROOM_PERCENT"`
	UpstreamInstanceCount        int     `mapstructure:"UPSTREAM_INSTANCE_COUNT"`
	OutboundCallTimeoutSeconds   int     `mapstructure:"OUTBOUND_CALL_TIMEOUT_SECONDS"`
	OutboundMaxAttempts          int     `mapstructure:"OUTBOUND_MAX_ATTEMPTS"`
	OutboundRetryBaseDelayMs     int     `mapstructure:"OUTBOUND_RETRY_BASE_DELAY_MS"`

	// Inbound limits, per client address.
	GeneralRateLimitPerMinute int `mapstructure:"GENERAL_RATE_LIMIT_PER_MINUTE"`
	CreateRateLimitPerMinute  int `mapstructure:"CREATE_RATE_LIMIT_PER_MINUTE"`

	// Background reconciliation sweep for pending transactions.
	StatusSweepIntervalSeconds int `mapstructure:"STATUS_SWEEP_INTERVAL_SECONDS"`
	StatusSweepMinAgeSeconds   int `mapstructure:"STATUS_SWEEP_MIN_AGE_SECONDS"`
	StatusSweepBatchSize       int `mapstructure:"STATUS_SWEEP_BATCH_SIZE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "gateway:rate_limit")
	viper.SetDefault("UPSTREAM_MAX_REQUESTS_PER_SECOND", 5.0)
	viper.SetDefault("UPSTREAM_RATE_HEADROOM_PERCENT", 80.0)
	viper.SetDefault("UPSTREAM_INSTANCE_COUNT", 1)
	viper.SetDefault("OUTBOUND_CALL_TIMEOUT_SECONDS", 30)
	viper.SetDefault("OUTBOUND_MAX_ATTEMPTS", 3)
	viper.SetDefault("OUTBOUND_RETRY_BASE_DELAY_MS", 500)
	viper.SetDefault("GENERAL_RATE_LIMIT_PER_MINUTE", 120)
	viper.SetDefault("CREATE_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("STATUS_SWEEP_INTERVAL_SECONDS", 60)
	viper.SetDefault("STATUS_SWEEP_MIN_AGE_SECONDS", 120)
	viper.SetDefault("STATUS_SWEEP_BATCH_SIZE", 50)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EXCHANGE_API_BASE_URL")
	_ = viper.BindEnv("EXCHANGE_API_KEY")
	_ = viper.BindEnv("UPSTREAM_MAX_REQUESTS_PER_SECOND")
	_ = viper.BindEnv("UPSTREAM_RATE_HEADROOM_PERCENT")
	_ = viper.BindEnv("UPSTREAM_INSTANCE_COUNT")
	_ = viper.BindEnv("OUTBOUND_CALL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("OUTBOUND_MAX_ATTEMPTS")
	_ = viper.BindEnv("OUTBOUND_RETRY_BASE_DELAY_MS")
	_ = viper.BindEnv("GENERAL_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("CREATE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("STATUS_SWEEP_INTERVAL_SECONDS")
	_ = viper.BindEnv("STATUS_SWEEP_MIN_AGE_SECONDS")
	_ = viper.BindEnv("STATUS_SWEEP_BATCH_SIZE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "gateway:rate_limit"
	}

	if config.UpstreamMaxRequestsPerSecond <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive upstream ceiling configured; using default\" value=%f", config.UpstreamMaxRequestsPerSecond)
		config.UpstreamMaxRequestsPerSecond = 5.0
	}
	if config.UpstreamRateHeadroomPercent <= 0 || config.UpstreamRateHeadroomPercent > 100 {
		log.Printf("level=warn component=config msg=\"headroom percent out of range; using 80\" value=%f", config.UpstreamRateHeadroomPercent)
		config.UpstreamRateHeadroomPercent = 80.0
	}
	if config.UpstreamInstanceCount <= 0 {
		config.UpstreamInstanceCount = 1
	}
	if config.OutboundCallTimeoutSeconds <= 0 {
		config.OutboundCallTimeoutSeconds = 30
	}
	if config.OutboundMaxAttempts <= 0 {
		config.OutboundMaxAttempts = 3
	}
	if config.OutboundRetryBaseDelayMs <= 0 {
		config.OutboundRetryBaseDelayMs = 500
	}
	if config.GeneralRateLimitPerMinute <= 0 {
		config.GeneralRateLimitPerMinute = 120
	}
	if config.CreateRateLimitPerMinute <= 0 {
		config.CreateRateLimitPerMinute = 10
	}
	if config.StatusSweepIntervalSeconds <= 0 {
		config.StatusSweepIntervalSeconds = 60
	}
	if config.StatusSweepMinAgeSeconds <= 0 {
		config.StatusSweepMinAgeSeconds = 120
	}
	if config.StatusSweepBatchSize <= 0 {
		config.StatusSweepBatchSize = 50
	}

	return
}

// EffectiveOutboundRate computes this instance's dispatch rate: the documented
// ceiling reduced by the headroom factor and divided across instances.
func (c Config) EffectiveOutboundRate() float64 {
	return c.UpstreamMaxRequestsPerSecond * (c.UpstreamRateHeadroomPercent / 100.0) / float64(c.UpstreamInstanceCount)
}
