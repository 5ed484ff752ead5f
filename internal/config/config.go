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

// Config holds all the configuration variables for the ledger-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	AuthJWKSURL               string `mapstructure:"AUTH_JWKS_URL"`
	MediaStoreURL             string `mapstructure:"MEDIA_STORE_URL"`
	MediaStoreAPIKey          string `mapstructure:"MEDIA_STORE_API_KEY"`
	FailureRateLimitPerMinute int    `mapstructure:"FAILURE_RATE_LIMIT_PER_MINUTE"`
	FailureIdempotencyTTLMin  int    `mapstructure:"FAILURE_IDEMPOTENCY_TTL_MINUTES"`
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
	viper.SetDefault("SERVER_PORT", "8084")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "pactify:rate_limit")
	viper.SetDefault("FAILURE_RATE_LIMIT_PER_MINUTE", 6)
	viper.SetDefault("FAILURE_IDEMPOTENCY_TTL_MINUTES", 1440)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("AUTH_JWKS_URL", "AUTH_JWKS_URL", "CLERK_JWKS_URL")
	_ = viper.BindEnv("MEDIA_STORE_URL")
	_ = viper.BindEnv("MEDIA_STORE_API_KEY")
	_ = viper.BindEnv("FAILURE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("FAILURE_IDEMPOTENCY_TTL_MINUTES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
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
	config.AuthJWKSURL = strings.TrimSpace(config.AuthJWKSURL)
	if config.AuthJWKSURL == "" {
		config.AuthJWKSURL = strings.TrimSpace(os.Getenv("CLERK_JWKS_URL"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "pactify:rate_limit"
	}
	config.MediaStoreURL = strings.TrimSpace(config.MediaStoreURL)
	config.MediaStoreAPIKey = strings.TrimSpace(config.MediaStoreAPIKey)

	if config.FailureRateLimitPerMinute <= 0 {
		config.FailureRateLimitPerMinute = 6
	}
	if config.FailureIdempotencyTTLMin <= 0 {
		config.FailureIdempotencyTTLMin = 1440
	}

	return
}
