package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server struct {
		Port string `env:"PORT" envDefault:"5250"`

		// Graceful shutdown budget for in-flight requests and queued notifications
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	}

	Database struct {
		// "sqlite" or "postgres"
		Driver string `env:"DB_DRIVER" envDefault:"sqlite"`
		DSN    string `env:"DB_DSN" envDefault:"database/sales.db"`
	}

	Geocoder struct {
		// "ban" (api-adresse.data.gouv.fr) or "nominatim"
		Provider  string        `env:"GEOCODER_PROVIDER" envDefault:"ban"`
		BaseURL   string        `env:"GEOCODER_BASE_URL"`
		UserAgent string        `env:"GEOCODER_USER_AGENT" envDefault:"Valuation Estimator/1.0"`
		Timeout   time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"5s"`

		// Requests per second, 0 keeps the provider default
		RatePerSecond float64 `env:"GEOCODER_RATE_LIMIT" envDefault:"0"`
	}

	Estimation struct {
		Region         string        `env:"ESTIMATION_REGION" envDefault:"lagny-sur-marne"`
		StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
		MinComparables int           `env:"MIN_COMPARABLES" envDefault:"3"`
		MaxComparables int           `env:"MAX_COMPARABLES" envDefault:"10"`
	}

	Notification struct {
		QueueSize        int    `env:"NOTIFY_QUEUE_SIZE" envDefault:"100"`
		NotifyOnEstimate bool   `env:"NOTIFY_ON_ESTIMATE" envDefault:"false"`
		SESRegion        string `env:"SES_REGION"`
		FromEmail        string `env:"NOTIFY_FROM_EMAIL" envDefault:"onboarding@valuation.local"`
		TeamEmail        string `env:"NOTIFY_TEAM_EMAIL"`
		TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
		TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`
	}

	Maintenance struct {
		// Interval between geocoding passes over sales without coordinates, 0 disables it
		GeocodeInterval  time.Duration `env:"GEOCODE_INTERVAL" envDefault:"0"`
		GeocodeBatchSize int           `env:"GEOCODE_BATCH_SIZE" envDefault:"10"`
	}

	// BatchProcessing configures the sales import
	BatchProcessing struct {
		// Maximum number of sales written per transaction
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"500"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"BATCH_RETRY_DELAY" envDefault:"2s"`
	}
}

// LoadConfig reads an optional .env file and then the process environment
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Missing env files are fine, real environment variables still apply
		_ = godotenv.Load(f)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env.Parse cannot express
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Geocoder.Provider {
	case "ban", "nominatim":
	default:
		return fmt.Errorf("unsupported GEOCODER_PROVIDER %q", c.Geocoder.Provider)
	}
	if GetRegionByName(c.Estimation.Region) == nil {
		return fmt.Errorf("unknown ESTIMATION_REGION %q", c.Estimation.Region)
	}
	if c.Estimation.MinComparables < 1 || c.Estimation.MaxComparables < c.Estimation.MinComparables {
		return fmt.Errorf("invalid comparable bounds: min %d, max %d",
			c.Estimation.MinComparables, c.Estimation.MaxComparables)
	}
	if c.Geocoder.RatePerSecond < 0 {
		return fmt.Errorf("GEOCODER_RATE_LIMIT must not be negative")
	}
	if c.Maintenance.GeocodeInterval < 0 {
		return fmt.Errorf("GEOCODE_INTERVAL must not be negative")
	}
	if c.BatchProcessing.MaxBatchSize <= 0 {
		return fmt.Errorf("BATCH_MAX_SIZE must be positive")
	}
	return nil
}
