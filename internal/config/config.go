// Package config loads broker settings from the environment.
package config

import (
	"errors"
	"fmt"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/vekjja/espwifi-broker/internal/publicurl"
)

// Config holds the broker configuration.
type Config struct {
	ListenAddr    string `env:"LISTEN_ADDR,default=:8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	// DeviceAuthToken gates device connections when set.
	DeviceAuthToken string `env:"DEVICE_AUTH_TOKEN"`
	// UIAuthToken gates UI connections to devices that supplied no secret.
	UIAuthToken string `env:"UI_AUTH_TOKEN"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
	LogFile  string `env:"LOG_FILE"`

	JournalDBPath     string `env:"JOURNAL_DB_PATH"`
	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX,default=espwifi.broker"`

	MaxFrameBytes int64 `env:"MAX_FRAME_BYTES,default=8388608"`
}

// Load reads an optional .env file, decodes the environment and validates
// the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	cfg := &Config{}
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that decoding alone cannot.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: LISTEN_ADDR must not be empty")
	}
	if c.MaxFrameBytes <= 0 {
		return fmt.Errorf("config: MAX_FRAME_BYTES must be positive, got %d", c.MaxFrameBytes)
	}
	if _, err := publicurl.NewResolver(c.PublicBaseURL); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
