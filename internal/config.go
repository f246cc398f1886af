package internal

import (
	"fmt"
	"time"
)

const (
	BackendEmbedded = "embedded"
	BackendRemote   = "remote"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,required=true"`

	// embedded | remote
	BackendMode    string `env:"BACKEND_MODE,default=embedded"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/rental-chat"`

	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE,default=rentalchat"`
	NatsURL       string `env:"NATS_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`

	IdentityToken  string `env:"IDENTITY_TOKEN,required=true"`
	IdentitySecret string `env:"IDENTITY_SECRET,required=true"`

	// Deep-link preselection of the conversation partner.
	PartnerID string `env:"PARTNER_ID"`
	// Explicit connection id; when empty the participant pair is used.
	ConnectionID string `env:"CONNECTION_ID"`

	NotificationPollInterval time.Duration `env:"NOTIFICATION_POLL_INTERVAL,default=60s"`
	RestartInterval          time.Duration `env:"RESTART_INTERVAL,default=200ms"`
}

// Validate catches mode/parameter mismatches before anything connects.
func (c Config) Validate() error {
	switch c.BackendMode {
	case BackendEmbedded:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required in embedded mode")
		}
	case BackendRemote:
		if c.MongoURI == "" || c.NatsURL == "" || c.RedisAddr == "" {
			return fmt.Errorf("MONGO_URI, NATS_URL and REDIS_ADDR are required in remote mode")
		}
	default:
		return fmt.Errorf("unknown BACKEND_MODE %q", c.BackendMode)
	}
	return nil
}
