package session

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// DefaultUnauthorizedMessage is the reason shown on the login screen when a
// session is torn down because the backend or the credential check rejected it.
const DefaultUnauthorizedMessage = "session expired, please sign in again"

// Config carries every tunable of the lifecycle stack, sourced from the
// environment. Zero-config works: every knob except the storage locations has
// a default.
type Config struct {
	SecureStorePath string `env:"SESSION_SECURE_STORE_PATH"`
	PreferenceDSN   string `env:"SESSION_PREFERENCE_DSN" envDefault:"file:session.db?cache=shared"`

	MaxAttempts         int           `env:"SESSION_MAX_ATTEMPTS"         envDefault:"3"`
	RetryBaseDelay      time.Duration `env:"SESSION_RETRY_BASE_DELAY"     envDefault:"500ms"`
	ProbeInterval       time.Duration `env:"SESSION_PROBE_INTERVAL"       envDefault:"30s"`
	ConnectivityTimeout time.Duration `env:"SESSION_CONNECTIVITY_TIMEOUT" envDefault:"30s"`
	RefreshThreshold    time.Duration `env:"SESSION_REFRESH_THRESHOLD"    envDefault:"5m"`

	UnauthorizedMessage string `env:"SESSION_UNAUTHORIZED_MESSAGE" envDefault:"session expired, please sign in again"`
	PhoneRegion         string `env:"SESSION_PHONE_REGION"         envDefault:"US"`
}

// LoadConfig parses the environment into a Config and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "parse environment config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.RetryBaseDelay, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ProbeInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.ConnectivityTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RefreshThreshold, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.PhoneRegion, validation.Required, validation.Length(2, 2)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid session config")
	}
	return nil
}
