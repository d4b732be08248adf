// Package config resolves brokerage configuration from a persisted store
// with environment-variable overrides.
package config

import (
	"os"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jhonabreul/krakenbrokerage/exchanges/account"
)

// Persisted configuration keys
const (
	APIKeyConfig           = "api-key"
	APISecretConfig        = "api-secret"
	VerificationTierConfig = "verification-tier"
	OTPSecretConfig        = "otp-secret"
	RESTEndpointConfig     = "rest-endpoint"
	WSEndpointConfig       = "websocket-endpoint"
)

// Environment variables overriding the persisted store
const (
	APIKeyEnv           = "KRAKEN_API_KEY"
	APISecretEnv        = "KRAKEN_API_SECRET"
	VerificationTierEnv = "KRAKEN_VERIFICATION_TIER"
	OTPSecretEnv        = "KRAKEN_OTP_SECRET"
)

// Default endpoints
const (
	DefaultRESTEndpoint = "https://api.kraken.com"
	DefaultWSEndpoint   = "wss://ws-auth.kraken.com"
)

var envOverrides = map[string]string{
	APIKeyConfig:           APIKeyEnv,
	APISecretConfig:        APISecretEnv,
	VerificationTierConfig: VerificationTierEnv,
	OTPSecretConfig:        OTPSecretEnv,
}

// Config is the resolved brokerage configuration
type Config struct {
	Credentials       account.Credentials
	RESTEndpoint      string
	WebsocketEndpoint string

	store *viper.Viper
	log   *zap.Logger
}

// Load resolves configuration, sourcing each credential with precedence:
// explicit environment variable over the persisted store. Absent credentials
// are logged and left empty so read-only sandbox use still works; they are
// never an error here.
func Load(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	v := viper.New()
	v.SetDefault(RESTEndpointConfig, DefaultRESTEndpoint)
	v.SetDefault(WSEndpointConfig, DefaultWSEndpoint)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, err
			}
			logger.Info("no persisted config found, relying on environment", zap.String("path", path))
		}
	}

	// Write resolved env values back into the store so later readers see
	// one consistent view.
	for key, env := range envOverrides {
		if value := os.Getenv(env); value != "" {
			v.Set(key, value)
		}
		if !v.IsSet(key) || v.GetString(key) == "" {
			logger.Warn("configuration value not set", zap.String("key", key), zap.String("env", env))
		}
	}

	return &Config{
		Credentials: account.Credentials{
			Key:              v.GetString(APIKeyConfig),
			Secret:           v.GetString(APISecretConfig),
			VerificationTier: v.GetString(VerificationTierConfig),
			OTPSecret:        v.GetString(OTPSecretConfig),
		},
		RESTEndpoint:      v.GetString(RESTEndpointConfig),
		WebsocketEndpoint: v.GetString(WSEndpointConfig),
		store:             v,
		log:               logger,
	}, nil
}

// GetString reads a raw value from the resolved store
func (c *Config) GetString(key string) string {
	if c.store == nil {
		return ""
	}
	return c.store.GetString(key)
}

// OneTimePassword generates the current TOTP code when an OTP secret is
// configured, otherwise returns an empty string.
func (c *Config) OneTimePassword() (string, error) {
	if c.Credentials.OTPSecret == "" {
		return "", nil
	}
	return totp.GenerateCode(c.Credentials.OTPSecret, time.Now())
}
