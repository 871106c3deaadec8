package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	IdentityConfig
	StoreConfig
	APIConfig
	DevConfig
	Validate() error
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetPort() string
}

type IdentityConfig interface {
	GetIdentityEndpoint() string
	GetClientID() string
	GetRefreshMargin() time.Duration
	GetRequestTimeout() time.Duration
}

type StoreConfig interface {
	GetStoreDriver() string
	GetStorePath() string
	GetRedisURL() string
	GetNamespace() string
}

type APIConfig interface {
	GetAPIBaseURL() string
}

// DevConfig configures the local development server.
type DevConfig interface {
	GetDevUserEmail() string
	GetDevUserPassword() string
	GetDevTokenLifetime() time.Duration
}

type mainConfig struct {
	v *viper.Viper
}

var _ Config = mainConfig{}

// New returns a Config reading from v. Environment variables prefixed with INVOICE_
// override defaults, and flags bound to v override both.
func New(v *viper.Viper) Config {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return mainConfig{v: v}
}

// settings is the validated view of the values the session layer cannot run without.
type settings struct {
	IdentityEndpoint string `validate:"required,url"`
	ClientID         string `validate:"required"`
	StoreDriver      string `validate:"oneof=memory file sqlite redis"`
	RedisURL         string `validate:"required_if=StoreDriver redis"`
	APIBaseURL       string `validate:"omitempty,url"`
}

func (c mainConfig) Validate() error {
	return validator.New().Struct(settings{
		IdentityEndpoint: c.GetIdentityEndpoint(),
		ClientID:         c.GetClientID(),
		StoreDriver:      c.GetStoreDriver(),
		RedisURL:         c.GetRedisURL(),
		APIBaseURL:       c.GetAPIBaseURL(),
	})
}
