package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "INVOICE"

// Keys understood by the viper instance behind Config. Environment variables use the
// INVOICE_ prefix with dots replaced by underscores (idp.client_id -> INVOICE_IDP_CLIENT_ID).
const (
	KeyAppName          = "app_name"
	KeyEnv              = "env"
	KeyLogLevel         = "log_level"
	KeyPort             = "port"
	KeyIdentityEndpoint = "idp.endpoint"
	KeyClientID         = "idp.client_id"
	KeyRefreshMargin    = "idp.refresh_margin"
	KeyRequestTimeout   = "idp.timeout"
	KeyStoreDriver      = "store.driver"
	KeyStorePath        = "store.path"
	KeyRedisURL         = "store.redis_url"
	KeyNamespace        = "store.namespace"
	KeyAPIBaseURL       = "api.base_url"
	KeyDevUserEmail     = "dev.user_email"
	KeyDevUserPassword  = "dev.user_password"
	KeyDevTokenLifetime = "dev.token_lifetime"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAppName, "Invoice Session")
	v.SetDefault(KeyEnv, "DEV")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyIdentityEndpoint, "http://localhost:8080/idp")
	v.SetDefault(KeyClientID, "invoice-web")
	v.SetDefault(KeyRefreshMargin, 60*time.Second)
	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyStoreDriver, "file")
	v.SetDefault(KeyNamespace, "default")
	v.SetDefault(KeyAPIBaseURL, "http://localhost:8080/api")
	v.SetDefault(KeyDevUserEmail, "owner@acme.test")
	v.SetDefault(KeyDevUserPassword, "password")
	v.SetDefault(KeyDevTokenLifetime, time.Hour)
}

// LoadDotEnv loads path into the process environment when the file exists.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func (c mainConfig) GetAppName() string {
	return c.v.GetString(KeyAppName)
}

func (c mainConfig) GetEnv() string {
	env := c.v.GetString(KeyEnv)
	if env == "" {
		return "DEV"
	}
	return env
}

func (c mainConfig) GetLogLevel() string {
	return c.v.GetString(KeyLogLevel)
}

func (c mainConfig) GetPort() string {
	port := c.v.GetString(KeyPort)
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (c mainConfig) GetIdentityEndpoint() string {
	return c.v.GetString(KeyIdentityEndpoint)
}

func (c mainConfig) GetClientID() string {
	return c.v.GetString(KeyClientID)
}

func (c mainConfig) GetRefreshMargin() time.Duration {
	return c.v.GetDuration(KeyRefreshMargin)
}

func (c mainConfig) GetRequestTimeout() time.Duration {
	return c.v.GetDuration(KeyRequestTimeout)
}

func (c mainConfig) GetStoreDriver() string {
	return c.v.GetString(KeyStoreDriver)
}

// GetStorePath is the file store directory or the sqlite database path. Empty means the
// driver's default location.
func (c mainConfig) GetStorePath() string {
	return c.v.GetString(KeyStorePath)
}

func (c mainConfig) GetRedisURL() string {
	return c.v.GetString(KeyRedisURL)
}

func (c mainConfig) GetNamespace() string {
	return c.v.GetString(KeyNamespace)
}

func (c mainConfig) GetAPIBaseURL() string {
	return c.v.GetString(KeyAPIBaseURL)
}

func (c mainConfig) GetDevUserEmail() string {
	return c.v.GetString(KeyDevUserEmail)
}

func (c mainConfig) GetDevUserPassword() string {
	return c.v.GetString(KeyDevUserPassword)
}

func (c mainConfig) GetDevTokenLifetime() time.Duration {
	return c.v.GetDuration(KeyDevTokenLifetime)
}
