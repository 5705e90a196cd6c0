/*
Package config loads server configuration.

PURPOSE:
  Reads config.yaml (viper) with sane defaults, overridable through
  BILLING_* environment variables. Command-line flags in cmd/server take
  precedence over everything here.

FILE FORMAT (config.yaml):
  server:
    port: 8080
  database:
    path: billing.db
  auth:
    jwt_secret: change-me
  cors:
    allowed_origins:
      - http://localhost:5173
  scenarios:
    enabled: false
*/
package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config is the resolved server configuration.
type Config struct {
	Port             int
	DatabasePath     string
	JWTSecret        string
	AllowedOrigins   []string
	ScenariosEnabled bool
}

// Load reads config.yaml from the working directory, applying defaults
// for anything missing. A missing file is not an error; a missing JWT
// secret is.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "billing.db")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("scenarios.enabled", false)

	v.SetEnvPrefix("BILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		Port:             v.GetInt("server.port"),
		DatabasePath:     v.GetString("database.path"),
		JWTSecret:        v.GetString("auth.jwt_secret"),
		AllowedOrigins:   v.GetStringSlice("cors.allowed_origins"),
		ScenariosEnabled: v.GetBool("scenarios.enabled"),
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret must be set (config.yaml or BILLING_AUTH_JWT_SECRET)")
	}
	return cfg, nil
}
