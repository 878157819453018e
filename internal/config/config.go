package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "FEEDBACKBOX"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = DatabaseDriverSQLite
	defaultDatabaseDSN     = "feedbackbox.db"
	defaultLogLevel        = "info"
	defaultCookieName      = "app_session"
	defaultSessionIssuer   = "tauth"
	defaultServiceName     = "feedbackbox-api"
	defaultServiceVersion  = "dev"
	defaultMutationsPerSec = 1.0
	defaultMutationBurst   = 5
	defaultSessionTTL      = 24 * time.Hour
	defaultSessionLeeway   = 30 * time.Second
)

const (
	// DatabaseDriverSQLite selects the embedded SQLite driver.
	DatabaseDriverSQLite = "sqlite"
	// DatabaseDriverPostgres selects the PostgreSQL driver.
	DatabaseDriverPostgres = "postgres"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabaseDriver     string
	DatabaseDSN        string
	LogLevel           string
	TAuthSigningKey    string
	TAuthCookieName    string
	TAuthIssuer        string
	SessionTTL         time.Duration
	SessionLeeway      time.Duration
	CORSAllowedOrigins []string
	MutationsPerSecond float64
	MutationBurst      int
	OTel               OTelConfig
}

// OTelConfig describes the OTLP trace export target. An empty endpoint disables export.
type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

// Enabled reports whether spans should be exported.
func (c OTelConfig) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", defaultSessionIssuer)
	configViper.SetDefault("tauth.session_ttl", defaultSessionTTL)
	configViper.SetDefault("tauth.leeway", defaultSessionLeeway)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
	configViper.SetDefault("ratelimit.mutations_per_second", defaultMutationsPerSec)
	configViper.SetDefault("ratelimit.burst", defaultMutationBurst)
	configViper.SetDefault("otel.service_name", defaultServiceName)
	configViper.SetDefault("otel.service_version", defaultServiceVersion)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		LogLevel:           configViper.GetString("log.level"),
		TAuthSigningKey:    configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:    configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:        configViper.GetString("tauth.issuer"),
		SessionTTL:         configViper.GetDuration("tauth.session_ttl"),
		SessionLeeway:      configViper.GetDuration("tauth.leeway"),
		CORSAllowedOrigins: configViper.GetStringSlice("cors.allowed_origins"),
		MutationsPerSecond: configViper.GetFloat64("ratelimit.mutations_per_second"),
		MutationBurst:      configViper.GetInt("ratelimit.burst"),
		OTel: OTelConfig{
			Endpoint:       configViper.GetString("otel.endpoint"),
			Headers:        configViper.GetString("otel.headers"),
			ServiceName:    configViper.GetString("otel.service_name"),
			ServiceVersion: configViper.GetString("otel.service_version"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite, DatabaseDriverPostgres:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DatabaseDriverSQLite, DatabaseDriverPostgres, c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if strings.TrimSpace(c.TAuthIssuer) == "" {
		return fmt.Errorf("tauth.issuer is required")
	}
	if c.MutationsPerSecond <= 0 {
		return fmt.Errorf("ratelimit.mutations_per_second must be positive")
	}
	if c.MutationBurst <= 0 {
		return fmt.Errorf("ratelimit.burst must be positive")
	}
	return nil
}
