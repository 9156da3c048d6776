// Package config loads and validates resolver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Session modes for portal.session_mode.
const (
	SessionModeHTTP    = "http"
	SessionModeBrowser = "browser"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	DB       DBConfig       `mapstructure:"db"`
	Portal   PortalConfig   `mapstructure:"portal"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Resolver ResolverConfig `mapstructure:"resolver"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DBConfig controls access to Postgres. An empty DSN selects the in-memory store.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// MaxConnLifetime returns the configured connection lifetime.
func (c DBConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}

// PortalConfig describes how to reach the postal-code portal.
type PortalConfig struct {
	BaseURL               string  `mapstructure:"base_url"`
	PortletID             string  `mapstructure:"portlet_id"`
	UserAgent             string  `mapstructure:"user_agent"`
	SessionTimeoutSeconds int     `mapstructure:"session_timeout_seconds"`
	LookupTimeoutSeconds  int     `mapstructure:"lookup_timeout_seconds"`
	RequestsPerSecond     float64 `mapstructure:"requests_per_second"`
	Burst                 int     `mapstructure:"burst"`
	SessionMode           string  `mapstructure:"session_mode"`
}

// SessionTimeout returns the session budget.
func (c PortalConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// LookupTimeout returns the lookup budget.
func (c PortalConfig) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutSeconds) * time.Second
}

// BrowserConfig governs the headless Chrome pool used in browser session mode.
type BrowserConfig struct {
	MaxHandles     int  `mapstructure:"max_handles"`
	Headless       bool `mapstructure:"headless"`
	MaxAgeMinutes  int  `mapstructure:"max_age_minutes"`
	MaxIdleMinutes int  `mapstructure:"max_idle_minutes"`
}

// RedisConfig configures the optional hot result cache.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	TTLHours int    `mapstructure:"ttl_hours"`
}

// TTL returns the cache entry lifetime.
func (c RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// ResolverConfig tunes the resolution engine.
type ResolverConfig struct {
	PersistTimeoutSeconds int `mapstructure:"persist_timeout_seconds"`
}

// PersistTimeout returns the write-back budget after a scrape.
func (c ResolverConfig) PersistTimeout() time.Duration {
	return time.Duration(c.PersistTimeoutSeconds) * time.Second
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RESOLVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("portal.base_url", "https://www.correos.cl/codigo-postal")
	v.SetDefault("portal.portlet_id", "cl_cch_codigopostal_portlet_CodigoPostalPortlet_INSTANCE_MloJQpiDsCw9")
	v.SetDefault("portal.user_agent", "")
	v.SetDefault("portal.session_timeout_seconds", 10)
	v.SetDefault("portal.lookup_timeout_seconds", 15)
	v.SetDefault("portal.requests_per_second", 2.0)
	v.SetDefault("portal.burst", 4)
	v.SetDefault("portal.session_mode", SessionModeHTTP)
	v.SetDefault("browser.max_handles", 2)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_age_minutes", 120)
	v.SetDefault("browser.max_idle_minutes", 30)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl_hours", 24)
	v.SetDefault("resolver.persist_timeout_seconds", 10)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url must be set")
	}
	if c.Portal.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("portal.session_timeout_seconds must be > 0")
	}
	if c.Portal.LookupTimeoutSeconds <= 0 {
		return fmt.Errorf("portal.lookup_timeout_seconds must be > 0")
	}
	if c.Portal.RequestsPerSecond < 0 {
		return fmt.Errorf("portal.requests_per_second must be >= 0")
	}
	switch c.Portal.SessionMode {
	case SessionModeHTTP:
	case SessionModeBrowser:
		if c.Browser.MaxHandles < 0 {
			return fmt.Errorf("browser.max_handles must be >= 0")
		}
	default:
		return fmt.Errorf("portal.session_mode must be %q or %q", SessionModeHTTP, SessionModeBrowser)
	}
	if c.DB.DSN != "" && c.DB.MinConns > c.DB.MaxConns {
		return fmt.Errorf("db.min_conns must not exceed db.max_conns")
	}
	if c.Redis.URL != "" && c.Redis.TTLHours <= 0 {
		return fmt.Errorf("redis.ttl_hours must be > 0 when redis is enabled")
	}
	if c.Resolver.PersistTimeoutSeconds <= 0 {
		return fmt.Errorf("resolver.persist_timeout_seconds must be > 0")
	}
	return nil
}
