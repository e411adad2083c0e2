package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the sync gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Feed     FeedConfig     `yaml:"feed"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BackendConfig selects and locates the tenant storage backend.
type BackendConfig struct {
	// Kind is the backend type. Default: "sqlite".
	Kind string `yaml:"kind"`

	// Name is the database name. For the sqlite backend this becomes the
	// database filename under DataDir. Default: "syncgate".
	Name string `yaml:"name"`

	// Host is the backend host for networked backends. Unused by the sqlite
	// backend but kept so deployments can switch kinds without reshaping
	// their config. Default: "localhost".
	Host string `yaml:"host"`

	// DataDir is the directory holding sqlite database files.
	DataDir string `yaml:"data_dir"`

	// WALMode enables Write-Ahead Logging for better concurrent access.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time to wait for a database lock (seconds).
	BusyTimeout int `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
// The gateway defaults to the permissive wildcard policy the sync clients
// expect: any origin, credentials allowed, all headers and methods exposed.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// SessionConfig contains session cookie settings.
//
// The encryption key is generated fresh at process start and never persisted:
// restarting the gateway invalidates every active session. That is a
// documented non-goal, not an accident.
type SessionConfig struct {
	// CookieName is the name of the session cookie. Default: "syncgate_session".
	CookieName string `yaml:"cookie_name"`

	// TTL is the session cookie lifetime in minutes. Default: 1440 (one day).
	TTL int `yaml:"ttl"`

	// Secure marks the cookie as HTTPS-only.
	Secure bool `yaml:"secure"`
}

// FeedConfig contains change-feed WebSocket settings.
type FeedConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// MQTTConfig contains the optional change-notification broker settings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`

	// TopicPrefix is prepended to per-tenant change topics.
	// Topics take the form {prefix}/{tenant_id}/changes.
	TopicPrefix string `yaml:"topic_prefix"`
}

// InfluxDBConfig contains the optional changeset apply-history settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SYNCGATE_SECTION_KEY
// For example: SYNCGATE_BACKEND_NAME, SYNCGATE_API_PORT
//
// A missing file is not an error; defaults plus environment variables apply.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err):
		// Run on defaults; the gateway is useful with zero configuration.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the documented defaults.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Kind:        "sqlite",
			Name:        "syncgate",
			Host:        "localhost",
			DataDir:     "./data",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
			},
		},
		Session: SessionConfig{
			CookieName: "syncgate_session",
			TTL:        1440,
		},
		Feed: FeedConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		MQTT: MQTTConfig{
			Host:        "localhost",
			Port:        1883,
			ClientID:    "syncgate",
			QoS:         1,
			TopicPrefix: "sync",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SYNCGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Backend
	if v := os.Getenv("SYNCGATE_BACKEND_KIND"); v != "" {
		cfg.Backend.Kind = v
	}
	if v := os.Getenv("SYNCGATE_BACKEND_NAME"); v != "" {
		cfg.Backend.Name = v
	}
	if v := os.Getenv("SYNCGATE_BACKEND_HOST"); v != "" {
		cfg.Backend.Host = v
	}
	if v := os.Getenv("SYNCGATE_BACKEND_DATA_DIR"); v != "" {
		cfg.Backend.DataDir = v
	}

	// API
	if v := os.Getenv("SYNCGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SYNCGATE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("SYNCGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("SYNCGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("SYNCGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SYNCGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// supportedBackends lists the backend kinds this build understands.
var supportedBackends = []string{"sqlite"}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	kindOK := false
	for _, k := range supportedBackends {
		if c.Backend.Kind == k {
			kindOK = true
			break
		}
	}
	if !kindOK {
		errs = append(errs, fmt.Sprintf("backend.kind %q is not supported (supported: %s)",
			c.Backend.Kind, strings.Join(supportedBackends, ", ")))
	}
	if c.Backend.Name == "" {
		errs = append(errs, "backend.name is required")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api.port %d is out of range", c.API.Port))
	}
	if c.Session.TTL < 1 {
		errs = append(errs, "session.ttl must be at least 1 minute")
	}
	if c.MQTT.Enabled && c.MQTT.Host == "" {
		errs = append(errs, "mqtt.host is required when mqtt is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// SessionTTL returns the session lifetime as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTL) * time.Minute
}

// DatabasePath returns the sqlite database file path derived from the
// backend name and data directory.
func (b BackendConfig) DatabasePath() string {
	return filepath.Join(b.DataDir, b.Name+".db")
}
