// Package config loads pairlink configuration from a JSON5 or YAML file
// with environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when neither --config nor PAIRLINK_CONFIG is set.
const DefaultConfigPath = "~/.pairlink/config.json5"

// Config is the root configuration.
type Config struct {
	Backend   BackendConfig   `json:"backend" yaml:"backend"`
	Poll      PollConfig      `json:"poll" yaml:"poll"`
	Marker    MarkerConfig    `json:"marker" yaml:"marker"`
	Phone     PhoneConfig     `json:"phone" yaml:"phone"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// BackendConfig points at the assistant backend.
type BackendConfig struct {
	URL   string `json:"url" yaml:"url"`
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
	// TokenFromKeyring reads the token from the OS keychain when Token is empty.
	TokenFromKeyring bool        `json:"tokenFromKeyring,omitempty" yaml:"tokenFromKeyring,omitempty"`
	TimeoutSeconds   int         `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	AdminPhoneKey    string      `json:"adminPhoneKey,omitempty" yaml:"adminPhoneKey,omitempty"`
	Paths            PathsConfig `json:"paths,omitempty" yaml:"paths,omitempty"`
	// CodeIntervalSeconds and CodeBurst rate-limit pairing-code requests.
	CodeIntervalSeconds int `json:"codeIntervalSeconds,omitempty" yaml:"codeIntervalSeconds,omitempty"`
	CodeBurst           int `json:"codeBurst,omitempty" yaml:"codeBurst,omitempty"`
}

// PathsConfig overrides backend endpoint paths. Empty fields use the defaults.
type PathsConfig struct {
	Status       string `json:"status,omitempty" yaml:"status,omitempty"`
	PairingCode  string `json:"pairingCode,omitempty" yaml:"pairingCode,omitempty"`
	ApplyConfig  string `json:"applyConfig,omitempty" yaml:"applyConfig,omitempty"`
	FlushSession string `json:"flushSession,omitempty" yaml:"flushSession,omitempty"`
	FactoryReset string `json:"factoryReset,omitempty" yaml:"factoryReset,omitempty"`
}

type PollConfig struct {
	IntervalMs int `json:"intervalMs" yaml:"intervalMs"`
}

// MarkerConfig selects where the phone-save marker is kept.
type MarkerConfig struct {
	Driver string `json:"driver" yaml:"driver"` // file, sqlite, redis, postgres, memory
	// Path defaults to ~/.pairlink/state.json (file) or ~/.pairlink/state.db (sqlite).
	Path        string `json:"path,omitempty" yaml:"path,omitempty"`
	RedisURL    string `json:"redisUrl,omitempty" yaml:"redisUrl,omitempty"`
	PostgresDSN string `json:"postgresDsn,omitempty" yaml:"postgresDsn,omitempty"`
	Key         string `json:"key,omitempty" yaml:"key,omitempty"`
	TTLSeconds  int    `json:"ttlSeconds" yaml:"ttlSeconds"`
}

type PhoneConfig struct {
	// DefaultPrefix prefills the country prefix in prompts (e.g. "+1").
	DefaultPrefix string `json:"defaultPrefix,omitempty" yaml:"defaultPrefix,omitempty"`
}

// ServerConfig is the local HTTP/WebSocket surface of "pairlink serve".
type ServerConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	Token          string   `json:"token,omitempty" yaml:"token,omitempty"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`
	// ActionsPerMinute limits mutating requests per client IP (0 disables).
	ActionsPerMinute int `json:"actionsPerMinute,omitempty" yaml:"actionsPerMinute,omitempty"`
}

// TelemetryConfig enables OTLP trace export (binaries built with -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Protocol    string            `json:"protocol,omitempty" yaml:"protocol,omitempty"` // grpc (default) or http
	Insecure    bool              `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	ServiceName string            `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	Headers     map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// Default returns a config with every default filled in.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                 "http://127.0.0.1:4098",
			TimeoutSeconds:      15,
			AdminPhoneKey:       "whatsapp.adminPhone",
			CodeIntervalSeconds: 10,
			CodeBurst:           2,
		},
		Poll: PollConfig{IntervalMs: 3000},
		Marker: MarkerConfig{
			Driver:     "file",
			TTLSeconds: 300,
		},
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             18791,
			ActionsPerMinute: 30,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the config at path on top of Default and applies PAIRLINK_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json5.Unmarshal(data, cfg)
	}
}

// Save writes cfg to path as indented JSON (YAML for .yaml/.yml).
func Save(path string, cfg *Config) error {
	path = ExpandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) applyEnv() {
	envStr("PAIRLINK_BACKEND_URL", &c.Backend.URL)
	envStr("PAIRLINK_BACKEND_TOKEN", &c.Backend.Token)
	envInt("PAIRLINK_BACKEND_TIMEOUT_SECONDS", &c.Backend.TimeoutSeconds)
	envInt("PAIRLINK_POLL_INTERVAL_MS", &c.Poll.IntervalMs)
	envStr("PAIRLINK_MARKER_DRIVER", &c.Marker.Driver)
	envStr("PAIRLINK_MARKER_PATH", &c.Marker.Path)
	envStr("PAIRLINK_REDIS_URL", &c.Marker.RedisURL)
	envStr("PAIRLINK_POSTGRES_DSN", &c.Marker.PostgresDSN)
	envInt("PAIRLINK_MARKER_TTL_SECONDS", &c.Marker.TTLSeconds)
	envStr("PAIRLINK_PHONE_PREFIX", &c.Phone.DefaultPrefix)
	envStr("PAIRLINK_HOST", &c.Server.Host)
	envInt("PAIRLINK_PORT", &c.Server.Port)
	envStr("PAIRLINK_SERVER_TOKEN", &c.Server.Token)
	envStr("PAIRLINK_OTEL_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("PAIRLINK_LOG_LEVEL", &c.Log.Level)
	envStr("PAIRLINK_LOG_FORMAT", &c.Log.Format)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	switch c.Marker.Driver {
	case "", "file", "sqlite", "redis", "postgres", "memory":
	default:
		return fmt.Errorf("marker.driver: unknown driver %q", c.Marker.Driver)
	}
	if c.Marker.Driver == "redis" && c.Marker.RedisURL == "" {
		return fmt.Errorf("marker.redisUrl is required for the redis driver")
	}
	if c.Marker.Driver == "postgres" && c.Marker.PostgresDSN == "" {
		return fmt.Errorf("marker.postgresDsn is required for the postgres driver")
	}
	if c.Poll.IntervalMs < 0 || c.Marker.TTLSeconds < 0 || c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("intervals and timeouts must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
	}
	return nil
}

// PollInterval returns the status poll period.
func (c *Config) PollInterval() time.Duration {
	if c.Poll.IntervalMs <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// MarkerTTL returns how long a save marker stays valid.
func (c *Config) MarkerTTL() time.Duration {
	if c.Marker.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Marker.TTLSeconds) * time.Second
}

// BackendTimeout returns the per-request timeout.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// CodeInterval returns the minimum spacing of pairing-code requests.
func (c *Config) CodeInterval() time.Duration {
	if c.Backend.CodeIntervalSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Backend.CodeIntervalSeconds) * time.Second
}

// MarkerPath returns the marker file or database path for the local
// drivers, "" for the others.
func (c *Config) MarkerPath() string {
	switch c.Marker.Driver {
	case "redis", "postgres", "memory":
		return ""
	}
	if c.Marker.Path != "" {
		return ExpandHome(c.Marker.Path)
	}
	if c.Marker.Driver == "sqlite" {
		return ExpandHome("~/.pairlink/state.db")
	}
	return ExpandHome("~/.pairlink/state.json")
}

// ListenAddr returns host:port for the local server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
