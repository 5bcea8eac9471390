package config

import (
	"time"
)

// Config is the root configuration structure
type Config struct {
	Version    int              `yaml:"version"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	History    HistoryConfig    `yaml:"history"`
	Canvas     CanvasConfig     `yaml:"canvas"`
	Generation GenerationConfig `yaml:"generation"`
	Templates  TemplatesConfig  `yaml:"templates"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds database settings. Path is used by sqlite, URL by
// postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url,omitempty"`
}

// HistoryConfig holds undo history settings
type HistoryConfig struct {
	Capacity int `yaml:"capacity"`
}

// CanvasConfig holds editor settings
type CanvasConfig struct {
	// DuplicateOffset is the distance a duplicate is placed from its original
	DuplicateOffset float64 `yaml:"duplicate_offset"`
}

// GenerationConfig points at the generation backend. An empty Endpoint
// leaves every node type to the built-in stub generator.
type GenerationConfig struct {
	Endpoint string    `yaml:"endpoint,omitempty"`
	Timeout  *Duration `yaml:"timeout,omitempty"`
	// APIKeyEnv names the environment variable holding the API key
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	// Types restricts the backend to these node types; empty means all
	Types []string `yaml:"types,omitempty"`
	// StubLatency delays stub answers, useful for exercising loading states
	StubLatency *Duration `yaml:"stub_latency,omitempty"`
}

// TemplatesConfig holds the workflow template directory
type TemplatesConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// LogConfig selects the log level and handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
