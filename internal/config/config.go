package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Fanout   FanoutConfig   `toml:"fanout"`
	Engine   EngineConfig   `toml:"engine"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type ServerConfig struct {
	HTTPBind    string   `toml:"http_bind"`
	APIEndpoint string   `toml:"api_endpoint"`
	MCPEndpoint string   `toml:"mcp_endpoint"`
	CORSOrigins []string `toml:"cors_origins"`
}

type FanoutConfig struct {
	Lanes        int    `toml:"lanes"`
	QueueSize    int    `toml:"queue_size"`
	MaxAttempts  int    `toml:"max_attempts"`
	RetryBackoff string `toml:"retry_backoff"`
}

type EngineConfig struct {
	CommitRetries int    `toml:"commit_retries"`
	RetryBackoff  string `toml:"retry_backoff"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"` // debug | info | warn | error
	DevFile DevFileConfig `toml:"dev_file"`
}

type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Fanout: FanoutConfig{
			Lanes:        4,
			QueueSize:    256,
			MaxAttempts:  5,
			RetryBackoff: "100ms",
		},
		Engine: EngineConfig{
			CommitRetries: 3,
			RetryBackoff:  "25ms",
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: false,
				Dir:     ".itemflow/log",
			},
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}

	if strings.TrimSpace(c.Server.HTTPBind) == "" {
		return errors.New("server.http_bind is required")
	}
	for name, endpoint := range map[string]string{"api_endpoint": c.Server.APIEndpoint, "mcp_endpoint": c.Server.MCPEndpoint} {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("server.%s must start with /: %q", name, endpoint)
		}
	}
	for i, origin := range c.Server.CORSOrigins {
		u, err := url.Parse(strings.TrimSpace(origin))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.cors_origins[%d] is not an origin: %q", i, origin)
		}
	}

	if c.Fanout.Lanes < 1 {
		return errors.New("fanout.lanes must be >= 1")
	}
	if c.Fanout.QueueSize < 1 {
		return errors.New("fanout.queue_size must be >= 1")
	}
	if c.Fanout.MaxAttempts < 1 {
		return errors.New("fanout.max_attempts must be >= 1")
	}
	if _, err := c.Fanout.Backoff(); err != nil {
		return err
	}

	if c.Engine.CommitRetries < 0 {
		return errors.New("engine.commit_retries must be >= 0")
	}
	if _, err := c.Engine.Backoff(); err != nil {
		return err
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.DevFile.Enabled && strings.TrimSpace(c.Logging.DevFile.Dir) == "" {
		return errors.New("logging.dev_file.dir is required when the dev file sink is enabled")
	}

	return nil
}

// Backoff parses fanout.retry_backoff.
func (f FanoutConfig) Backoff() (time.Duration, error) {
	return parseBackoff("fanout.retry_backoff", f.RetryBackoff)
}

// Backoff parses engine.retry_backoff.
func (e EngineConfig) Backoff() (time.Duration, error) {
	return parseBackoff("engine.retry_backoff", e.RetryBackoff)
}

func parseBackoff(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must be >= 0", key)
	}
	return d, nil
}

// EnsureConfigDir creates the parent directory of the config file at path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
