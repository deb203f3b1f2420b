// Package config loads the server configuration from an optional YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Git and discovery backends.
const (
	BackendCLI   = "cli"
	BackendGoGit = "go-git"
	BackendSDK   = "sdk"
)

// Config is the complete server configuration.
type Config struct {
	DBPath string `yaml:"db_path"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`

	RepoDir     string `yaml:"repo_dir"`
	LiveDir     string `yaml:"live_dir"`
	ComposeFile string `yaml:"compose_file"`

	EventBuffer      int    `yaml:"event_buffer"`
	GitBackend       string `yaml:"git_backend"`
	DiscoveryBackend string `yaml:"discovery_backend"`
	SerializeDeploys bool   `yaml:"serialize_deploys"`

	// ProxyDomain enables forwarding <service>.<ProxyDomain> to the
	// service access URL. Empty disables the proxy.
	ProxyDomain string `yaml:"proxy_domain"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		DBPath:           "lighthouse.db",
		Host:             "127.0.0.1",
		Port:             3000,
		RepoDir:          filepath.Join("services", "repos"),
		LiveDir:          filepath.Join("services", "live"),
		ComposeFile:      "docker-compose.yaml",
		EventBuffer:      100,
		GitBackend:       BackendCLI,
		DiscoveryBackend: BackendCLI,
		Log:              LogConfig{Level: "INFO", Format: "text"},
	}
}

// Load reads path (skipped when empty) and applies environment overrides.
// It does not validate: callers apply their own overrides, such as command
// line flags, and then call Validate once.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DB_URL", &c.DBPath)
	str("APP_HOST", &c.Host)
	if v, ok := lookup("APP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("APP_PORT: %w", err)
		}
		c.Port = port
	}

	// SERVICE_ROOT_PATH sets both directories; the specific variables win.
	if root, ok := lookup("SERVICE_ROOT_PATH"); ok && root != "" {
		c.RepoDir = filepath.Join(root, "repos")
		c.LiveDir = filepath.Join(root, "live")
	}
	str("SERVICE_REPO_PATH", &c.RepoDir)
	str("SERVICE_LIVE_PATH", &c.LiveDir)

	str("PROXY_DOMAIN", &c.ProxyDomain)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RepoDir == "" {
		errs = append(errs, errors.New("repo_dir is required"))
	}
	if c.LiveDir == "" {
		errs = append(errs, errors.New("live_dir is required"))
	}
	if c.RepoDir != "" && filepath.Clean(c.RepoDir) == filepath.Clean(c.LiveDir) {
		errs = append(errs, errors.New("repo_dir and live_dir must differ"))
	}
	if c.ComposeFile == "" {
		errs = append(errs, errors.New("compose_file is required"))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer))
	}
	switch c.GitBackend {
	case BackendCLI, BackendGoGit:
	default:
		errs = append(errs, fmt.Errorf("unknown git_backend %q", c.GitBackend))
	}
	switch c.DiscoveryBackend {
	case BackendCLI, BackendSDK:
	default:
		errs = append(errs, fmt.Errorf("unknown discovery_backend %q", c.DiscoveryBackend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
