// Package config loads CacheForge's server and client configuration from
// command-line flags, environment variables, an optional YAML file, and
// built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Default values for the server's CLI surface.
const (
	DefaultPort       = 6380
	DefaultAOFEnabled = true
	DefaultAOFPath    = "./cache.aof"
	DefaultMaxKeys    = 1 << 20
	DefaultLogLevel   = "info"
)

// ServerConfig holds everything cmd/cacheforge-server needs to start.
// Threads of 0 means "use runtime.NumCPU()", matching the original's
// hardware-concurrency default.
type ServerConfig struct {
	Port        uint16 `yaml:"port"`
	Threads     int    `yaml:"threads"`
	AOFEnabled  bool   `yaml:"aof_enabled"`
	AOFPath     string `yaml:"aof_path"`
	MaxKeys     int    `yaml:"max_keys"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Validate checks for values that would make the server unable to start
// or behave nonsensically.
func (c *ServerConfig) Validate() error {
	if c.Port == 0 {
		return fmt.Errorf("port must be non-zero")
	}
	if c.Threads < 0 {
		return fmt.Errorf("threads must be >= 0 (0 means auto-detect)")
	}
	if c.AOFEnabled && c.AOFPath == "" {
		return fmt.Errorf("aof_path must be set when aof is enabled")
	}
	if c.MaxKeys <= 0 {
		return fmt.Errorf("max_keys must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

// Address returns the host:port the server listens on.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RegisterServerFlags defines the server's command-line flags on fs. Must be
// called before fs is parsed; pair with ResolveServerConfig afterwards.
func RegisterServerFlags(fs *pflag.FlagSet) {
	fs.IntP("port", "p", DefaultPort, "TCP port to listen on")
	fs.IntP("threads", "t", 0, "worker pool size (0 = hardware parallelism)")
	fs.Bool("aof-enabled", DefaultAOFEnabled, "enable append-only persistence")
	fs.String("aof-path", DefaultAOFPath, "append-only log file path")
	fs.Int("max-keys", DefaultMaxKeys, "maximum live keys across all shards")
	fs.String("log-level", DefaultLogLevel, "log level: debug, info, warn, error")
	fs.String("metrics-addr", "", "address for the Prometheus /metrics endpoint (empty disables it)")
	fs.String("config", "", "path to an optional YAML config file")
}

// LoadServerConfig registers the server flags on fs, parses args, and
// resolves the final config. Callers whose flag set is parsed for them
// (cobra) should call RegisterServerFlags up front and ResolveServerConfig
// once parsing has happened.
func LoadServerConfig(fs *pflag.FlagSet, args []string) (*ServerConfig, error) {
	RegisterServerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return ResolveServerConfig(fs)
}

// ResolveServerConfig builds a ServerConfig from an already-parsed flag set,
// layering (lowest to highest precedence) built-in defaults, an optional
// YAML file named by --config or CACHEFORGE_CONFIG, CACHEFORGE_* environment
// variables, and any flags the caller explicitly set.
func ResolveServerConfig(fs *pflag.FlagSet) (*ServerConfig, error) {
	cfg := &ServerConfig{
		Port:        DefaultPort,
		Threads:     0,
		AOFEnabled:  DefaultAOFEnabled,
		AOFPath:     DefaultAOFPath,
		MaxKeys:     DefaultMaxKeys,
		LogLevel:    DefaultLogLevel,
		MetricsAddr: "",
	}

	configPath, _ := fs.GetString("config")
	if configPath == "" {
		configPath = os.Getenv("CACHEFORGE_CONFIG")
	}
	if configPath != "" {
		if err := applyYAMLFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	applyServerEnv(cfg)

	// Flags win over everything, but only the ones the caller actually set;
	// a flag left at its default must not clobber a file or env value.
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "port":
			n, _ := fs.GetInt("port")
			cfg.Port = uint16(n)
		case "threads":
			cfg.Threads, _ = fs.GetInt("threads")
		case "aof-enabled":
			cfg.AOFEnabled, _ = fs.GetBool("aof-enabled")
		case "aof-path":
			cfg.AOFPath, _ = fs.GetString("aof-path")
		case "max-keys":
			cfg.MaxKeys, _ = fs.GetInt("max-keys")
		case "log-level":
			cfg.LogLevel, _ = fs.GetString("log-level")
		case "metrics-addr":
			cfg.MetricsAddr, _ = fs.GetString("metrics-addr")
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyServerEnv(cfg *ServerConfig) {
	if v := os.Getenv("CACHEFORGE_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = uint16(n)
		}
	}
	if v := os.Getenv("CACHEFORGE_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Threads = n
		}
	}
	if v := os.Getenv("CACHEFORGE_AOF_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AOFEnabled = b
		}
	}
	if v := os.Getenv("CACHEFORGE_AOF_PATH"); v != "" {
		cfg.AOFPath = v
	}
	if v := os.Getenv("CACHEFORGE_MAX_KEYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxKeys = n
		}
	}
	if v := os.Getenv("CACHEFORGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CACHEFORGE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func applyYAMLFile(path string, cfg *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ClientConfig holds what the single-node client (and the CLI/bench tools
// built on it) needs to connect.
type ClientConfig struct {
	Address        string `yaml:"address"`
	ConnTimeoutSec int    `yaml:"conn_timeout_seconds"`
}

// DefaultClientConfig returns sane defaults for connecting to a locally
// running server.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Address:        fmt.Sprintf("127.0.0.1:%d", DefaultPort),
		ConnTimeoutSec: 5,
	}
}

// Validate checks the client config is usable.
func (c *ClientConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("address must be set")
	}
	if c.ConnTimeoutSec <= 0 {
		return fmt.Errorf("conn_timeout_seconds must be positive")
	}
	return nil
}
