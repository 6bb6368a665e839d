package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (GESTURE_RELAY_WORKER_URL, ...)
const EnvPrefix = "GESTURE_RELAY"

// ConfigPathEnv names the environment variable holding an optional config file path
const ConfigPathEnv = EnvPrefix + "_CONFIG"

// Storage backends
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// Config holds the relay configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Storage StorageConfig `mapstructure:"storage"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig holds the client-facing HTTP/WebSocket listener settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// PublicURL is the externally reachable base URL, used by the MCP SSE transport
	PublicURL string `mapstructure:"public_url"`
}

// WorkerConfig holds the upstream worker connection settings
type WorkerConfig struct {
	URL               string        `mapstructure:"url"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay     time.Duration `mapstructure:"max_retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
}

// StorageConfig selects and configures the gesture store persistence backend
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HealthConfig configures the gRPC health service; an empty address disables it
type HealthConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
}

// MQTTConfig configures the optional event emitter; an empty broker disables it
type MQTTConfig struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3001")
	v.SetDefault("server.public_url", "")
	v.SetDefault("worker.url", "ws://localhost:8765")
	v.SetDefault("worker.retry_delay", DefaultWorkerRetryDelay)
	v.SetDefault("worker.max_retry_delay", DefaultWorkerMaxRetryDelay)
	v.SetDefault("worker.backoff_multiplier", 1.0)
	v.SetDefault("worker.dial_timeout", DefaultWorkerDialTimeout)
	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("health.grpc_addr", ":50060")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "gesture-relay")
	v.SetDefault("mqtt.topic_prefix", "gesturectl")
	v.SetDefault("log.level", "info")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from defaults, an optional file, and the environment.
// A missing config file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	v := newViper(path)
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Worker.URL == "" {
		return errors.New("worker.url must be set")
	}
	if c.Worker.RetryDelay <= 0 {
		return errors.New("worker.retry_delay must be positive")
	}
	if c.Worker.BackoffMultiplier < 1 {
		return errors.New("worker.backoff_multiplier must be >= 1")
	}
	if c.Worker.MaxRetryDelay < c.Worker.RetryDelay {
		return errors.New("worker.max_retry_delay cannot be less than worker.retry_delay")
	}
	switch c.Storage.Backend {
	case BackendFile, BackendBadger:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir must be set")
	}
	return nil
}

// Watch reloads the config file on change and hands the new config to onChange.
// It is a no-op when no config file is in use.
func Watch(path string, logger *slog.Logger, onChange func(*Config)) {
	v := newViper(path)
	if v.ConfigFileUsed() == "" {
		return
	}
	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Config watch disabled", "path", v.ConfigFileUsed(), "error", err)
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid config change", "path", e.Name, "error", err)
			return
		}
		logger.Info("Config reloaded", "path", e.Name)
		onChange(c)
	})
	v.WatchConfig()
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
