package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ConfigName is the base name searched for when no file is given
const ConfigName = "vn-text-trim"

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Only the search paths may come up empty; a named file must exist.
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("cannot open config file: %w", err)
		}
	}

	v := newViper(configPath)

	// Read configuration
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return decode(v)
}

// Watch starts watching the configuration file for changes. Every valid
// revision is handed to callback; invalid ones go to errorCallback and the
// caller keeps whatever it had.
func Watch(configPath string, callback func(*Config), errorCallback func(error)) error {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		newConfig, err := decode(v)
		if err != nil {
			if errorCallback != nil {
				errorCallback(err)
			}
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}

// newViper builds a viper instance with search paths and env overrides
func newViper(configPath string) *viper.Viper {
	v := viper.New()

	v.SetConfigName(ConfigName)
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if exe, err := os.Executable(); err == nil {
		v.AddConfigPath(filepath.Dir(exe))
	}
	v.AddConfigPath("$HOME/.vn-text-trim/")

	// Environment variable overrides
	v.SetEnvPrefix("VNTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Use specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if ext := strings.TrimPrefix(filepath.Ext(configPath), "."); ext != "" {
			v.SetConfigType(ext)
		}
	}

	return v
}

// decode unmarshals the current viper state over the defaults and validates it
func decode(v *viper.Viper) (*Config, error) {
	config := GetDefaults()

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	switch config.Mode {
	case "", "flat", "repetition", "dialogue":
	default:
		return fmt.Errorf("invalid mode: %s (must be flat, repetition or dialogue)", config.Mode)
	}

	for i, rule := range config.Replace {
		if rule.Pattern == "" {
			return fmt.Errorf("replace rule %d: empty pattern", i)
		}
		if rule.Limit < 0 {
			return fmt.Errorf("replace rule %d: negative limit %d", i, rule.Limit)
		}
	}

	if config.Server.Enabled && (config.Server.Port <= 0 || config.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Buffer.Type {
	case "none":
	case "file":
		if config.Buffer.Path == "" {
			return fmt.Errorf("buffer type file requires buffer.path")
		}
	case "redis":
		if config.Buffer.RedisURL == "" || config.Buffer.Key == "" {
			return fmt.Errorf("buffer type redis requires buffer.redis_url and buffer.key")
		}
	default:
		return fmt.Errorf("invalid buffer type: %s (must be none, file or redis)", config.Buffer.Type)
	}

	if config.Buffer.Type != "none" && config.Buffer.PollInterval <= 0 {
		return fmt.Errorf("invalid buffer poll interval: %s", config.Buffer.PollInterval)
	}

	if config.Buffer.MaxAttempts < 0 {
		return fmt.Errorf("invalid buffer max attempts: %d", config.Buffer.MaxAttempts)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Batch.BatchSize <= 0 || config.Batch.WorkerCount <= 0 {
		return fmt.Errorf("invalid batch settings: batch_size=%d worker_count=%d", config.Batch.BatchSize, config.Batch.WorkerCount)
	}

	if config.Cache.Size < 0 {
		return fmt.Errorf("invalid cache size: %d", config.Cache.Size)
	}

	if config.Cache.TTL < 0 {
		return fmt.Errorf("invalid cache ttl: %s", config.Cache.TTL)
	}

	return nil
}
