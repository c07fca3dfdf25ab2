package config

import "time"

// Config represents the main configuration structure
type Config struct {
	RulesConfig `yaml:",inline" mapstructure:",squash"`

	RuleStore RuleStoreConfig `yaml:"rule_store" mapstructure:"rule_store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Buffer    BufferConfig    `yaml:"buffer" mapstructure:"buffer"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
}

// RulesConfig holds the cleaning rules. Its keys live at the top level of
// the configuration file so that plain rule files stay short.
type RulesConfig struct {
	TextRepetitions bool            `yaml:"text_repetitions" mapstructure:"text_repetitions"`
	Mode            string          `yaml:"mode" mapstructure:"mode"` // flat, repetition, dialogue or empty
	JapaneseOnly    bool            `yaml:"japanese_only" mapstructure:"japanese_only"`
	HotReload       bool            `yaml:"hot_reload" mapstructure:"hot_reload"`
	Replace         []ReplaceConfig `yaml:"replace" mapstructure:"replace"`
	Dialogue        DialogueConfig  `yaml:"dialogue" mapstructure:"dialogue"`
}

// ReplaceConfig is a single substitution rule as written in the file
type ReplaceConfig struct {
	Pattern     string `yaml:"pattern" mapstructure:"pattern" db:"pattern"`
	Replacement string `yaml:"replacement" mapstructure:"replacement" db:"replacement"`
	Limit       int    `yaml:"limit" mapstructure:"limit" db:"rule_limit"`
}

// DialogueConfig controls dialogue extraction
type DialogueConfig struct {
	Extract bool   `yaml:"extract" mapstructure:"extract"`
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
}

// RuleStoreConfig contains the optional PostgreSQL rule source
type RuleStoreConfig struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Enabled      bool            `yaml:"enabled" mapstructure:"enabled"`
	Port         int             `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration   `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxBodyBytes int64           `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RateLimit    RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig contains per-client request limits
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// BufferConfig describes the text buffer the watcher keeps clean
type BufferConfig struct {
	Type          string        `yaml:"type" mapstructure:"type"` // none, file or redis
	Path          string        `yaml:"path" mapstructure:"path"`
	RedisURL      string        `yaml:"redis_url" mapstructure:"redis_url"`
	Key           string        `yaml:"key" mapstructure:"key"`
	Channel       string        `yaml:"channel" mapstructure:"channel"`
	PoolSize      int           `yaml:"pool_size" mapstructure:"pool_size"`
	PollInterval  time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	RetryInterval time.Duration `yaml:"retry_interval" mapstructure:"retry_interval"`
	MaxAttempts   int           `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
		Path    string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Events   struct {
		BroadcastClean       bool `yaml:"broadcast_clean" mapstructure:"broadcast_clean"`
		BroadcastSystem      bool `yaml:"broadcast_system" mapstructure:"broadcast_system"`
		BroadcastConnections bool `yaml:"broadcast_connections" mapstructure:"broadcast_connections"`
	} `yaml:"events" mapstructure:"events"`
}

// BatchConfig contains batch file cleaning configuration
type BatchConfig struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	WorkerCount    int    `yaml:"worker_count" mapstructure:"worker_count"`
	TextColumn     string `yaml:"text_column" mapstructure:"text_column"`
	ProgressReport int    `yaml:"progress_report" mapstructure:"progress_report"`
}

// CacheConfig sizes the result caches of the HTTP service. The in-process
// LRU is always consulted first; Redis is shared between instances.
type CacheConfig struct {
	Size      int           `yaml:"size" mapstructure:"size"` // 0 disables
	RedisURL  string        `yaml:"redis_url" mapstructure:"redis_url"`
	TTL       time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	PoolSize  int           `yaml:"pool_size" mapstructure:"pool_size"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		RuleStore: RuleStoreConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Server: ServerConfig{
			Enabled:      false,
			Port:         8090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 1 << 20,
			RateLimit: RateLimitConfig{
				Enabled:        false,
				RequestsPerMin: 600,
				Burst:          20,
			},
		},
		Buffer: BufferConfig{
			Type:          "none",
			Key:           "vn-text-trim:buffer",
			Channel:       "vn-text-trim:changed",
			PoolSize:      4,
			PollInterval:  250 * time.Millisecond,
			RetryInterval: 100 * time.Millisecond,
			MaxAttempts:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Path:    "/ws",
		},
		Batch: BatchConfig{
			BatchSize:      500,
			WorkerCount:    4,
			TextColumn:     "text",
			ProgressReport: 10000,
		},
		Cache: CacheConfig{
			Size:      1024,
			TTL:       24 * time.Hour,
			KeyPrefix: "vn-text-trim:result:",
			PoolSize:  4,
		},
	}

	cfg.Logging.File.Path = "logs/vn-text-trim.log"
	cfg.WebSocket.Events.BroadcastClean = true
	cfg.WebSocket.Events.BroadcastSystem = true
	cfg.WebSocket.Events.BroadcastConnections = true

	return cfg
}
