package config

import "time"

// Config is the root configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Binning    BinningConfig    `yaml:"binning" mapstructure:"binning"`
	Similarity SimilarityConfig `yaml:"similarity" mapstructure:"similarity"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
}

// ServerConfig contains HTTP server settings for the viewer API
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	RateLimit      RateLimit     `yaml:"rate_limit" mapstructure:"rate_limit"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// RateLimit contains per-client rate limiting settings
type RateLimit struct {
	Enabled        bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	Burst          int  `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string     `yaml:"level" mapstructure:"level"`
	Format string     `yaml:"format" mapstructure:"format"`
	File   FileConfig `yaml:"file" mapstructure:"file"`
}

// FileConfig contains file logging settings
type FileConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// StoreConfig contains library database settings
type StoreConfig struct {
	Path         string        `yaml:"path" mapstructure:"path"`
	MaxOpenConns int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	BusyTimeout  time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// CacheConfig contains the shared binned-vector cache settings
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL   string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix  string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxConns   int           `yaml:"max_conns" mapstructure:"max_conns"`
}

// BinningConfig contains the default binning parameters
type BinningConfig struct {
	MassMin       float64 `yaml:"mass_min" mapstructure:"mass_min"`
	MassMax       float64 `yaml:"mass_max" mapstructure:"mass_max"`
	BinWidth      float64 `yaml:"bin_width" mapstructure:"bin_width"`
	Normalization string  `yaml:"normalization" mapstructure:"normalization"`
}

// SimilarityConfig contains similarity engine settings
type SimilarityConfig struct {
	Metric string `yaml:"metric" mapstructure:"metric"`
}

// BatchConfig contains batch comparator settings
type BatchConfig struct {
	Workers        int `yaml:"workers" mapstructure:"workers"`
	ProgressReport int `yaml:"progress_report" mapstructure:"progress_report"`
}

// IngestConfig contains ingest pipeline settings
type IngestConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// GetDefaults returns the default configuration
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         5151,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
			RateLimit: RateLimit{
				Enabled:        false,
				RequestsPerMin: 600,
				Burst:          60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Path:         "library.db",
			MaxOpenConns: 4,
			MaxIdleConns: 2,
			BusyTimeout:  5 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    false,
			RedisURL:   "redis://localhost:6379/0",
			KeyPrefix:  "specmatch",
			DefaultTTL: 24 * time.Hour,
			MaxConns:   10,
		},
		Binning: BinningConfig{
			MassMin:       20,
			MassMax:       500,
			BinWidth:      1,
			Normalization: "l2",
		},
		Similarity: SimilarityConfig{
			Metric: "cosine",
		},
		Batch: BatchConfig{
			Workers:        4,
			ProgressReport: 1000,
		},
		Ingest: IngestConfig{
			BatchSize: 500,
		},
	}
}
