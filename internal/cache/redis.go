// Package cache provides an optional redis-backed tier for binned vectors,
// shared between processes working on the same library.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/specmatch/specmatch/internal/binning"
)

// Config contains cache configuration
type Config struct {
	RedisURL   string        `yaml:"redis_url" mapstructure:"redis_url"`
	KeyPrefix  string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DefaultTTL time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxConns   int           `yaml:"max_conns" mapstructure:"max_conns"`
}

// Stats tracks cache hit/miss counters
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// VectorCache caches binned vectors in redis keyed by binning configuration
// and spectrum identifier.
type VectorCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a new vector cache and verifies connectivity.
func New(config *Config, logger *zap.Logger) (*VectorCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if config.MaxConns > 0 {
		opts.PoolSize = config.MaxConns
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	logger.Info("Vector cache connected",
		zap.String("key_prefix", config.KeyPrefix),
		zap.Duration("default_ttl", config.DefaultTTL))

	return &VectorCache{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// key builds the cache key for one (config, spectrum) pair.
func (c *VectorCache) key(configKey, spectrumID string) string {
	return fmt.Sprintf("%s:vec:%s:%s", c.config.KeyPrefix, configKey, spectrumID)
}

// Get fetches a cached vector. Returns (nil, nil) on a miss.
func (c *VectorCache) Get(ctx context.Context, configKey, spectrumID string) (*binning.Vector, error) {
	data, err := c.client.Get(ctx, c.key(configKey, spectrumID)).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}

	var vec binning.Vector
	if err := json.Unmarshal(data, &vec); err != nil {
		// Treat undecodable entries as misses; they will be overwritten.
		c.logger.Warn("Dropping corrupt cache entry",
			zap.String("spectrum_id", spectrumID),
			zap.Error(err))
		c.misses.Add(1)
		return nil, nil
	}

	c.hits.Add(1)
	return &vec, nil
}

// Set stores a binned vector with the configured TTL.
func (c *VectorCache) Set(ctx context.Context, vec *binning.Vector) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("cache encode failed: %w", err)
	}

	key := c.key(vec.ConfigKey, vec.SpectrumID)
	if err := c.client.Set(ctx, key, data, c.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// Delete removes every cached vector for the given spectrum, across all
// binning configurations. Called when a spectrum leaves its index.
func (c *VectorCache) Delete(ctx context.Context, spectrumID string) error {
	pattern := fmt.Sprintf("%s:vec:*:%s", c.config.KeyPrefix, spectrumID)

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan failed: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache delete failed: %w", err)
		}
	}
	return nil
}

// InvalidateConfig removes every cached vector produced under the given
// binning configuration.
func (c *VectorCache) InvalidateConfig(ctx context.Context, configKey string) error {
	pattern := fmt.Sprintf("%s:vec:%s:*", c.config.KeyPrefix, configKey)

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan failed: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("cache invalidate failed: %w", err)
		}
	}

	c.logger.Debug("Invalidated cached vectors",
		zap.String("config_key", configKey),
		zap.Int("keys", len(keys)))
	return nil
}

// GetStats returns hit/miss counters.
func (c *VectorCache) GetStats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Ping verifies the redis connection.
func (c *VectorCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the redis connection.
func (c *VectorCache) Close() error {
	return c.client.Close()
}
