package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/dataguard/dataguard/internal/logger"
	"github.com/dataguard/dataguard/internal/violations"
)

// StatsCache is a short-TTL Redis cache in front of the violation statistics
// aggregate. Dashboards poll statistics frequently; without the cache every
// poll runs a full-table aggregate against Postgres. Every operation degrades
// gracefully: a Redis failure is logged and treated as a miss.
type StatsCache struct {
	client *redis.Client
	config *Config
	logger *logger.Logger
}

// Config contains Redis cache configuration
type Config struct {
	RedisURL       string
	KeyPrefix      string
	StatsTTL       time.Duration
	MaxConnections int
	MinIdleConns   int
}

// NewStatsCache creates a Redis-backed statistics cache
func NewStatsCache(config *Config, log *logger.Logger) (*StatsCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Statistics cache initialized",
		zap.Duration("stats_ttl", config.StatsTTL),
		zap.Int("max_connections", config.MaxConnections))

	return &StatsCache{
		client: client,
		config: config,
		logger: log,
	}, nil
}

func (c *StatsCache) key() string {
	return c.config.KeyPrefix + ":violations:stats"
}

// Get returns the cached statistics, or (nil, false) on a miss or any Redis
// failure
func (c *StatsCache) Get(ctx context.Context) (*violations.Stats, bool) {
	data, err := c.client.Get(ctx, c.key()).Result()
	if err == redis.Nil {
		return nil, false
	} else if err != nil {
		c.logger.Error("Statistics cache lookup failed", zap.Error(err))
		return nil, false
	}

	var stats violations.Stats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		c.logger.Error("Failed to unmarshal cached statistics", zap.Error(err))
		c.client.Del(ctx, c.key())
		return nil, false
	}

	return &stats, true
}

// Set caches the statistics for the configured TTL
func (c *StatsCache) Set(ctx context.Context, stats *violations.Stats) {
	data, err := json.Marshal(stats)
	if err != nil {
		c.logger.Error("Failed to marshal statistics for caching", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, c.key(), data, c.config.StatsTTL).Err(); err != nil {
		c.logger.Error("Failed to cache statistics", zap.Error(err))
	}
}

// Invalidate drops the cached statistics. Called after inserts and retention
// deletes so the next read recomputes.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key()).Err(); err != nil && err != redis.Nil {
		c.logger.Error("Failed to invalidate statistics cache", zap.Error(err))
	}
}

// Close closes the Redis connection
func (c *StatsCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
