package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/emergency-match-server/internal/domain"
)

const (
	defaultSummaryTTL  = 10 * time.Minute
	defaultNotifiedTTL = 24 * time.Hour
)

// RedisClient backs two concerns: the durable notified-once guard for
// requester notifications, and a short-lived read cache for match summaries.
type RedisClient struct {
	redis       *redis.Client
	summaryTTL  time.Duration
	notifiedTTL time.Duration
}

// NewRedisClient creates a new Redis client from the cache configuration.
func NewRedisClient(config domain.CacheConfig) (*RedisClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	summaryTTL := config.SummaryTTL
	if summaryTTL <= 0 {
		summaryTTL = defaultSummaryTTL
	}
	notifiedTTL := config.NotifiedTTL
	if notifiedTTL <= 0 {
		notifiedTTL = defaultNotifiedTTL
	}

	return &RedisClient{
		redis:       client,
		summaryTTL:  summaryTTL,
		notifiedTTL: notifiedTTL,
	}, nil
}

// MarkNotified implements domain.NotifiedGuard. SETNX makes the first caller
// across all app instances win; everyone else sees false.
func (c *RedisClient) MarkNotified(ctx context.Context, requestID string) (bool, error) {
	key := "notified:" + requestID
	first, err := c.redis.SetNX(ctx, key, time.Now().Unix(), c.notifiedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark notified: %w", err)
	}
	return first, nil
}

// GetSummary retrieves a cached match summary.
func (c *RedisClient) GetSummary(ctx context.Context, requestID string) (*domain.MatchSummary, bool, error) {
	key := "summary:" + requestID

	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get summary cache: %w", err)
	}

	var summary domain.MatchSummary
	if err := json.Unmarshal([]byte(val), &summary); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	return &summary, true, nil
}

// SetSummary caches a match summary.
func (c *RedisClient) SetSummary(ctx context.Context, summary *domain.MatchSummary) error {
	jsonData, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	return c.redis.Set(ctx, "summary:"+summary.RequestID, jsonData, c.summaryTTL).Err()
}

// Ping checks if the Redis connection is alive
func (c *RedisClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	return c.redis.Close()
}
