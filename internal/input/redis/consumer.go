package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"honeywatch/internal/logger"
	"honeywatch/internal/metrics"
)

// Config configures the Redis list feed.
type Config struct {
	Feed         string
	Addr         string
	Password     string
	DB           int
	Key          string
	BlockTimeout time.Duration
}

// Consumer pops sensor records pushed onto a Redis list by a sensor.
type Consumer struct {
	client       *redis.Client
	feed         string
	key          string
	blockTimeout time.Duration
	failing      bool
}

// NewConsumer creates a Redis consumer for one feed's list.
func NewConsumer(cfg Config) (*Consumer, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if cfg.Key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.Feed == "" {
		cfg.Feed = cfg.Key
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Consumer{
		client:       client,
		feed:         cfg.Feed,
		key:          cfg.Key,
		blockTimeout: cfg.BlockTimeout,
	}, nil
}

// Next pops one record, waiting up to the block timeout. Blank records
// are consumed and reported as "nothing arrived".
func (c *Consumer) Next(ctx context.Context) ([]byte, error) {
	res, err := c.client.BLPop(ctx, c.blockTimeout, c.key).Result()
	if err == redis.Nil {
		c.recovered()
		return nil, nil
	}
	if err != nil {
		if ctx.Err() == nil {
			metrics.FeedReadErrors.WithLabelValues(c.feed).Inc()
			c.failing = true
		}
		return nil, fmt.Errorf("pop %s: %w", c.key, err)
	}
	c.recovered()
	if len(res) < 2 || strings.TrimSpace(res[1]) == "" {
		return nil, nil
	}
	return []byte(res[1]), nil
}

// Backlog reports how many records are still queued and publishes the
// number on the feed backlog gauge.
func (c *Consumer) Backlog(ctx context.Context) (int64, error) {
	n, err := c.client.LLen(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", c.key, err)
	}
	metrics.FeedBacklog.WithLabelValues(c.feed).Set(float64(n))
	return n, nil
}

// Close closes the consumer.
func (c *Consumer) Close() error {
	return c.client.Close()
}

func (c *Consumer) recovered() {
	if c.failing {
		logger.Infof("Feed %s reconnected to %s", c.feed, c.key)
		c.failing = false
	}
}
