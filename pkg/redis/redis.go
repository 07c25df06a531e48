package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/booking-rush-reservation/pkg/config"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// Nil is returned by Get when the key does not exist
const Nil = redis.Nil

// Config holds Redis connection configuration
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Retry configuration
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns default Redis configuration
func DefaultConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          6379,
		Password:      "",
		DB:            0,
		PoolSize:      100,
		MinIdleConns:  10,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// FromConfig maps the application redis section onto a client configuration
func FromConfig(r *config.RedisConfig) *Config {
	cfg := DefaultConfig()
	cfg.Host = r.Host
	cfg.Port = r.Port
	cfg.Password = r.Password
	cfg.DB = r.DB
	if r.PoolSize > 0 {
		cfg.PoolSize = r.PoolSize
	}
	if r.MinIdleConns > 0 {
		cfg.MinIdleConns = r.MinIdleConns
	}
	if r.DialTimeout > 0 {
		cfg.DialTimeout = r.DialTimeout
	}
	if r.ReadTimeout > 0 {
		cfg.ReadTimeout = r.ReadTimeout
	}
	if r.WriteTimeout > 0 {
		cfg.WriteTimeout = r.WriteTimeout
	}
	return cfg
}

// Addr returns the Redis address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client wraps redis.Client for the seat lock and reservation counters
type Client struct {
	client *redis.Client
	config *Config
}

// NewClient connects to Redis, pinging until it answers or the retries run out
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	result := retry.New(&retry.Config{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInterval,
		Multiplier:      1,
	}).Do(ctx, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if result.Err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", result.Attempts, result.Cause())
	}

	return &Client{client: client, config: cfg}, nil
}

// NewFromClient wraps an existing go-redis client without pinging it.
// Used with miniredis and redismock in tests.
func NewFromClient(client *redis.Client) *Client {
	return &Client{client: client, config: DefaultConfig()}
}

// Client returns the underlying redis.Client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck performs a health check on Redis
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := c.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	if result != "PONG" {
		return fmt.Errorf("redis health check unexpected response: %s", result)
	}
	return nil
}

// Script is a named Lua script. Evaluation goes through EVALSHA and falls back
// to EVAL when the server has not seen the script yet.
type Script struct {
	Name   string
	script *redis.Script
}

// NewScript prepares a Lua script for evaluation
func NewScript(name, source string) *Script {
	return &Script{Name: name, script: redis.NewScript(source)}
}

// Hash returns the SHA1 Redis keys the script by
func (s *Script) Hash() string {
	return s.script.Hash()
}

// LoadScripts preloads scripts so the first request does not pay for SCRIPT LOAD
func (c *Client) LoadScripts(ctx context.Context, scripts ...*Script) error {
	for _, s := range scripts {
		if err := s.script.Load(ctx, c.client).Err(); err != nil {
			return fmt.Errorf("failed to load script %s: %w", s.Name, err)
		}
	}
	return nil
}

// Run evaluates a script with the given keys and arguments
func (c *Client) Run(ctx context.Context, s *Script, keys []string, args ...interface{}) *redis.Cmd {
	return s.script.Run(ctx, c.client, keys, args...)
}

// Get gets a value by key
func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	return c.client.Get(ctx, key)
}

// TxPipeline returns a MULTI/EXEC pipeline
func (c *Client) TxPipeline() redis.Pipeliner {
	return c.client.TxPipeline()
}
