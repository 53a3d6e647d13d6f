package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crimestats/domain/crime"
)

// RedisCache stores series as JSON values in Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

type Options struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

type Option func(*Options)

func WithAddress(addr string) Option {
	return func(o *Options) {
		o.Address = addr
	}
}

func WithPassword(pass string) Option {
	return func(o *Options) {
		o.Password = pass
	}
}

func WithDB(db int) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithPrefix namespaces every key, e.g. per deployment.
func WithPrefix(prefix string) Option {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts ...Option) (*RedisCache, error) {
	options := &Options{
		Address: "localhost:6379",
		Prefix:  "crimestats:series:",
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", options.Address, err)
	}

	return &RedisCache{client: client, prefix: options.Prefix}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*crime.Series, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var series crime.Series
	if err := json.Unmarshal(val, &series); err != nil {
		return nil, false, fmt.Errorf("decode cached series %s: %w", key, err)
	}
	return &series, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, series *crime.Series, ttl time.Duration) error {
	data, err := json.Marshal(series)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
