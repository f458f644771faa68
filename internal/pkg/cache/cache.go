package cache

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Cache is a thin wrapper around a shared Redis client.
type Cache struct {
	client *redis.Client
	prefix string
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewClient connects to Redis and logs whether the server answered.
func NewClient(ctx context.Context, opts Options) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] could not connect to redis at %s: %v", opts.Addr, err)
	} else {
		log.Infof("[Cache] connected to redis at %s: %s", opts.Addr, pong)
	}
	return client
}

// New wraps client. Every key is stored under prefix.
func New(client *redis.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Client returns the underlying Redis client.
func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) key(key string) string {
	return c.prefix + key
}

// Set stores a value in the cache with the given key and expiration time
func (c *Cache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, expiration).Err()
}

// Get retrieves a value from the cache by key
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	return val, err
}

// GetInt retrieves an integer value from the cache by key
func (c *Cache) GetInt(ctx context.Context, key string) (int, error) {
	val, err := c.client.Get(ctx, c.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrMiss
	}
	return val, err
}

// Delete removes a value from the cache by key
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}
