package imagecache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts *redis.Client to the RedisClient interface this
// package depends on.
type GoRedisClient struct {
	client *redis.Client
}

// NewGoRedisClient parses url (a redis:// connection string) and
// returns a ready adapter.
func NewGoRedisClient(url string) (*GoRedisClient, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &GoRedisClient{client: redis.NewClient(opt)}, nil
}

func (c *GoRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (c *GoRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying connection pool.
func (c *GoRedisClient) Close() error {
	return c.client.Close()
}
