package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

const (
	redisFieldData        = "data"
	redisFieldContentType = "contentType"
)

// RedisConfig configures the Redis driver. Each object is a hash at
// {Prefix}{bucket}/{key} holding the body and content type.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// redisAPI is the subset of go-redis client methods the driver uses.
type redisAPI interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// RedisClient provides bucket handles backed by Redis hashes.
type RedisClient struct {
	client redisAPI
	prefix string
	owned  bool
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s failed: %w", cfg.Address, err)
	}
	return &RedisClient{client: client, prefix: cfg.Prefix, owned: true}, nil
}

// WrapRedisClient adapts an existing go-redis client. Close leaves it open.
func WrapRedisClient(client *redis.Client, prefix string) *RedisClient {
	return &RedisClient{client: client, prefix: prefix}
}

// Bucket returns a handle for keys under {prefix}{name}/.
func (c *RedisClient) Bucket(name string, _ BucketOptions) Bucket {
	return &redisBucket{client: c.client, name: name, prefix: c.prefix + name + "/"}
}

// Close closes the connection if it was opened by NewRedisClient.
func (c *RedisClient) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

type redisBucket struct {
	client redisAPI
	name   string
	prefix string
}

func (b *redisBucket) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, b.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check object %q: %w", key, err)
	}
	return n > 0, nil
}

func (b *redisBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	data, err := b.client.HGet(ctx, b.prefix+key, redisFieldData).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(b.name, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %q: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Upload buffers the body and writes it with a single HSET, so a failed read
// leaves any previous object untouched.
func (b *redisBucket) Upload(ctx context.Context, key string, r io.Reader, attrs ObjectAttrs) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read upload body for %q: %w", key, err)
	}
	err = b.client.HSet(ctx, b.prefix+key,
		redisFieldData, data,
		redisFieldContentType, attrs.ContentType,
	).Err()
	if err != nil {
		return fmt.Errorf("write object %q: %w", key, err)
	}
	return nil
}

func (b *redisBucket) Delete(ctx context.Context, key string) error {
	n, err := b.client.Del(ctx, b.prefix+key).Result()
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	if n == 0 {
		return notFound(b.name, key)
	}
	return nil
}
