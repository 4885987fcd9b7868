package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/anatolykoptev/go_tube/internal/store"
	"github.com/redis/go-redis/v9"
)

// FileCache keeps cache artifacts as files in one directory.
type FileCache struct {
	dir string
}

func NewFileCache(dir string) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("cache: mkdir %s: %w", dir, err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("cache: invalid name %q", name)
	}
	return filepath.Join(c.dir, name), nil
}

func (c *FileCache) Read(_ context.Context, name string) ([]byte, error) {
	p, err := c.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *FileCache) Write(_ context.Context, name string, data []byte) error {
	p, err := c.path(name)
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(p, data, 0640)
}

func (c *FileCache) Remove(_ context.Context, name string) error {
	p, err := c.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes cache slots (*.json) and their timestamps from the cache
// directory. Other files in the directory are left alone.
func (c *FileCache) Clear(_ context.Context) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !isSlotFile(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func isSlotFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json"+metaSuffix)
}

// RedisCache keeps cache artifacts as Redis strings without expiry; the
// TTL gate lives in CacheStore.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache connects to redisURL and verifies it answers.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: redis unreachable: %w", err)
	}
	return &RedisCache{rdb: rdb, prefix: "go_tube:cache:"}, nil
}

func (c *RedisCache) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, c.prefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return data, err
}

func (c *RedisCache) Write(ctx context.Context, name string, data []byte) error {
	return c.rdb.Set(ctx, c.prefix+name, data, 0).Err()
}

func (c *RedisCache) Remove(ctx context.Context, name string) error {
	return c.rdb.Del(ctx, c.prefix+name).Err()
}

// Clear removes every key under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) (int, error) {
	removed := 0
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err == nil {
			removed++
		}
	}
	return removed, iter.Err()
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// MemoryCache keeps artifacts in process memory.
type MemoryCache struct {
	data sync.Map // name → []byte
}

func (c *MemoryCache) Read(_ context.Context, name string) ([]byte, error) {
	v, ok := c.data.Load(name)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), v.([]byte)...), nil
}

func (c *MemoryCache) Write(_ context.Context, name string, data []byte) error {
	c.data.Store(name, append([]byte(nil), data...))
	return nil
}

func (c *MemoryCache) Remove(_ context.Context, name string) error {
	c.data.Delete(name)
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) (int, error) {
	removed := 0
	c.data.Range(func(key, _ any) bool {
		c.data.Delete(key)
		removed++
		return true
	})
	return removed, nil
}
