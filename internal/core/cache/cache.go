// Package cache stores extraction results keyed by content fingerprint.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/iatidocs/internal/core"
	"github.com/markdave123-py/iatidocs/internal/models"
)

var (
	_ core.ExtractionCache = (*LRUCache)(nil)
	_ core.ExtractionCache = (*RedisCache)(nil)
)

// LRUCache is a process-local cache bounded by entry count.
type LRUCache struct {
	entries *lru.Cache[string, *models.ExtractedRecord]
}

func NewLRU(size int) (*LRUCache, error) {
	c, err := lru.New[string, *models.ExtractedRecord](size)
	if err != nil {
		return nil, fmt.Errorf("lru cache: %w", err)
	}
	return &LRUCache{entries: c}, nil
}

func (c *LRUCache) Get(_ context.Context, fingerprint string) (*models.ExtractedRecord, bool, error) {
	rec, ok := c.entries.Get(fingerprint)
	return rec, ok, nil
}

func (c *LRUCache) Put(_ context.Context, fingerprint string, rec *models.ExtractedRecord) error {
	c.entries.Add(fingerprint, rec)
	return nil
}

func (c *LRUCache) Len() int { return c.entries.Len() }

const extractKeyPrefix = "iatidocs:extract:"

// RedisCache shares extraction results between runs and hosts.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects and pings the server. A zero ttl keeps entries forever.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) key(fingerprint string) string {
	return extractKeyPrefix + fingerprint
}

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (*models.ExtractedRecord, bool, error) {
	raw, err := c.client.Get(ctx, c.key(fingerprint)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var rec models.ExtractedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, fmt.Errorf("decode cached extraction %s: %w", fingerprint, err)
	}
	return &rec, true, nil
}

func (c *RedisCache) Put(ctx context.Context, fingerprint string, rec *models.ExtractedRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(fingerprint), raw, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
