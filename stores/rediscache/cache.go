// Package rediscache keeps template geometry in Redis in front of the
// configured store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"printdesign-server/core"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second

	keyPrefix = "printdesign:template:"
)

// NewClient parses a Redis URL and pings the server before returning.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	options.PoolSize = 10
	options.MinIdleConns = 2
	options.MaxIdleConns = 5
	options.DialTimeout = dialTimeout
	options.ReadTimeout = readTimeout
	options.WriteTimeout = writeTimeout

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"addr":      options.Addr,
		"pool_size": options.PoolSize,
	}).Info("Redis client connected")
	return client, nil
}

// kv is the part of the Redis client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Templates is a read-through cache over a TemplateStore. Redis failures are
// logged and fall back to the store.
type Templates struct {
	next core.TemplateStore
	rdb  kv
	ttl  time.Duration
}

func New(next core.TemplateStore, rdb kv, ttl time.Duration) *Templates {
	return &Templates{next: next, rdb: rdb, ttl: ttl}
}

func (c *Templates) GetTemplate(ctx context.Context, id string) (*core.Template, error) {
	log := logrus.WithField("template_id", id)

	raw, err := c.rdb.Get(ctx, keyPrefix+id).Bytes()
	switch {
	case err == nil:
		var t core.Template
		if err := json.Unmarshal(raw, &t); err == nil {
			return &t, nil
		}
		log.Warn("Dropping unreadable cached template")
	case !errors.Is(err, redis.Nil):
		log.WithError(err).Warn("Template cache read failed")
	}

	t, err := c.next.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(t); err == nil {
		if err := c.rdb.Set(ctx, keyPrefix+id, data, c.ttl).Err(); err != nil {
			log.WithError(err).Warn("Template cache write failed")
		}
	}
	return t, nil
}

func (c *Templates) ListTemplates(ctx context.Context) ([]*core.Template, error) {
	return c.next.ListTemplates(ctx)
}

func (c *Templates) SaveTemplate(ctx context.Context, template *core.Template) error {
	if err := c.next.SaveTemplate(ctx, template); err != nil {
		return err
	}
	return c.Invalidate(ctx, template.ID)
}

// Invalidate drops the cached copies of the given templates.
func (c *Templates) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyPrefix + id
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate templates: %w", err)
	}
	return nil
}
