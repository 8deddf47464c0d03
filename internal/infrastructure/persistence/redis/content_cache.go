package redis

import (
	"context"
	"errors"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ContentCache is a read-through cache in front of the durable content store.
// Redis failures never fail a read: the durable store answers instead.
type ContentCache struct {
	kv    KV
	inner curriculum.ContentStore
	ttl   time.Duration
	log   *logger.Logger
}

// NewContentCache wraps inner. A zero ttl uses TTLContent.
func NewContentCache(kv KV, inner curriculum.ContentStore, ttl time.Duration, log *logger.Logger) *ContentCache {
	if ttl <= 0 {
		ttl = TTLContent
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ContentCache{
		kv:    kv,
		inner: inner,
		ttl:   ttl,
		log:   log.With(logger.Component("content_cache")),
	}
}

// Get implements curriculum.ContentStore.
func (c *ContentCache) Get(ctx context.Context, key curriculum.ContentKey) (*curriculum.ContentRecord, error) {
	var rec curriculum.ContentRecord
	err := c.kv.Get(ctx, ContentKey(key.String()), &rec)
	switch {
	case err == nil:
		return &rec, nil
	case errors.Is(err, ErrCacheMiss):
	default:
		c.log.Warn("cache read failed", logger.ContentKey(key.String()), logger.Err(err))
	}

	stored, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, stored)
	return stored, nil
}

// Put writes to the durable store, then refreshes the cached copy.
func (c *ContentCache) Put(ctx context.Context, record *curriculum.ContentRecord) error {
	if err := c.inner.Put(ctx, record); err != nil {
		return err
	}
	c.fill(ctx, record)
	return nil
}

// Enumerate always asks the durable store; the cache holds a subset.
func (c *ContentCache) Enumerate(ctx context.Context, prefix string) ([]curriculum.ContentKey, error) {
	return c.inner.Enumerate(ctx, prefix)
}

// Invalidate drops the cached copy of key.
func (c *ContentCache) Invalidate(ctx context.Context, key curriculum.ContentKey) error {
	return c.kv.Delete(ctx, ContentKey(key.String()))
}

func (c *ContentCache) fill(ctx context.Context, rec *curriculum.ContentRecord) {
	if err := c.kv.Set(ctx, ContentKey(rec.Key.String()), rec, c.ttl); err != nil {
		c.log.Warn("cache fill failed", logger.ContentKey(rec.Key.String()), logger.Err(err))
		// A stale copy must not outlive a failed refresh.
		_ = c.kv.Delete(ctx, ContentKey(rec.Key.String()))
	}
}

var _ curriculum.ContentStore = (*ContentCache)(nil)
