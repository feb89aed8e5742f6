// Package cache keeps a Redis read-through copy of tenant lookups. Host
// based tenant resolution hits GetBySlug on every request.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/modules/tenants/domain/tenant"
)

const defaultPrefix = "tenantkit:tenants:slug"

// CachedRepository wraps a tenant.Repository. Redis failures degrade to the
// underlying repository and are only logged.
type CachedRepository struct {
	next   tenant.Repository
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	log    *logrus.Entry
}

var _ tenant.Repository = (*CachedRepository)(nil)

func NewCachedRepository(next tenant.Repository, client *redis.Client, ttl time.Duration, log *logrus.Entry) *CachedRepository {
	if log == nil {
		log = logrus.WithField("component", "tenant-cache")
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedRepository{next: next, redis: client, ttl: ttl, prefix: defaultPrefix, log: log}
}

func (c *CachedRepository) key(slug string) string {
	return fmt.Sprintf("%s:%s", c.prefix, tenant.NormalizeSlug(slug))
}

func (c *CachedRepository) Create(ctx context.Context, t *tenant.Tenant) (*tenant.Tenant, error) {
	created, err := c.next.Create(ctx, t)
	if err != nil {
		return nil, err
	}
	// A miss may have been cached before the slug existed.
	c.forget(ctx, created.Slug)
	return created, nil
}

func (c *CachedRepository) GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return c.next.GetByID(ctx, id)
}

func (c *CachedRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	raw, err := c.redis.Get(ctx, c.key(slug)).Bytes()
	switch {
	case err == nil:
		var t tenant.Tenant
		if err := gojson.Unmarshal(raw, &t); err == nil {
			return &t, nil
		}
		c.log.WithField("slug", slug).Warn("dropping undecodable cached tenant")
		c.forget(ctx, slug)
	case !errors.Is(err, redis.Nil):
		c.log.WithError(err).WithField("slug", slug).Warn("tenant cache read failed")
	}

	t, err := c.next.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.store(ctx, t)
	return t, nil
}

func (c *CachedRepository) UpdateSettings(ctx context.Context, id uuid.UUID, settings json.RawMessage) (*tenant.Tenant, error) {
	t, err := c.next.UpdateSettings(ctx, id, settings)
	if err != nil {
		return nil, err
	}
	c.forget(ctx, t.Slug)
	return t, nil
}

func (c *CachedRepository) store(ctx context.Context, t *tenant.Tenant) {
	raw, err := gojson.Marshal(t)
	if err != nil {
		c.log.WithError(err).Warn("encode tenant for cache")
		return
	}
	if err := c.redis.Set(ctx, c.key(t.Slug), raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("slug", t.Slug).Warn("tenant cache write failed")
	}
}

func (c *CachedRepository) forget(ctx context.Context, slug string) {
	if err := c.redis.Del(ctx, c.key(slug)).Err(); err != nil {
		c.log.WithError(err).WithField("slug", slug).Warn("tenant cache invalidation failed")
	}
}
