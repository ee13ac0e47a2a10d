package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PermissionWriter is implemented by catalogs that can be edited.
type PermissionWriter interface {
	CreatePermission(ctx context.Context, perm *Permission) error
	UpdatePermission(ctx context.Context, perm *Permission) error
}

// CachedCatalog is a read-through Redis cache in front of a Catalog. Only
// definitions found in the catalog are cached; grants and the directory never
// pass through it.
type CachedCatalog struct {
	inner  Catalog
	redis  *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewCachedCatalog wraps inner. A nil client disables caching.
func NewCachedCatalog(inner Catalog, client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *CachedCatalog {
	if prefix == "" {
		prefix = "rbac:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedCatalog{inner: inner, redis: client, prefix: prefix, ttl: ttl, log: log}
}

func (c *CachedCatalog) permissionKey(code string) string {
	return c.prefix + "permission:" + code
}

func (c *CachedCatalog) listKey() string {
	return c.prefix + "permissions"
}

func (c *CachedCatalog) GetPermissionByCode(ctx context.Context, code string) (*Permission, error) {
	if c.redis == nil {
		return c.inner.GetPermissionByCode(ctx, code)
	}

	var perm Permission
	if c.get(ctx, c.permissionKey(code), &perm) {
		return &perm, nil
	}

	loaded, err := c.inner.GetPermissionByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.set(ctx, c.permissionKey(code), loaded)
	return loaded, nil
}

func (c *CachedCatalog) ListPermissions(ctx context.Context) ([]Permission, error) {
	if c.redis == nil {
		return c.inner.ListPermissions(ctx)
	}

	var perms []Permission
	if c.get(ctx, c.listKey(), &perms) {
		return perms, nil
	}

	perms, err := c.inner.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, c.listKey(), perms)
	return perms, nil
}

func (c *CachedCatalog) ListPermissionsByCategory(ctx context.Context) (map[string][]Permission, error) {
	perms, err := c.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	return groupByCategory(perms), nil
}

// CreatePermission writes through to the inner catalog and drops the cached list.
func (c *CachedCatalog) CreatePermission(ctx context.Context, perm *Permission) error {
	w, ok := c.inner.(PermissionWriter)
	if !ok {
		return ErrInvalidInput
	}
	if err := w.CreatePermission(ctx, perm); err != nil {
		return err
	}
	return c.Invalidate(ctx, perm.Code)
}

// UpdatePermission writes through to the inner catalog and drops the cached entries.
func (c *CachedCatalog) UpdatePermission(ctx context.Context, perm *Permission) error {
	w, ok := c.inner.(PermissionWriter)
	if !ok {
		return ErrInvalidInput
	}
	if err := w.UpdatePermission(ctx, perm); err != nil {
		return err
	}
	return c.Invalidate(ctx, perm.Code)
}

// Invalidate removes the cached list and the entries for codes.
func (c *CachedCatalog) Invalidate(ctx context.Context, codes ...string) error {
	if c.redis == nil {
		return nil
	}
	keys := []string{c.listKey()}
	for _, code := range codes {
		keys = append(keys, c.permissionKey(code))
	}
	return c.redis.Del(ctx, keys...).Err()
}

// WarmCache preloads every permission definition.
func (c *CachedCatalog) WarmCache(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}

	perms, err := c.inner.ListPermissions(ctx)
	if err != nil {
		return err
	}

	pipe := c.redis.Pipeline()
	for i := range perms {
		payload, err := json.Marshal(&perms[i])
		if err != nil {
			return err
		}
		pipe.Set(ctx, c.permissionKey(perms[i].Code), payload, c.ttl)
	}
	if payload, err := json.Marshal(perms); err == nil {
		pipe.Set(ctx, c.listKey(), payload, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// get reports whether key was cached and decoded into dst. Redis failures are
// logged and treated as misses.
func (c *CachedCatalog) get(ctx context.Context, key string, dst interface{}) bool {
	val, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(val, dst); err != nil {
		c.log.Warn("catalog cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedCatalog) set(ctx context.Context, key string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}
