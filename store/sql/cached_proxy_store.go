package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-mailroom/core"
)

const proxyCacheKeyPrefix = "go-mailroom::delivery_proxy::v1"

// CachedProxyStore caches proxy reads. Every dispatch resolves the
// record's proxy and the rows change rarely, so reads come from the
// cache and writes invalidate.
type CachedProxyStore struct {
	base  core.ProxyStore
	cache repositorycache.CacheService
}

func NewCachedProxyStore(base core.ProxyStore, cacheService repositorycache.CacheService) (*CachedProxyStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base proxy store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: proxy cache service is required")
	}
	return &CachedProxyStore{base: base, cache: cacheService}, nil
}

// ProxyCacheKey returns the deterministic cache key for one proxy row:
// go-mailroom::delivery_proxy::v1::<id> with the id URL-path escaped.
func ProxyCacheKey(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("sqlstore: proxy id is required")
	}
	return proxyCacheKeyPrefix + "::" + url.PathEscape(id), nil
}

func (s *CachedProxyStore) Get(ctx context.Context, id string) (core.Proxy, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Proxy{}, fmt.Errorf("sqlstore: cached proxy store is not configured")
	}
	cacheKey, err := ProxyCacheKey(id)
	if err != nil {
		return core.Proxy{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Proxy, error) {
		return s.base.Get(ctx, strings.TrimSpace(id))
	})
}

func (s *CachedProxyStore) Create(ctx context.Context, proxy core.Proxy) (core.Proxy, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Proxy{}, fmt.Errorf("sqlstore: cached proxy store is not configured")
	}
	created, err := s.base.Create(ctx, proxy)
	if err != nil {
		return core.Proxy{}, err
	}
	cacheKey, keyErr := ProxyCacheKey(created.ID)
	if keyErr != nil {
		return created, nil
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.Proxy{}, err
	}
	return created, nil
}

var _ core.ProxyStore = (*CachedProxyStore)(nil)
