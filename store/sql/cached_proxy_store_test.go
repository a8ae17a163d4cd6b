package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-mailroom/core"
)

type stubProxyStore struct {
	mu          sync.Mutex
	proxy       core.Proxy
	getCalls    int
	createCalls int
	getErr      error
	createErr   error
}

func (s *stubProxyStore) Get(_ context.Context, _ string) (core.Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return core.Proxy{}, s.getErr
	}
	return s.proxy, nil
}

func (s *stubProxyStore) Create(_ context.Context, proxy core.Proxy) (core.Proxy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return core.Proxy{}, s.createErr
	}
	s.proxy = proxy
	return proxy, nil
}

func TestCachedProxyStore_Get_MissFetchThenHit(t *testing.T) {
	cacheService := newTestProxyCacheService(t)
	base := &stubProxyStore{
		proxy: core.Proxy{
			ID:     "proxy_cache_1",
			Host:   "proxy.internal",
			Port:   3128,
			Active: true,
		},
	}

	store, err := NewCachedProxyStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached proxy store: %v", err)
	}

	if _, err := store.Get(context.Background(), "proxy_cache_1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to fetch base store once, got %d", base.getCalls)
	}

	proxy, err := store.Get(context.Background(), "proxy_cache_1")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be cache hit, base get calls=%d", base.getCalls)
	}
	if proxy.Host != "proxy.internal" {
		t.Fatalf("expected cached proxy host, got %q", proxy.Host)
	}
}

func TestCachedProxyStore_Create_InvalidatesCachedKey(t *testing.T) {
	cacheService := newTestProxyCacheService(t)
	base := &stubProxyStore{
		proxy: core.Proxy{
			ID:     "proxy_cache_2",
			Host:   "proxy-a.internal",
			Port:   3128,
			Active: true,
		},
	}

	store, err := NewCachedProxyStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached proxy store: %v", err)
	}

	if _, err := store.Get(context.Background(), "proxy_cache_2"); err != nil {
		t.Fatalf("prime cache with get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected one base read after cache prime, got %d", base.getCalls)
	}

	if _, err := store.Create(context.Background(), core.Proxy{
		ID:     "proxy_cache_2",
		Host:   "proxy-b.internal",
		Port:   8080,
		Active: true,
	}); err != nil {
		t.Fatalf("create through cached store: %v", err)
	}
	if base.createCalls != 1 {
		t.Fatalf("expected base create call count=1, got %d", base.createCalls)
	}

	proxy, err := store.Get(context.Background(), "proxy_cache_2")
	if err != nil {
		t.Fatalf("get after create invalidation: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidated key to force second base read, got %d", base.getCalls)
	}
	if proxy.Host != "proxy-b.internal" {
		t.Fatalf("expected refreshed proxy host, got %q", proxy.Host)
	}
}

func TestProxyCacheKey_Contract(t *testing.T) {
	key, err := ProxyCacheKey(" proxy/alpha one ")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}

	const expected = "go-mailroom::delivery_proxy::v1::proxy%2Falpha%20one"
	if key != expected {
		t.Fatalf("unexpected cache key contract: got %q want %q", key, expected)
	}

	if _, err := ProxyCacheKey("   "); err == nil {
		t.Fatalf("expected empty proxy id to be rejected")
	}
}

func TestCachedProxyStore_PropagatesBaseErrors(t *testing.T) {
	cacheService := newTestProxyCacheService(t)
	base := &stubProxyStore{getErr: core.ErrRecordNotFound}
	store, err := NewCachedProxyStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached proxy store: %v", err)
	}

	_, err = store.Get(context.Background(), "proxy_cache_404")
	if !errors.Is(err, core.ErrRecordNotFound) {
		t.Fatalf("expected base error propagation, got %v", err)
	}
}

func newTestProxyCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
