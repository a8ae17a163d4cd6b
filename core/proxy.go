package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ProxyResolver maps an optional proxy id to routing parameters. An empty
// id and an inactive proxy both resolve to direct; a proxy the caller
// asked for by id that cannot be loaded is a hard error, never a silent
// fallback to direct.
type ProxyResolver struct {
	store  ProxyStore
	logger Logger
}

func NewProxyResolver(store ProxyStore, logger Logger) (*ProxyResolver, error) {
	if store == nil {
		return nil, fmt.Errorf("core: proxy store is required")
	}
	return &ProxyResolver{store: store, logger: logger}, nil
}

func (r *ProxyResolver) Resolve(ctx context.Context, proxyID string) (RoutingParams, error) {
	if r == nil || r.store == nil {
		return RoutingParams{}, fmt.Errorf("core: proxy resolver is not configured")
	}
	proxyID = strings.TrimSpace(proxyID)
	if proxyID == "" {
		return DirectRouting(), nil
	}

	proxy, err := r.store.Get(ctx, proxyID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return RoutingParams{}, fmt.Errorf("%w: id %q", ErrProxyUnavailable, proxyID)
		}
		return RoutingParams{}, fmt.Errorf("%w: id %q: %v", ErrProxyUnavailable, proxyID, err)
	}
	if !proxy.Active {
		if r.logger != nil {
			r.logger.Debug("proxy inactive, routing direct", "proxy_id", proxyID)
		}
		return DirectRouting(), nil
	}
	if strings.TrimSpace(proxy.Host) == "" || proxy.Port <= 0 {
		return RoutingParams{}, fmt.Errorf("%w: id %q has no usable endpoint", ErrProxyUnavailable, proxyID)
	}

	return RoutingParams{
		Host:     strings.TrimSpace(proxy.Host),
		Port:     proxy.Port,
		Username: proxy.Username,
		Password: proxy.Password,
	}, nil
}
