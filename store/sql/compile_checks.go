package sqlstore

import "github.com/goliatone/go-mailroom/core"

var (
	_ core.DeliveryRecordStore = (*DeliveryRecordStore)(nil)
	_ core.ProxyStore          = (*ProxyStore)(nil)
	_ core.ProxyStore          = (*CachedProxyStore)(nil)
)
