package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-mailroom/core"
)

type deliveryRecordRow struct {
	bun.BaseModel `bun:"table:delivery_records,alias:dr"`

	ID               string     `bun:"id,pk"`
	Email            string     `bun:"email,notnull"`
	Validity         string     `bun:"validity,notnull"`
	InvalidityReason string     `bun:"invalidity_reason"`
	LastValidatedAt  *time.Time `bun:"last_validated_at,nullzero"`
	Status           string     `bun:"status,notnull"`
	Provider         string     `bun:"provider"`
	ProxyID          string     `bun:"proxy_id"`
	SentAt           *time.Time `bun:"sent_at,nullzero"`
	LastError        string     `bun:"last_error"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newDeliveryRecordRow(record core.DeliveryRecord) *deliveryRecordRow {
	return &deliveryRecordRow{
		ID:               record.ID,
		Email:            record.Email,
		Validity:         string(record.Validity),
		InvalidityReason: record.InvalidityReason,
		LastValidatedAt:  record.LastValidatedAt,
		Status:           string(record.Status),
		Provider:         record.Provider,
		ProxyID:          record.ProxyID,
		SentAt:           record.SentAt,
		LastError:        record.LastError,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
}

func (r *deliveryRecordRow) toDomain() core.DeliveryRecord {
	if r == nil {
		return core.DeliveryRecord{}
	}
	return core.DeliveryRecord{
		ID:               r.ID,
		Email:            r.Email,
		Validity:         core.EmailValidity(r.Validity),
		InvalidityReason: r.InvalidityReason,
		LastValidatedAt:  r.LastValidatedAt,
		Status:           core.DeliveryStatus(r.Status),
		Provider:         r.Provider,
		ProxyID:          r.ProxyID,
		SentAt:           r.SentAt,
		LastError:        r.LastError,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type proxyRow struct {
	bun.BaseModel `bun:"table:delivery_proxies,alias:dp"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Host      string    `bun:"host,notnull"`
	Port      int       `bun:"port,notnull"`
	Username  string    `bun:"username"`
	Password  string    `bun:"password"`
	Active    bool      `bun:"active,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newProxyRow(proxy core.Proxy) *proxyRow {
	return &proxyRow{
		ID:        proxy.ID,
		Name:      proxy.Name,
		Host:      proxy.Host,
		Port:      proxy.Port,
		Username:  proxy.Username,
		Password:  proxy.Password,
		Active:    proxy.Active,
		CreatedAt: proxy.CreatedAt,
		UpdatedAt: proxy.UpdatedAt,
	}
}

func (r *proxyRow) toDomain() core.Proxy {
	if r == nil {
		return core.Proxy{}
	}
	return core.Proxy{
		ID:        r.ID,
		Name:      r.Name,
		Host:      r.Host,
		Port:      r.Port,
		Username:  r.Username,
		Password:  r.Password,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
