package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-mailroom/core"
)

// ProxyStore reads proxy routing rows. Proxy CRUD lives in the panel;
// this store serves lookups and test fixtures.
type ProxyStore struct {
	db   *bun.DB
	repo repository.Repository[*proxyRow]
}

func NewProxyStore(db *bun.DB) (*ProxyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*proxyRow](db, proxyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid proxy repository wiring: %w", err)
		}
	}
	return &ProxyStore{db: db, repo: repo}, nil
}

func (s *ProxyStore) Get(ctx context.Context, id string) (core.Proxy, error) {
	if s == nil || s.db == nil {
		return core.Proxy{}, fmt.Errorf("sqlstore: proxy store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Proxy{}, fmt.Errorf("sqlstore: proxy id is required")
	}
	row := &proxyRow{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Proxy{}, fmt.Errorf("%w: proxy id %q", core.ErrRecordNotFound, id)
		}
		return core.Proxy{}, err
	}
	return row.toDomain(), nil
}

func (s *ProxyStore) Create(ctx context.Context, proxy core.Proxy) (core.Proxy, error) {
	if s == nil || s.db == nil {
		return core.Proxy{}, fmt.Errorf("sqlstore: proxy store is not configured")
	}
	if strings.TrimSpace(proxy.Host) == "" {
		return core.Proxy{}, fmt.Errorf("sqlstore: proxy host is required")
	}
	if strings.TrimSpace(proxy.ID) == "" {
		proxy.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if proxy.CreatedAt.IsZero() {
		proxy.CreatedAt = now
	}
	proxy.UpdatedAt = now

	row := newProxyRow(proxy)
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return core.Proxy{}, err
	}
	return row.toDomain(), nil
}
