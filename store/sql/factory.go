package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory wires the delivery stores off one bun handle. It
// accepts either a raw *bun.DB or a persistence client.
type RepositoryFactory struct {
	db *bun.DB

	deliveryRecordStore *DeliveryRecordStore
	proxyStore          *ProxyStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.deliveryRecordStore != nil && f.proxyStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) initStores() error {
	deliveryRecordStore, err := NewDeliveryRecordStore(f.db)
	if err != nil {
		return err
	}
	f.deliveryRecordStore = deliveryRecordStore

	proxyStore, err := NewProxyStore(f.db)
	if err != nil {
		return err
	}
	f.proxyStore = proxyStore
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) DeliveryRecordStore() *DeliveryRecordStore {
	if f == nil {
		return nil
	}
	return f.deliveryRecordStore
}

func (f *RepositoryFactory) ProxyStore() *ProxyStore {
	if f == nil {
		return nil
	}
	return f.proxyStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
