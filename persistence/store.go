package persistence

import (
	"context"

	"github.com/contentlake/bundledb/common/kvstore"
)

// Column families of the bundle store.
const (
	bundleCF = kvstore.CF("bundle")
	refsCF   = kvstore.CF("refs")
)

type StoreConfig struct {
	Path     string         `json:"path"`
	KVOption kvstore.Option `json:"kv_option"`
}

// Store wraps the kvstore instance holding the serialized bundles and
// the node reference blocks.
type Store struct {
	kvStore kvstore.Store
}

func NewStore(ctx context.Context, cfg *StoreConfig) (*Store, error) {
	cfg.KVOption.CreateIfMissing = true
	cfg.KVOption.ColumnFamily = append(cfg.KVOption.ColumnFamily, bundleCF, refsCF)
	kvStore, err := kvstore.NewKVStore(ctx, cfg.Path+"/kv", &cfg.KVOption)
	if err != nil {
		return nil, err
	}
	return &Store{kvStore: kvStore}, nil
}

func (s *Store) KVStore() kvstore.Store {
	return s.kvStore
}

func (s *Store) Close() {
	s.kvStore.Close()
}
