package sink

import (
	"context"
	"fmt"

	"github.com/web3tea/pgcdc-sentinel/keyvalue"
	"github.com/web3tea/pgcdc-sentinel/store"
)

type PebbleConfig struct {
	Path        string `json:"path" yaml:"path" toml:"path"`
	CacheSizeMB int64  `json:"cache_size_mb" yaml:"cache_size_mb" toml:"cache_size_mb"`
	Sync        bool   `json:"sync" yaml:"sync" toml:"sync"`
}

// StoreSink materializes datasets in a local store under "dataset/key".
type StoreSink struct {
	store store.Store
	kind  string
}

func NewPebbleSink(cfg PebbleConfig) (*StoreSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("pebble sink requires a path")
	}
	st, err := store.NewPebbleStore(cfg.Path, store.WithCacheSizeMB(cfg.CacheSizeMB), store.WithSync(cfg.Sync))
	if err != nil {
		return nil, err
	}
	return &StoreSink{store: st, kind: "pebble"}, nil
}

func NewStoreSink(st store.Store) *StoreSink {
	return &StoreSink{store: st, kind: "store"}
}

// StoreKey is the store key of a dataset row.
func StoreKey(dataset, key string) string {
	return dataset + "/" + key
}

func (s *StoreSink) Init(ctx context.Context) error {
	return nil
}

func (s *StoreSink) Write(ctx context.Context, events []*keyvalue.Event) error {
	if b, ok := s.store.(store.Batcher); ok {
		ops := make([]store.Op, 0, len(events))
		for _, e := range events {
			ops = append(ops, store.Op{Key: StoreKey(e.Dataset, e.Key), Value: e.ValueBytes(), Delete: e.IsDelete()})
		}
		return b.Apply(ctx, ops)
	}

	for _, e := range events {
		var err error
		if e.IsDelete() {
			err = s.store.Delete(ctx, StoreKey(e.Dataset, e.Key))
		} else {
			err = s.store.Set(ctx, StoreKey(e.Dataset, e.Key), e.ValueBytes())
		}
		if err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", e.Dataset, e.Key, err)
		}
	}
	return nil
}

func (s *StoreSink) Flush(ctx context.Context) error {
	return nil
}

func (s *StoreSink) Close() error {
	return s.store.Close()
}

func (s *StoreSink) Type() string {
	return s.kind
}

var _ Sink = (*StoreSink)(nil)
