package store

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/web3tea/pgcdc-sentinel/pkg/log"
)

type PebbleStore struct {
	db   *pebble.DB
	path string
	sync bool
}

type PebbleOption func(*pebbleOptions)

type pebbleOptions struct {
	fs          vfs.FS
	cacheSizeMB int64
	sync        bool
}

// WithFS runs the store on the given filesystem, e.g. vfs.NewMem() in tests.
func WithFS(fs vfs.FS) PebbleOption {
	return func(o *pebbleOptions) {
		o.fs = fs
	}
}

func WithCacheSizeMB(mb int64) PebbleOption {
	return func(o *pebbleOptions) {
		if mb > 0 {
			o.cacheSizeMB = mb
		}
	}
}

// WithSync makes every write wait for the WAL to reach disk.
func WithSync(sync bool) PebbleOption {
	return func(o *pebbleOptions) {
		o.sync = sync
	}
}

type pebbleLogger struct{}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	log.Debugf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	log.Errorf("[pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatalf("[pebble] "+format, args...)
}

func NewPebbleStore(path string, opts ...PebbleOption) (*PebbleStore, error) {
	o := pebbleOptions{cacheSizeMB: 8}
	for _, opt := range opts {
		opt(&o)
	}

	cache := pebble.NewCache(o.cacheSizeMB << 20)
	defer cache.Unref()

	pebbleOpts := &pebble.Options{
		Cache:  cache,
		FS:     o.fs,
		Logger: &pebbleLogger{},
	}
	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db, path: path, sync: o.sync}, nil
}

func (s *PebbleStore) writeOpts() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *PebbleStore) Get(_ context.Context, key string) ([]byte, error) {
	val, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *PebbleStore) Set(_ context.Context, key string, value []byte) error {
	return s.db.Set([]byte(key), value, s.writeOpts())
}

func (s *PebbleStore) Delete(_ context.Context, key string) error {
	return s.db.Delete([]byte(key), s.writeOpts())
}

func (s *PebbleStore) Apply(_ context.Context, ops []Op) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		var err error
		if op.Delete {
			err = batch.Delete([]byte(op.Key), nil)
		} else {
			err = batch.Set([]byte(op.Key), op.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", op.Key, err)
		}
	}
	return batch.Commit(s.writeOpts())
}

// Scan calls fn for every key with the given prefix in key order.
func (s *PebbleStore) Scan(_ context.Context, prefix string, fn func(key string, value []byte) error) error {
	lower := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(lower); iter.Valid(); iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(string(iter.Key()), val); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

var (
	_ Store   = (*PebbleStore)(nil)
	_ Batcher = (*PebbleStore)(nil)
)
