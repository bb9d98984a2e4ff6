package keyvalue

import (
	"context"

	"github.com/hashicorp/golang-lru/v2"
)

// PrimaryKeyResolver supplies the ordered column positions that form the
// primary key of a table. A nil slice with a nil error means the table is unknown.
// Implementations must be safe for concurrent use.
type PrimaryKeyResolver interface {
	PrimaryKeyIndices(ctx context.Context, schema, table string) ([]int, error)
}

// MapResolver is a static PrimaryKeyResolver keyed by dataset name
// (schema + delimiter + table).
type MapResolver struct {
	indices   map[string][]int
	delimiter string
}

func NewMapResolver(indices map[string][]int, delimiter string) *MapResolver {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	m := make(map[string][]int, len(indices))
	for k, v := range indices {
		m[k] = append([]int(nil), v...)
	}
	return &MapResolver{indices: m, delimiter: delimiter}
}

func (r *MapResolver) PrimaryKeyIndices(_ context.Context, schema, table string) ([]int, error) {
	return r.indices[schema+r.delimiter+table], nil
}

// ChainResolver asks each resolver in turn and returns the first known answer.
type ChainResolver []PrimaryKeyResolver

func (c ChainResolver) PrimaryKeyIndices(ctx context.Context, schema, table string) ([]int, error) {
	for _, r := range c {
		indices, err := r.PrimaryKeyIndices(ctx, schema, table)
		if err != nil || indices != nil {
			return indices, err
		}
	}
	return nil, nil
}

// CachedResolver remembers the answers of another resolver. Unknown tables
// are not cached so that a table created later is picked up.
type CachedResolver struct {
	next  PrimaryKeyResolver
	cache *lru.Cache[string, []int]
}

func NewCachedResolver(next PrimaryKeyResolver, size int) (*CachedResolver, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []int](size)
	if err != nil {
		return nil, err
	}
	return &CachedResolver{next: next, cache: cache}, nil
}

func (r *CachedResolver) PrimaryKeyIndices(ctx context.Context, schema, table string) ([]int, error) {
	key := schema + "." + table
	if indices, ok := r.cache.Get(key); ok {
		return indices, nil
	}
	indices, err := r.next.PrimaryKeyIndices(ctx, schema, table)
	if err != nil || indices == nil {
		return indices, err
	}
	r.cache.Add(key, indices)
	return indices, nil
}

// Purge drops every cached entry, e.g. after a schema change.
func (r *CachedResolver) Purge() {
	r.cache.Purge()
}

var (
	_ PrimaryKeyResolver = (*MapResolver)(nil)
	_ PrimaryKeyResolver = ChainResolver(nil)
	_ PrimaryKeyResolver = (*CachedResolver)(nil)
)
