package project

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore wraps a Store with an LRU cache. Saves write through and
// refresh the cached copy, and a failed save evicts it, so a caller that
// reloads after a version conflict always sees the inner store's current
// version.
type CachedStore struct {
	inner Store
	cache *lru.Cache[string, *Context]
}

var _ Store = (*CachedStore)(nil)

// NewCachedStore wraps inner with a cache of the given size.
func NewCachedStore(inner Store, size int) (*CachedStore, error) {
	c, err := lru.New[string, *Context](size)
	if err != nil {
		return nil, fmt.Errorf("project cache: %w", err)
	}
	return &CachedStore{inner: inner, cache: c}, nil
}

// Load returns a clone of the cached context, falling through to the
// inner store on a miss.
func (s *CachedStore) Load(ctx context.Context, id string) (*Context, error) {
	if pc, ok := s.cache.Get(id); ok {
		return pc.Clone(), nil
	}
	pc, err := s.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, pc.Clone())
	return pc, nil
}

// Save writes through to the inner store and refreshes the cache on
// success.
func (s *CachedStore) Save(ctx context.Context, pc *Context) error {
	if err := s.inner.Save(ctx, pc); err != nil {
		if pc != nil {
			// The cached copy may be the stale one that caused a
			// version conflict.
			s.cache.Remove(pc.ID)
		}
		return err
	}
	s.cache.Add(pc.ID, pc.Clone())
	return nil
}

// List always hits the inner store.
func (s *CachedStore) List(ctx context.Context) ([]*Context, error) {
	return s.inner.List(ctx)
}

// Delete removes the record and drops it from the cache.
func (s *CachedStore) Delete(ctx context.Context, id string) error {
	s.cache.Remove(id)
	return s.inner.Delete(ctx, id)
}
