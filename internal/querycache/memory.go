package querycache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is a bounded in-process LRU. Entries are stored encoded so
// callers never share row slices with the cache.
type MemoryCache struct {
	lru *lru.Cache[string, []byte]
}

func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: c}, nil
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	b, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	e, err := Unmarshal(b)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, e *Entry) error {
	b, err := Marshal(e)
	if err != nil {
		return err
	}
	c.lru.Add(key, b)
	return nil
}

func (c *MemoryCache) Clear(context.Context) error { c.lru.Purge(); return nil }
func (c *MemoryCache) Writable() bool              { return true }
func (c *MemoryCache) Close() error                { return nil }

func (c *MemoryCache) Stats(context.Context) (Stats, error) {
	st := Stats{Backend: "memory"}
	for _, k := range c.lru.Keys() {
		if b, ok := c.lru.Peek(k); ok {
			st.Entries++
			st.Bytes += int64(len(b))
		}
	}
	return st, nil
}
