// Package querycache stores fully materialized read results keyed by a hash
// of the statement text. Backends are interchangeable behind Cache.
package querycache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gitea.knapp/jacoknapp/simpl/internal/config"
)

// Entry is one cached result set. Rows hold driver-neutral scalars in
// column order.
type Entry struct {
	Columns []string `cbor:"1,keyasint"`
	Rows    [][]any  `cbor:"2,keyasint"`
}

// Cache is a result store. Get must return a nil error on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Set(ctx context.Context, key string, e *Entry) error
	Clear(ctx context.Context) error
	// Writable reports whether Set can currently succeed. Callers skip the
	// cache entirely when it returns false.
	Writable() bool
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

type Stats struct {
	Backend string `json:"backend"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// Key is the hex md5 of the exact statement text.
func Key(query string) string {
	sum := md5.Sum([]byte(query))
	return hex.EncodeToString(sum[:])
}

// New builds the backend named by cfg.Backend.
func New(cfg config.Cache) (Cache, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileCache(cfg.Dir)
	case "memory":
		return NewMemoryCache(cfg.Size)
	case "sqlite":
		return OpenSQLiteCache(cfg.Path)
	case "redis":
		rc := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       []string{cfg.Redis.Addr},
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: 2 * time.Second,
		})
		return NewRedisCache(rc, cfg.Redis.Prefix), nil
	case "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("querycache: unknown backend %q", cfg.Backend)
}

// Nop never stores anything and reports itself read-only.
type Nop struct{}

func (Nop) Get(context.Context, string) (*Entry, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, *Entry) error         { return nil }
func (Nop) Clear(context.Context) error                       { return nil }
func (Nop) Writable() bool                                    { return false }
func (Nop) Stats(context.Context) (Stats, error)              { return Stats{Backend: "none"}, nil }
func (Nop) Close() error                                      { return nil }
