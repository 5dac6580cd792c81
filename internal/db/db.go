// Package db wraps a single SQL connection with lazy connect, per-call schema
// switching, a query counter, statement builders and a read-through result
// cache.
//
// A DB serializes its own calls; callers that need parallel statements should
// use one DB per worker, since the selected schema is connection state.
package db

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gitea.knapp/jacoknapp/simpl/internal/querycache"
)

type ConnectionConfig struct {
	Driver   string
	Host     string
	User     string
	Password string
	Database string
}

type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateConnected:
		return "connected"
	}
	return "unconfigured"
}

// link is the connection state: nil, *configured or *connected.
type link interface{ state() State }

type configured struct{ cfg ConnectionConfig }

type connected struct {
	cfg    ConnectionConfig
	d      dialect
	c      *conn
	schema string
}

func (*configured) state() State { return StateConfigured }
func (*connected) state() State  { return StateConnected }

type Option func(*DB)

func WithCache(c querycache.Cache) Option { return func(d *DB) { d.cache = c } }
func WithCacheEnabled(on bool) Option     { return func(d *DB) { d.cacheOn = on } }
func WithLogger(l zerolog.Logger) Option  { return func(d *DB) { d.log = l } }
func WithQueryLog(on bool) Option         { return func(d *DB) { d.logQueries = on } }

// WithTimeout bounds every connect and statement. Zero means no limit.
func WithTimeout(t time.Duration) Option { return func(d *DB) { d.timeout = t } }

type DB struct {
	mu   sync.Mutex
	link link

	cache      querycache.Cache
	cacheOn    bool
	logQueries bool
	timeout    time.Duration
	log        zerolog.Logger

	queries  int64
	hits     int64
	misses   int64
	lastID   int64
	affected int64
}

// New returns an unconfigured wrapper.
func New(opts ...Option) *DB {
	d := &DB{cache: querycache.Nop{}, cacheOn: true, log: zerolog.Nop()}
	for _, o := range opts {
		o(d)
	}
	if d.cache == nil {
		d.cache = querycache.Nop{}
	}
	return d
}

// Open returns a configured wrapper. Nothing is dialed until the first
// statement.
func Open(cfg ConnectionConfig, opts ...Option) *DB {
	d := New(opts...)
	_ = d.Configure(cfg)
	return d
}

// Configure stores connection parameters without connecting. It is a no-op
// while connected and always succeeds.
func (d *DB) Configure(cfg ConnectionConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.link.(*connected); ok {
		return nil
	}
	d.link = &configured{cfg: cfg}
	return nil
}

func (d *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.timeout)
}

// EnsureConnected dials on first use. Failures leave the wrapper configured
// so a later call can retry.
func (d *DB) EnsureConnected(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.ensureConnected(ctx)
	return err
}

func (d *DB) ensureConnected(ctx context.Context) (*connected, error) {
	switch l := d.link.(type) {
	case *connected:
		return l, nil
	case *configured:
		dl, ok := dialects[l.cfg.Driver]
		if !ok {
			return nil, &ConfigurationError{Field: "driver", Reason: fmt.Sprintf("%q is not registered", l.cfg.Driver)}
		}
		ctx, cancel := d.withTimeout(ctx)
		defer cancel()
		c, err := dl.open(ctx, l.cfg)
		if err != nil {
			var ce *ConfigurationError
			if errors.As(err, &ce) {
				return nil, err
			}
			d.log.Warn().Err(err).Str("driver", l.cfg.Driver).Str("host", l.cfg.Host).Msg("connect failed")
			return nil, &ConnectionError{Driver: l.cfg.Driver, Host: l.cfg.Host, Err: err}
		}
		cn := &connected{cfg: l.cfg, d: dl, c: c, schema: l.cfg.Database}
		d.link = cn
		d.log.Debug().Str("driver", l.cfg.Driver).Str("schema", cn.schema).Msg("connected")
		return cn, nil
	}
	return nil, &ConfigurationError{Field: "connection", Reason: "was never configured"}
}

// ChangeSchema selects another schema for subsequent statements. On failure
// the previous schema stays active and the connection stays open.
func (d *DB) ChangeSchema(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cn, err := d.ensureConnected(ctx)
	if err != nil {
		return err
	}
	return d.changeSchema(ctx, cn, name)
}

func (d *DB) changeSchema(ctx context.Context, cn *connected, name string) error {
	if name == "" {
		return &SchemaError{Schema: name, Err: errors.New("empty schema name")}
	}
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	c, err := cn.d.useSchema(ctx, cn.c, cn.cfg, cn.schema, name)
	if err != nil {
		d.log.Debug().Err(err).Str("schema", name).Msg("change schema failed")
		return &SchemaError{Schema: name, Err: err}
	}
	if c != cn.c {
		if err := cn.c.close(); err != nil {
			d.log.Warn().Err(err).Str("schema", cn.schema).Msg("close previous schema")
		}
		cn.c = c
	}
	d.log.Debug().Str("from", cn.schema).Str("to", name).Msg("changed schema")
	cn.schema = name
	return nil
}

// Close releases the connection. The wrapper returns to the configured state
// and reconnects on the next statement.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cn, ok := d.link.(*connected)
	if !ok {
		return nil
	}
	d.link = &configured{cfg: cn.cfg}
	return cn.c.close()
}

func (d *DB) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.link == nil {
		return StateUnconfigured
	}
	return d.link.state()
}

func (d *DB) IsConnected() bool { return d.State() == StateConnected }

// Database is the active schema, or the configured one before connecting.
func (d *DB) Database() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch l := d.link.(type) {
	case *connected:
		return l.schema
	case *configured:
		return l.cfg.Database
	}
	return ""
}

// Driver is the configured driver name.
func (d *DB) Driver() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch l := d.link.(type) {
	case *connected:
		return l.cfg.Driver
	case *configured:
		return l.cfg.Driver
	}
	return ""
}

// QueryCount is the number of statements sent to the server. Cache hits are
// not counted.
func (d *DB) QueryCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queries
}

func (d *DB) LastInsertID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastID
}

func (d *DB) RowsAffected() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.affected
}

func (d *DB) SetCacheEnabled(on bool) {
	d.mu.Lock()
	d.cacheOn = on
	d.mu.Unlock()
}

func (d *DB) SetLogQueries(on bool) {
	d.mu.Lock()
	d.logQueries = on
	d.mu.Unlock()
}

func (d *DB) Cache() querycache.Cache { return d.cache }

// ClearCache drops every cached result.
func (d *DB) ClearCache(ctx context.Context) error {
	return d.cache.Clear(ctx)
}

type Stats struct {
	Queries      int64  `json:"queries"`
	CacheHits    int64  `json:"cacheHits"`
	CacheMisses  int64  `json:"cacheMisses"`
	CacheEnabled bool   `json:"cacheEnabled"`
	LogQueries   bool   `json:"logQueries"`
	State        string `json:"state"`
	Driver       string `json:"driver"`
	Schema       string `json:"schema"`
}

func (d *DB) Stats() Stats {
	st := Stats{State: d.State().String(), Driver: d.Driver(), Schema: d.Database()}
	d.mu.Lock()
	defer d.mu.Unlock()
	st.Queries = d.queries
	st.CacheHits = d.hits
	st.CacheMisses = d.misses
	st.CacheEnabled = d.cacheOn
	st.LogQueries = d.logQueries
	return st
}
