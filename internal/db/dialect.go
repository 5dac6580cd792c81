package db

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
)

// dialect adapts one database/sql driver to the wrapper: how to connect,
// how to switch schema, and how to render literals.
type dialect interface {
	open(ctx context.Context, cfg ConnectionConfig) (*conn, error)
	// useSchema returns the handle that now serves name instead of from. It
	// may be c itself.
	useSchema(ctx context.Context, c *conn, cfg ConnectionConfig, from, name string) (*conn, error)
	// readOnly puts c into a mode where writes fail. done leaves it again.
	readOnly(ctx context.Context, c *sql.Conn) (q querier, done func() error, err error)
	escape(s string) string
	backslashEscapes() bool
	now() string
	quoteIdent(name string) string
	diagnose(err error) (code int, msg string)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var dialects = map[string]dialect{}

func register(name string, d dialect) { dialects[name] = d }

// Drivers lists the driver names usable in ConnectionConfig.Driver.
func Drivers() []string {
	out := make([]string, 0, len(dialects))
	for k := range dialects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// conn is a single pinned connection. Session state such as the selected
// schema lives on it, so the pool is capped at one connection.
type conn struct {
	pool *sql.DB
	c    *sql.Conn
}

func pin(ctx context.Context, pool *sql.DB) (*conn, error) {
	pool.SetMaxOpenConns(1)
	c, err := pool.Conn(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := c.PingContext(ctx); err != nil {
		c.Close()
		pool.Close()
		return nil, err
	}
	return &conn{pool: pool, c: c}, nil
}

func (c *conn) close() error {
	return errors.Join(c.c.Close(), c.pool.Close())
}

func backtick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
