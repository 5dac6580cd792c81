package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"gitea.knapp/jacoknapp/simpl/internal/querycache"
)

type queryOptions struct {
	schema    string
	noCache   bool
	noLog     bool
	keepCache bool
	readOnly  bool
}

type QueryOption func(*queryOptions)

// WithSchema runs the statement against another schema and switches back
// afterwards.
func WithSchema(name string) QueryOption { return func(o *queryOptions) { o.schema = name } }

// WithoutCache bypasses the result cache for this statement.
func WithoutCache() QueryOption { return func(o *queryOptions) { o.noCache = true } }

// WithoutLog keeps this statement out of the query log.
func WithoutLog() QueryOption { return func(o *queryOptions) { o.noLog = true } }

// KeepCache stops a write from invalidating cached reads.
func KeepCache() QueryOption { return func(o *queryOptions) { o.keepCache = true } }

// ReadOnly runs the statement with writes refused by the server.
func ReadOnly() QueryOption { return func(o *queryOptions) { o.readOnly = true } }

// IsReadStatement reports whether q is eligible for the result cache: its
// first six characters spell "select" in any case.
func IsReadStatement(q string) bool {
	return len(q) >= 6 && strings.EqualFold(q[:6], "select")
}

// Query executes q. Cacheable reads are answered from the cache when
// possible; everything else goes to the server and bumps QueryCount.
// A failed statement returns a *QueryError and leaves the connection open.
func (d *DB) Query(ctx context.Context, q string, opts ...QueryOption) (*Result, error) {
	var o queryOptions
	for _, fn := range opts {
		fn(&o)
	}
	start := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.log.Trace().Str("query", q).Msg("execute")

	if multiStatement(q) {
		return nil, &QueryError{Query: q, Message: "multiple statements are not allowed", Err: ErrMultipleStatements}
	}

	var key string
	if !o.noCache && d.cacheOn && IsReadStatement(q) && d.cache.Writable() {
		key = querycache.Key(q)
		e, ok, err := d.cache.Get(ctx, key)
		switch {
		case err != nil:
			d.log.Warn().Err(err).Str("key", key).Msg("query cache read failed")
		case ok:
			d.hits++
			res := cachedResult(e)
			d.logQuery(o, q, "", start, res)
			return res, nil
		}
		d.misses++
	}

	cn, err := d.ensureConnected(ctx)
	if err != nil {
		return nil, err
	}

	if o.schema != "" && o.schema != cn.schema {
		prev := cn.schema
		if err := d.changeSchema(ctx, cn, o.schema); err != nil {
			return nil, err
		}
		defer func() {
			if d.link != link(cn) {
				return
			}
			if err := d.changeSchema(context.WithoutCancel(ctx), cn, prev); err != nil {
				d.log.Error().Err(err).Str("schema", prev).Msg("restore schema failed")
			}
		}()
	}

	rowsMode := returnsRows(q, cn.d.backslashEscapes())
	res, err := d.exec(ctx, cn, q, rowsMode, o.readOnly)
	if err != nil && lostConn(err) {
		d.link = &configured{cfg: cn.cfg}
		_ = cn.c.close()
		d.log.Warn().Err(err).Str("driver", cn.cfg.Driver).Msg("connection lost")
		return nil, &ConnectionError{Driver: cn.cfg.Driver, Host: cn.cfg.Host, Err: fmt.Errorf("%w: %v", ErrNotConnected, err)}
	}
	d.queries++
	if err != nil {
		code, msg := cn.d.diagnose(err)
		qe := &QueryError{Query: q, Code: code, Message: msg, Err: err}
		d.log.Error().Err(qe).Str("schema", cn.schema).Msg("query failed")
		return nil, qe
	}
	d.affected = res.affected
	if !rowsMode {
		d.lastID = res.lastID
	}
	d.logQuery(o, q, cn.schema, start, res)

	switch {
	case key != "":
		if err := d.cache.Set(ctx, key, res.entry()); err != nil {
			d.log.Warn().Err(&CacheWriteError{Key: key, Err: err}).Msg("query cache write failed")
		}
	case mutates(q) && !o.keepCache:
		if err := d.cache.Clear(ctx); err != nil {
			d.log.Warn().Err(err).Msg("query cache clear failed")
		}
	}
	return res, nil
}

func lostConn(err error) bool {
	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn)
}

func (d *DB) exec(ctx context.Context, cn *connected, q string, rowsMode, readOnly bool) (*Result, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	var qr querier = cn.c.c
	if readOnly {
		ro, done, err := cn.d.readOnly(ctx, cn.c.c)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := done(); err != nil {
				d.log.Warn().Err(err).Msg("leave read-only mode")
			}
		}()
		qr = ro
	}
	if rowsMode {
		rows, err := qr.QueryContext(ctx, q)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return bufferRows(rows)
	}
	r, err := qr.ExecContext(ctx, q)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	res.affected, _ = r.RowsAffected()
	res.lastID, _ = r.LastInsertId()
	return res, nil
}

func (d *DB) logQuery(o queryOptions, q, schema string, start time.Time, res *Result) {
	if !d.logQueries || o.noLog {
		return
	}
	d.log.Info().
		Str("query", q).
		Str("schema", schema).
		Dur("took", time.Since(start)).
		Bool("cached", res.Cached()).
		Int("rows", res.Len()).
		Int64("affected", res.RowsAffected()).
		Msg("query")
}
