package querycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCache keeps every entry in one sqlite file, which is easier to ship
// around or purge than a directory of cache files.
type SQLiteCache struct {
	db   *sql.DB
	path string
}

func OpenSQLiteCache(path string) (*SQLiteCache, error) {
	if path == "" {
		return nil, fmt.Errorf("querycache: sqlite backend needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("querycache: create dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("querycache: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS query_cache (
  cache_key TEXT PRIMARY KEY,
  content BLOB NOT NULL,
  created_at INTEGER NOT NULL
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("querycache: create table: %w", err)
	}
	return &SQLiteCache{db: db, path: path}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var content []byte
	err := c.db.QueryRowContext(ctx, `SELECT content FROM query_cache WHERE cache_key=?`, key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querycache: get: %w", err)
	}
	e, err := Unmarshal(content)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, e *Entry) error {
	b, err := Marshal(e)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `
INSERT OR REPLACE INTO query_cache (cache_key, content, created_at)
VALUES (?, ?, ?)`, key, b, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("querycache: set: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Clear(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM query_cache`)
	return err
}

func (c *SQLiteCache) Writable() bool { return dirWritable(filepath.Dir(c.path)) }

func (c *SQLiteCache) Stats(ctx context.Context) (Stats, error) {
	st := Stats{Backend: "sqlite"}
	var n int
	var size sql.NullInt64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(1), SUM(LENGTH(content)) FROM query_cache`).Scan(&n, &size)
	if err != nil {
		return st, err
	}
	st.Entries = n
	st.Bytes = size.Int64
	return st, nil
}

func (c *SQLiteCache) Close() error { return c.db.Close() }
