package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"

	"gitea.knapp/jacoknapp/simpl/internal/file"
)

// sqliteDialect maps schemas to files: schema "app" lives at <Host>/app.db.
// The first connect creates the file; switching to another schema requires
// its file to exist already.
type sqliteDialect struct {
	driver string
	dsn    func(path string) string
	diag   func(err error) (int, string)
}

func init() {
	register("sqlite", &sqliteDialect{
		driver: "sqlite",
		dsn: func(path string) string {
			if path == memory {
				return path
			}
			return fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
		},
		diag: func(err error) (int, string) {
			var se *sqlite.Error
			if errors.As(err, &se) {
				return se.Code(), se.Error()
			}
			return 0, err.Error()
		},
	})
}

const memory = ":memory:"

var errInMemorySchema = errors.New("an in-memory database cannot be switched")

func schemaPath(dir, name string) string {
	if name == memory {
		return name
	}
	if filepath.Ext(name) == "" {
		name += ".db"
	}
	return filepath.Join(dir, name)
}

func (d *sqliteDialect) connect(ctx context.Context, path string) (*conn, error) {
	pool, err := sql.Open(d.driver, d.dsn(path))
	if err != nil {
		return nil, err
	}
	return pin(ctx, pool)
}

func (d *sqliteDialect) open(ctx context.Context, cfg ConnectionConfig) (*conn, error) {
	if cfg.Database == "" {
		return nil, &ConfigurationError{Field: "database", Reason: "is required for " + d.driver}
	}
	if cfg.Host != "" && cfg.Database != memory {
		if err := os.MkdirAll(cfg.Host, 0o755); err != nil {
			return nil, err
		}
	}
	return d.connect(ctx, schemaPath(cfg.Host, cfg.Database))
}

// useSchema refuses to leave or enter an in-memory database: closing its
// handle would drop every table in it.
func (d *sqliteDialect) useSchema(ctx context.Context, _ *conn, cfg ConnectionConfig, from, name string) (*conn, error) {
	if from == memory || name == memory {
		return nil, errInMemorySchema
	}
	if name != file.FormatName(name) {
		return nil, fmt.Errorf("invalid schema name %q", name)
	}
	path := schemaPath(cfg.Host, name)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("unknown database %q: %w", name, err)
	}
	return d.connect(ctx, path)
}

func (d *sqliteDialect) readOnly(ctx context.Context, c *sql.Conn) (querier, func() error, error) {
	if _, err := c.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, nil, err
	}
	return c, func() error {
		_, err := c.ExecContext(context.WithoutCancel(ctx), "PRAGMA query_only = OFF")
		return err
	}, nil
}

func (d *sqliteDialect) backslashEscapes() bool { return false }

func (d *sqliteDialect) escape(s string) string { return strings.ReplaceAll(s, "'", "''") }

func (d *sqliteDialect) now() string { return "CURRENT_TIMESTAMP" }

func (d *sqliteDialect) quoteIdent(name string) string { return backtick(name) }

func (d *sqliteDialect) diagnose(err error) (int, string) { return d.diag(err) }
