package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

type mysqlDialect struct{}

func init() { register("mysql", mysqlDialect{}) }

func (mysqlDialect) open(ctx context.Context, cfg ConnectionConfig) (*conn, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.Addr = cfg.Host
	mc.Net = "tcp"
	if strings.HasPrefix(cfg.Host, "/") {
		mc.Net = "unix"
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, &ConfigurationError{Field: "host", Reason: err.Error()}
	}
	return pin(ctx, sql.OpenDB(connector))
}

func (d mysqlDialect) useSchema(ctx context.Context, c *conn, _ ConnectionConfig, _, name string) (*conn, error) {
	if _, err := c.c.ExecContext(ctx, "USE "+d.quoteIdent(name)); err != nil {
		return nil, err
	}
	return c, nil
}

func (mysqlDialect) readOnly(ctx context.Context, c *sql.Conn) (querier, func() error, error) {
	tx, err := c.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, err
	}
	return tx, tx.Rollback, nil
}

var mysqlEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\x00", "\\0",
	"\n", "\\n",
	"\r", "\\r",
	"'", "\\'",
	"\"", "\\\"",
	"\x1a", "\\Z",
)

// escape follows the client library's real_escape_string table.
func (mysqlDialect) escape(s string) string { return mysqlEscaper.Replace(s) }

func (mysqlDialect) backslashEscapes() bool { return true }

func (mysqlDialect) now() string { return "now()" }

func (mysqlDialect) quoteIdent(name string) string { return backtick(name) }

func (mysqlDialect) diagnose(err error) (int, string) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return int(me.Number), me.Message
	}
	return 0, err.Error()
}
