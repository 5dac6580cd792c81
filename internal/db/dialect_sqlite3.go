//go:build cgo

package db

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

func init() {
	register("sqlite3", &sqliteDialect{
		driver: "sqlite3",
		dsn: func(path string) string {
			if path == memory {
				return path
			}
			return fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL", path)
		},
		diag: func(err error) (int, string) {
			var se sqlite3.Error
			if errors.As(err, &se) {
				return int(se.Code), se.Error()
			}
			return 0, err.Error()
		},
	})
}
