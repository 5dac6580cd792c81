package db

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("db: connection not configured")
	ErrNotConnected  = errors.New("db: not connected")
	ErrEmptyWhere    = errors.New("db: update requires a where clause")

	ErrMultipleStatements = errors.New("db: multiple statements in one query")
)

// ConfigurationError reports missing or unusable connection settings.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("db: invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrNotConfigured }

// ConnectionError wraps a failed connect. The wrapper stays configured and
// the next call retries.
type ConnectionError struct {
	Driver string
	Host   string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("db: connect %s %s: %v", e.Driver, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError is returned when the active schema could not be changed.
// The previous schema stays active.
type SchemaError struct {
	Schema string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("db: change schema to %q: %v", e.Schema, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// QueryError carries the statement and the native diagnostic of a failed
// statement. Callers decide whether to abort.
type QueryError struct {
	Query   string
	Code    int
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("db: %d - %s - %s", e.Code, e.Message, e.Query)
}

func (e *QueryError) Unwrap() error { return e.Err }

// CacheWriteError is logged, never returned: the query result is still
// handed to the caller.
type CacheWriteError struct {
	Key string
	Err error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("db: cache write %s: %v", e.Key, e.Err)
}

func (e *CacheWriteError) Unwrap() error { return e.Err }
