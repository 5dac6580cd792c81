package db

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"gitea.knapp/jacoknapp/simpl/internal/querycache"
)

// Result is a fully buffered statement result. Reads are walked with Next;
// writes carry RowsAffected and LastInsertID.
type Result struct {
	cols     []string
	rows     [][]any
	pos      int
	cached   bool
	affected int64
	lastID   int64
}

// Next returns the next row, or false once the rows are exhausted.
func (r *Result) Next() (Row, bool) {
	if r == nil || r.pos >= len(r.rows) {
		return Row{}, false
	}
	row := Row{cols: r.cols, vals: r.rows[r.pos]}
	r.pos++
	return row, true
}

// Reset rewinds Next to the first row.
func (r *Result) Reset() { r.pos = 0 }

func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rows)
}

func (r *Result) Columns() []string { return r.cols }

func (r *Result) Rows() []Row {
	out := make([]Row, len(r.rows))
	for i, v := range r.rows {
		out[i] = Row{cols: r.cols, vals: v}
	}
	return out
}

// Cached reports whether the rows came from the result cache.
func (r *Result) Cached() bool        { return r.cached }
func (r *Result) RowsAffected() int64 { return r.affected }
func (r *Result) LastInsertID() int64 { return r.lastID }

func (r *Result) entry() *querycache.Entry {
	return &querycache.Entry{Columns: r.cols, Rows: r.rows}
}

func cachedResult(e *querycache.Entry) *Result {
	return &Result{cols: e.Columns, rows: e.Rows, cached: true}
}

func bufferRows(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	binary := make([]bool, len(cols))
	if types, err := rows.ColumnTypes(); err == nil {
		for i, t := range types {
			binary[i] = isBinaryType(t.DatabaseTypeName())
		}
	}
	res := &Result{cols: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v, binary[i])
		}
		res.rows = append(res.rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	res.affected = int64(len(res.rows))
	return res, nil
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY")
}

// normalize turns driver-specific scalars into the set every cache backend
// round-trips unchanged. Text arrives as []byte from some drivers and becomes
// a string; binary columns and bytes that are not UTF-8 stay []byte.
// Unsigned values past MaxInt64 become decimal strings.
func normalize(v any, binary bool) any {
	switch x := v.(type) {
	case []byte:
		if binary || !utf8.Valid(x) {
			return x
		}
		return string(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return strconv.FormatUint(x, 10)
		}
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

// Row is one result row in column order.
type Row struct {
	cols []string
	vals []any
}

func (r Row) Columns() []string { return r.cols }
func (r Row) Values() []any     { return r.vals }

func (r Row) Get(col string) (any, bool) {
	for i, c := range r.cols {
		if c == col {
			return r.vals[i], true
		}
	}
	return nil, false
}

// String renders a column as text; NULL and missing columns are "".
func (r Row) String(col string) string {
	v, ok := r.Get(col)
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.cols))
	for i, c := range r.cols {
		m[c] = r.vals[i]
	}
	return m
}

// MarshalJSON keeps column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
