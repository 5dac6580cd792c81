package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Literal markers recognized by the statement builders.
const (
	NowMarker  = "now()"
	NullMarker = "null"
)

type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
)

type Column struct {
	Name  string
	Value any
}

// Columns keeps column order, which maps would not.
type Columns []Column

// Cols builds Columns from name/value pairs. It panics on an odd argument
// count or a non-string name.
func Cols(kv ...any) Columns {
	if len(kv)%2 != 0 {
		panic("db.Cols: odd number of arguments")
	}
	out := make(Columns, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("db.Cols: column name %v is not a string", kv[i]))
		}
		out = append(out, Column{Name: name, Value: kv[i+1]})
	}
	return out
}

// BuildInsert renders an INSERT for cols. Values are escaped with the live
// connection's rules, so this connects if needed.
func (d *DB) BuildInsert(ctx context.Context, table string, cols Columns) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cn, err := d.ensureConnected(ctx)
	if err != nil {
		return "", err
	}
	return buildInsert(cn.d, table, cols)
}

// BuildUpdate renders an UPDATE for cols restricted by where. An empty where
// clause is rejected rather than touching every row.
func (d *DB) BuildUpdate(ctx context.Context, table string, cols Columns, where string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cn, err := d.ensureConnected(ctx)
	if err != nil {
		return "", err
	}
	return buildUpdate(cn.d, table, cols, where)
}

func buildInsert(dl dialect, table string, cols Columns) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("db: insert into %s: no columns", table)
	}
	names := make([]string, len(cols))
	vals := make([]string, len(cols))
	for i, c := range cols {
		names[i] = dl.quoteIdent(strings.TrimSpace(c.Name))
		vals[i] = literal(dl, c.Value)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		dl.quoteIdent(strings.TrimSpace(table)), strings.Join(names, ", "), strings.Join(vals, ", ")), nil
}

func buildUpdate(dl dialect, table string, cols Columns, where string) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("db: update %s: no columns", table)
	}
	if strings.TrimSpace(where) == "" {
		return "", ErrEmptyWhere
	}
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = dl.quoteIdent(strings.TrimSpace(c.Name)) + " = " + literal(dl, c.Value)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		dl.quoteIdent(strings.TrimSpace(table)), strings.Join(sets, ", "), where), nil
}

func literal(dl dialect, v any) string {
	if v == nil {
		return "null"
	}
	s := toString(v)
	switch s {
	case NowMarker:
		return dl.now()
	case NullMarker:
		return "null"
	}
	return "'" + prepare(dl, s) + "'"
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// Perform builds and runs an insert or update. Cached reads are dropped
// first unless KeepCache is passed.
func (d *DB) Perform(ctx context.Context, table string, cols Columns, action Action, where string, opts ...QueryOption) (*Result, error) {
	var o queryOptions
	for _, fn := range opts {
		fn(&o)
	}
	if !o.keepCache {
		if err := d.ClearCache(ctx); err != nil {
			d.log.Warn().Err(err).Msg("query cache clear failed")
		}
	}

	var q string
	var err error
	switch action {
	case ActionInsert:
		q, err = d.BuildInsert(ctx, table, cols)
	case ActionUpdate:
		q, err = d.BuildUpdate(ctx, table, cols, where)
	default:
		return nil, fmt.Errorf("db: unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}
	return d.Query(ctx, q, opts...)
}
