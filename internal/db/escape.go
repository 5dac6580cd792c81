package db

import (
	"context"
	"html"

	"gitea.knapp/jacoknapp/simpl/internal/util"
)

// Prepare renders v for use inside a quoted SQL literal. Numeric values are
// returned as is; everything else goes through the connection's escaping, so
// Prepare connects if needed.
func (d *DB) Prepare(ctx context.Context, v any) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cn, err := d.ensureConnected(ctx)
	if err != nil {
		return "", err
	}
	return prepare(cn.d, toString(v)), nil
}

func prepare(dl dialect, s string) string {
	if util.IsNumeric(s) {
		return s
	}
	return dl.escape(s)
}

// Output makes a stored value safe to place in HTML. It is not an SQL
// escape and must never stand in for Prepare.
func Output(s string) string {
	return html.EscapeString(util.StripSlashes(s))
}
