package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.knapp/jacoknapp/simpl/internal/querycache"
)

func seedUsers(t *testing.T, d *DB) {
	t.Helper()
	mustQuery(t, d, "CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, score REAL, note TEXT)")
	mustQuery(t, d, "INSERT INTO users (name, score, note) VALUES ('alice', 9.5, NULL)")
	mustQuery(t, d, "INSERT INTO users (name, score, note) VALUES ('bob', 7, 'O''Reilly')")
}

func TestCacheHitIsIdenticalAndUncounted(t *testing.T) {
	mc, err := querycache.NewMemoryCache(16)
	require.NoError(t, err)
	d, _ := openTestDB(t, WithCache(mc))
	seedUsers(t, d)

	q := "SELECT id, name, score, note FROM users ORDER BY id"
	first := mustQuery(t, d, q)
	assert.False(t, first.Cached())
	count := d.QueryCount()

	second := mustQuery(t, d, q)
	assert.True(t, second.Cached())
	assert.Equal(t, count, d.QueryCount(), "cache hits are not counted")
	assert.Equal(t, first.Columns(), second.Columns())
	require.Equal(t, first.Len(), second.Len())
	for i, row := range first.Rows() {
		assert.Equal(t, row.Values(), second.Rows()[i].Values(), "row %d", i)
	}

	st := d.Stats()
	assert.Equal(t, int64(1), st.CacheHits)
	assert.Equal(t, int64(1), st.CacheMisses)
}

func TestQueryCountWithSharedFileCache(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	fc, err := querycache.NewFileCache(cacheDir)
	require.NoError(t, err)
	cfg := ConnectionConfig{Driver: "sqlite", Host: dir, Database: "app"}

	warm := Open(cfg, WithCache(fc))
	seedUsers(t, warm)
	q := "SELECT name FROM users ORDER BY id"
	mustQuery(t, warm, q)
	require.NoError(t, warm.Close())

	d := Open(cfg, WithCache(fc))
	t.Cleanup(func() { _ = d.Close() })
	for i := 0; i < 3; i++ {
		mustQuery(t, d, q, WithoutCache())
	}
	assert.Equal(t, int64(3), d.QueryCount())

	res := mustQuery(t, d, q)
	assert.True(t, res.Cached())
	assert.Equal(t, int64(3), d.QueryCount())
	names := []string{}
	for row, ok := res.Next(); ok; row, ok = res.Next() {
		names = append(names, row.String("name"))
	}
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestCacheHitDoesNotConnect(t *testing.T) {
	mc, _ := querycache.NewMemoryCache(4)
	q := "SELECT 1 AS one"
	require.NoError(t, mc.Set(context.Background(), querycache.Key(q), &querycache.Entry{
		Columns: []string{"one"},
		Rows:    [][]any{{int64(1)}},
	}))
	d := Open(ConnectionConfig{Driver: "sqlite", Host: t.TempDir(), Database: "app"}, WithCache(mc))
	res := mustQuery(t, d, q)
	assert.True(t, res.Cached())
	assert.False(t, d.IsConnected())
	assert.Zero(t, d.QueryCount())
}

func TestMutationInvalidatesCache(t *testing.T) {
	mc, _ := querycache.NewMemoryCache(16)
	d, _ := openTestDB(t, WithCache(mc))
	seedUsers(t, d)
	q := "SELECT name FROM users"

	assert.Equal(t, 2, mustQuery(t, d, q).Len())
	mustQuery(t, d, "INSERT INTO users (name) VALUES ('carol')")
	res := mustQuery(t, d, q)
	assert.False(t, res.Cached())
	assert.Equal(t, 3, res.Len())

	mustQuery(t, d, "INSERT INTO users (name) VALUES ('dave')", KeepCache())
	res = mustQuery(t, d, q)
	assert.True(t, res.Cached())
	assert.Equal(t, 3, res.Len(), "KeepCache leaves the stale entry in place")
}

func TestOnlySelectIsCached(t *testing.T) {
	mc, _ := querycache.NewMemoryCache(16)
	d, _ := openTestDB(t, WithCache(mc))
	seedUsers(t, d)

	mustQuery(t, d, " SELECT name FROM users")
	assert.False(t, mustQuery(t, d, " SELECT name FROM users").Cached(), "leading space is not a read statement")

	mustQuery(t, d, "select name from users")
	assert.True(t, mustQuery(t, d, "select name from users").Cached())

	mustQuery(t, d, "PRAGMA table_info(users)")
	assert.False(t, mustQuery(t, d, "PRAGMA table_info(users)").Cached())
}

func TestCacheDisabled(t *testing.T) {
	mc, _ := querycache.NewMemoryCache(16)
	d, _ := openTestDB(t, WithCache(mc), WithCacheEnabled(false))
	seedUsers(t, d)
	mustQuery(t, d, "SELECT name FROM users")
	assert.False(t, mustQuery(t, d, "SELECT name FROM users").Cached())

	d.SetCacheEnabled(true)
	mustQuery(t, d, "SELECT name FROM users")
	assert.True(t, mustQuery(t, d, "SELECT name FROM users").Cached())

	assert.False(t, mustQuery(t, d, "SELECT name FROM users", WithoutCache()).Cached())
}

type failingCache struct {
	querycache.Nop
	sets int
}

func (c *failingCache) Writable() bool { return true }
func (c *failingCache) Set(context.Context, string, *querycache.Entry) error {
	c.sets++
	return errors.New("disk full")
}

func TestCacheWriteFailureStillReturnsRows(t *testing.T) {
	fc := &failingCache{}
	var buf bytes.Buffer
	d, _ := openTestDB(t, WithCache(fc), WithLogger(zerolog.New(&buf)))
	seedUsers(t, d)

	res, err := d.Query(context.Background(), "SELECT name FROM users ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
	assert.Equal(t, 1, fc.sets)
	assert.Contains(t, buf.String(), "disk full")
}

func TestUnwritableCacheIsBypassed(t *testing.T) {
	d, _ := openTestDB(t, WithCache(querycache.Nop{}))
	seedUsers(t, d)
	before := d.QueryCount()
	mustQuery(t, d, "SELECT name FROM users")
	mustQuery(t, d, "SELECT name FROM users")
	assert.Equal(t, before+2, d.QueryCount())
	assert.Zero(t, d.Stats().CacheMisses)
}

func TestQueryLog(t *testing.T) {
	var buf bytes.Buffer
	d, _ := openTestDB(t, WithLogger(zerolog.New(&buf)), WithQueryLog(true))
	mustQuery(t, d, "CREATE TABLE t (id INTEGER)")
	mustQuery(t, d, "INSERT INTO t (id) VALUES (1)", WithoutLog())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entries []map[string]any
	for _, l := range lines {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m))
		if m["message"] == "query" {
			entries = append(entries, m)
		}
	}
	require.Len(t, entries, 1)
	assert.Equal(t, "CREATE TABLE t (id INTEGER)", entries[0]["query"])
	assert.Equal(t, "app", entries[0]["schema"])
	assert.Contains(t, entries[0], "took")

	buf.Reset()
	d.SetLogQueries(false)
	mustQuery(t, d, "SELECT 1")
	assert.NotContains(t, buf.String(), `"message":"query"`)
}

func TestStatementClassification(t *testing.T) {
	assert.True(t, IsReadStatement("SELECT 1"))
	assert.True(t, IsReadStatement("sElEcT 1"))
	assert.False(t, IsReadStatement("SELEC"))
	assert.False(t, IsReadStatement("\nSELECT 1"))
	assert.False(t, IsReadStatement("UPDATE t SET a=1"))

	assert.True(t, returnsRows("  (SELECT 1)", false))
	assert.True(t, returnsRows("SHOW TABLES", true))
	assert.True(t, returnsRows("DELETE FROM t RETURNING id", false))
	assert.False(t, returnsRows("DELETE FROM t", false))
	assert.False(t, returnsRows("INSERT INTO t (note) VALUES ('returning customer')", false))
	assert.False(t, returnsRows(`INSERT INTO t (note) VALUES ('it\'s returning')`, true))
	assert.False(t, returnsRows("INSERT INTO t (a) VALUES (1) -- returning", false))
	assert.False(t, returnsRows("CREATE TABLE returning_log (id INTEGER)", false))

	assert.False(t, multiStatement("SELECT 1"))
	assert.False(t, multiStatement("SELECT 1;"))
	assert.False(t, multiStatement("SELECT 1 ;\n  "))
	assert.False(t, multiStatement("SELECT ';' AS s"))
	assert.False(t, multiStatement("SELECT 1 /* ; */"))
	assert.False(t, multiStatement("INSERT INTO t VALUES ('a;b', 'O''Reilly;')"))
	assert.True(t, multiStatement("SELECT 1; DELETE FROM t"))
	assert.True(t, multiStatement("SELECT 1;DELETE FROM t"))
	assert.True(t, multiStatement(`SELECT 'a\'; DELETE FROM t; --'`), "quoted only under backslash escaping")

	assert.True(t, mutates("insert into t values (1)"))
	assert.True(t, mutates("DROP TABLE t"))
	assert.False(t, mutates("SELECT 1"))
}

func TestRowJSONKeepsColumnOrder(t *testing.T) {
	d, _ := openTestDB(t)
	res := mustQuery(t, d, "SELECT 'z' AS zeta, 1 AS alpha, NULL AS mid")
	row, ok := res.Next()
	require.True(t, ok)
	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"z","alpha":1,"mid":null}`, string(b))
	assert.Equal(t, map[string]any{"zeta": "z", "alpha": int64(1), "mid": nil}, row.Map())

	_, ok = res.Next()
	assert.False(t, ok)
	res.Reset()
	_, ok = res.Next()
	assert.True(t, ok)
}

func TestMultipleStatementsRejected(t *testing.T) {
	mc, err := querycache.NewMemoryCache(16)
	require.NoError(t, err)
	d, _ := openTestDB(t, WithCache(mc))
	seedUsers(t, d)
	before := d.QueryCount()

	for _, q := range []string{
		"SELECT 1; DELETE FROM users",
		"select name from users;\nDROP TABLE users",
		"UPDATE users SET name = 'x'; DELETE FROM users",
	} {
		_, err := d.Query(context.Background(), q)
		require.ErrorIs(t, err, ErrMultipleStatements, q)
		var qe *QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, q, qe.Query)
	}
	assert.Equal(t, before, d.QueryCount(), "rejected text never reaches the server")

	res := mustQuery(t, d, "SELECT name FROM users ORDER BY id", WithoutCache())
	assert.Equal(t, 2, res.Len())
	assert.Equal(t, int64(0), d.Stats().CacheMisses, "rejected before the cache lookup")

	mustQuery(t, d, "SELECT 1;")
}

func TestReadOnlyRefusesWrites(t *testing.T) {
	d, _ := openTestDB(t)
	seedUsers(t, d)

	_, err := d.Query(context.Background(), "DELETE FROM users", ReadOnly())
	var qe *QueryError
	require.ErrorAs(t, err, &qe)

	res := mustQuery(t, d, "SELECT id FROM users", ReadOnly(), WithoutCache())
	assert.Equal(t, 2, res.Len())

	mustQuery(t, d, "DELETE FROM users WHERE name = 'bob'")
	assert.Equal(t, int64(1), d.RowsAffected(), "read-only mode ends with the statement")
}

func TestReturningInsideLiteralKeepsWriteCounters(t *testing.T) {
	d, _ := openTestDB(t)
	seedUsers(t, d)
	ctx := context.Background()

	_, err := d.Perform(ctx, "users", Cols("name", "carol", "note", "returning customer"), ActionInsert, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), d.LastInsertID())
	assert.Equal(t, int64(1), d.RowsAffected())

	res := mustQuery(t, d, "INSERT INTO users (name) VALUES ('dave') RETURNING id")
	require.Equal(t, 1, res.Len())
	row, _ := res.Next()
	assert.Equal(t, "4", row.String("id"))
}

func TestBinaryColumnsRoundTripThroughCache(t *testing.T) {
	fc, err := querycache.NewFileCache(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	d, _ := openTestDB(t, WithCache(fc))
	mustQuery(t, d, "CREATE TABLE b (v BLOB, label TEXT)")
	mustQuery(t, d, "INSERT INTO b (v, label) VALUES (x'FF00FE', 'bin')")

	q := "SELECT v, label FROM b"
	first := mustQuery(t, d, q)
	count := d.QueryCount()
	second := mustQuery(t, d, q)
	require.True(t, second.Cached(), "binary rows must be readable from the cache")
	assert.Equal(t, count, d.QueryCount())

	want := []any{[]byte{0xff, 0x00, 0xfe}, "bin"}
	assert.Equal(t, want, first.Rows()[0].Values())
	assert.Equal(t, want, second.Rows()[0].Values())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "text", normalize([]byte("text"), false))
	assert.Equal(t, []byte("text"), normalize([]byte("text"), true))
	assert.Equal(t, []byte{0xff}, normalize([]byte{0xff}, false))
	assert.Equal(t, int64(42), normalize(uint64(42), false))
	assert.Equal(t, "18446744073709551615", normalize(uint64(1<<64-1), false))
	assert.Equal(t, float64(1.5), normalize(float32(1.5), false))
	assert.True(t, isBinaryType("VARBINARY"))
	assert.True(t, isBinaryType("blob"))
	assert.False(t, isBinaryType("TEXT"))
}
