package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetenvReturnsDefaultWhenUnset(t *testing.T) {
	t.Setenv("__SIMPL_TEST_ENV__", "")
	if got := getenv("__SIMPL_TEST_ENV__", "fallback"); got != "fallback" {
		t.Fatalf("want fallback got %q", got)
	}
}

func TestGetenvReturnsValueWhenSet(t *testing.T) {
	t.Setenv("__SIMPL_TEST_ENV__", "value")
	if got := getenv("__SIMPL_TEST_ENV__", "fallback"); got != "value" {
		t.Fatalf("want value got %q", got)
	}
}

func run(t *testing.T, cfgPath string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestQueryCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "simpl.yaml")
	run(t, cfgPath, "query", "CREATE TABLE pets (id INTEGER PRIMARY KEY, name TEXT)")
	out := run(t, cfgPath, "query", "INSERT INTO pets (name) VALUES ('rex'), ('tom')")
	if !strings.Contains(out, "2 row(s) affected") {
		t.Fatalf("insert output: %q", out)
	}

	out = run(t, cfgPath, "query", "SELECT id, name FROM pets ORDER BY id")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "id") || !strings.Contains(lines[2], "tom") {
		t.Fatalf("table output: %q", out)
	}

	out = run(t, cfgPath, "--json", "query", "SELECT id, name FROM pets ORDER BY id")
	var res struct {
		Rows   []map[string]any `json:"rows"`
		Cached bool             `json:"cached"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !res.Cached || len(res.Rows) != 2 || res.Rows[0]["name"] != "rex" {
		t.Fatalf("json output: %+v", res)
	}

	out = run(t, cfgPath, "--json", "query", "--no-cache", "SELECT id, name FROM pets ORDER BY id")
	res.Cached = true
	_ = json.Unmarshal([]byte(out), &res)
	if res.Cached {
		t.Fatal("--no-cache served from cache")
	}
}

func TestQueryCommandError(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "simpl.yaml")
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "query", "SELECT * FROM missing"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected query error")
	}
}

func TestQueryCommandFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "simpl.yaml")
	run(t, cfgPath, "query", "CREATE TABLE pets (id INTEGER PRIMARY KEY, name TEXT)")
	run(t, cfgPath, "query", "INSERT INTO pets (name) VALUES ('rex')")

	sqlPath := filepath.Join(dir, "pets.sql")
	if err := os.WriteFile(sqlPath, []byte("SELECT name FROM pets;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := run(t, cfgPath, "query", "--file", sqlPath)
	if !strings.Contains(out, "rex") {
		t.Fatalf("file output: %q", out)
	}

	for _, args := range [][]string{
		{"query"},
		{"query", "--file", filepath.Join(dir, "missing.sql")},
		{"query", "--file", sqlPath, "SELECT 1"},
		{"query", "--read-only", "DELETE FROM pets"},
	} {
		cmd := rootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		if err := cmd.Execute(); err == nil {
			t.Fatalf("%v: expected error", args)
		}
	}
	out = run(t, cfgPath, "query", "--no-cache", "SELECT count(*) AS n FROM pets")
	if !strings.Contains(out, "1") {
		t.Fatalf("read-only run wrote: %q", out)
	}
}

func TestCacheCommands(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "simpl.yaml")
	run(t, cfgPath, "query", "SELECT 1")

	out := run(t, cfgPath, "cache", "stats")
	if !strings.Contains(out, "backend:  file") || !strings.Contains(out, "entries:  1") {
		t.Fatalf("stats output: %q", out)
	}

	out = run(t, cfgPath, "cache", "clear")
	if !strings.Contains(out, "cache cleared") {
		t.Fatalf("clear output: %q", out)
	}
	out = run(t, cfgPath, "--json", "cache", "stats")
	var st struct {
		Entries int `json:"entries"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil || st.Entries != 0 {
		t.Fatalf("stats after clear: %q %v", out, err)
	}
}

func TestSessionGCCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "simpl.yaml")
	out := run(t, cfgPath, "session", "gc", "--max-age", "1h")
	if !strings.Contains(out, "removed 0 session(s)") {
		t.Fatalf("gc output: %q", out)
	}
}
