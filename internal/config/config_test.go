package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoadRoundtrip(t *testing.T) {
	tdir := t.TempDir()
	path := filepath.Join(tdir, "config.yaml")

	cfg := Default(tdir)
	cfg.HTTP.Listen = ":9090"
	cfg.DB.Driver = "mysql"
	cfg.DB.Host = "127.0.0.1:3306"
	cfg.DB.User = "simpl"
	cfg.DB.Password = "secret"
	cfg.Cache.Backend = "memory"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("missing file: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.HTTP.Listen != cfg.HTTP.Listen || got.DB.Host != cfg.DB.Host {
		t.Fatalf("mismatch after load")
	}
	if got.DB.Timeout != 5*time.Second || got.Session.Lifetime != 24*time.Hour {
		t.Fatalf("durations mismatch: %v %v", got.DB.Timeout, got.Session.Lifetime)
	}
	if got.Cache.Backend != "memory" || got.Cache.Redis.Prefix != "simpl" {
		t.Fatalf("cache mismatch: %+v", got.Cache)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `debug: true
db:
  driver: sqlite
  host: /data
  database: app
  timeout: 2s
cache:
  enabled: true
  backend: file
  dir: /data/cache
query_log:
  enabled: true
session:
  table: sessions
  lifetime: 30m
  gc: false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Debug || cfg.DB.Database != "app" || cfg.DB.Timeout != 2*time.Second {
		t.Fatalf("db mismatch: %+v", cfg.DB)
	}
	if !cfg.QueryLog.Enabled || cfg.Session.Table != "sessions" || cfg.Session.Lifetime != 30*time.Minute || cfg.Session.GC {
		t.Fatalf("mismatch: %+v %+v", cfg.QueryLog, cfg.Session)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default(t.TempDir())
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := *cfg
	bad.DB.Driver = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for missing driver")
	}

	bad = *cfg
	bad.Cache.Backend = "memcached"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	bad = *cfg
	bad.Cache.Dir = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for file backend without dir")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default(t.TempDir())
	t.Setenv("SIMPL_DB_DRIVER", "mysql")
	t.Setenv("SIMPL_DB_HOST", "db:3306")
	t.Setenv("SIMPL_DB_USER", "app")
	t.Setenv("SIMPL_DB_PASS", "pw")
	t.Setenv("SIMPL_DB_NAME", "appdb")
	t.Setenv("SIMPL_CACHE_DIR", "")
	before := cfg.Cache.Dir

	cfg.ApplyEnv()
	if cfg.DB.Driver != "mysql" || cfg.DB.Host != "db:3306" || cfg.DB.User != "app" || cfg.DB.Password != "pw" || cfg.DB.Database != "appdb" {
		t.Fatalf("env not applied: %+v", cfg.DB)
	}
	if cfg.Cache.Dir != before {
		t.Fatalf("empty env should keep cache dir, got %q", cfg.Cache.Dir)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.DB.Password = "secret"
	r := cfg.Redacted()
	if r.DB.Password == "secret" {
		t.Fatal("password not redacted")
	}
	if cfg.DB.Password != "secret" {
		t.Fatal("redaction must not modify the original")
	}
}

func TestRedactedHidesAdminSecrets(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.Auth.Token = "tok"
	cfg.OAuth.ClientSecret = "cs"
	cfg.OAuth.CookieSecret = "ck"
	cfg.Admins.Emails = []string{"ops@example.com"}
	r := cfg.Redacted()
	if r.Auth.Token == "tok" || r.OAuth.ClientSecret == "cs" || r.OAuth.CookieSecret == "ck" {
		t.Fatalf("secrets not redacted: %+v %+v", r.Auth, r.OAuth)
	}
	r.Admins.Emails[0] = "x"
	if cfg.Admins.Emails[0] != "ops@example.com" {
		t.Fatal("redacted copy shares slices with the original")
	}
}

func TestWithEnvLeavesReceiverUntouched(t *testing.T) {
	t.Setenv("SIMPL_DB_PASS", "from-env")
	t.Setenv("SIMPL_ADMIN_TOKEN", "env-token")
	cfg := Default(t.TempDir())
	cfg.DB.Password = "from-file"

	run := cfg.WithEnv()
	if run.DB.Password != "from-env" || run.Auth.Token != "env-token" {
		t.Fatalf("env not applied: %q %q", run.DB.Password, run.Auth.Token)
	}
	if cfg.DB.Password != "from-file" || cfg.Auth.Token != "" {
		t.Fatalf("receiver changed: %q %q", cfg.DB.Password, cfg.Auth.Token)
	}
}

func TestValidateOAuthNeedsAdmins(t *testing.T) {
	cfg := Default(t.TempDir())
	cfg.OAuth.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("oauth without admins accepted")
	}
	cfg.Admins.Emails = []string{"ops@example.com"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
