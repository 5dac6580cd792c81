package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"gitea.knapp/jacoknapp/simpl/internal/util"
)

type Config struct {
	Debug bool `yaml:"debug"`
	Log   struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	HTTP struct {
		Listen string `yaml:"listen"`
	} `yaml:"http"`
	DB struct {
		Driver   string        `yaml:"driver"`
		Host     string        `yaml:"host"`
		User     string        `yaml:"user"`
		Password string        `yaml:"password"`
		Database string        `yaml:"database"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"db"`
	Cache    Cache `yaml:"cache"`
	QueryLog struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"query_log"`
	Session struct {
		Table    string        `yaml:"table"`
		Lifetime time.Duration `yaml:"lifetime"`
		GC       bool          `yaml:"gc"`
	} `yaml:"session"`

	// Auth.Token is the bearer token for the admin API.
	Auth struct {
		Token string `yaml:"token"`
	} `yaml:"auth"`

	Admins struct {
		Emails []string `yaml:"emails"`
	} `yaml:"admins"`

	OAuth struct {
		Enabled      bool     `yaml:"enabled"`
		Issuer       string   `yaml:"issuer"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		RedirectURL  string   `yaml:"redirect_url"`
		Scopes       []string `yaml:"scopes"`
		CookieName   string   `yaml:"cookie_name"`
		CookieSecure bool     `yaml:"cookie_secure"`
		CookieSecret string   `yaml:"cookie_secret"`
	} `yaml:"oauth"`
}

// Cache selects the query result cache backend.
type Cache struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"` // file, memory, sqlite, redis, none
	Dir     string `yaml:"dir"`
	Size    int    `yaml:"size"`
	Path    string `yaml:"path"`
	Redis   struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

var backends = map[string]bool{"file": true, "memory": true, "sqlite": true, "redis": true, "none": true}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Default returns a config that keeps every piece of state under dataDir.
func Default(dataDir string) *Config {
	c := &Config{}
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.HTTP.Listen = ":8080"

	c.DB.Driver = "sqlite"
	c.DB.Host = dataDir
	c.DB.Database = "simpl"
	c.DB.Timeout = 5 * time.Second

	c.Cache.Enabled = true
	c.Cache.Backend = "file"
	c.Cache.Dir = filepath.Join(dataDir, "cache")
	c.Cache.Size = 1024
	c.Cache.Path = filepath.Join(dataDir, "cache.db")
	c.Cache.Redis.Addr = "127.0.0.1:6379"
	c.Cache.Redis.Prefix = "simpl"

	c.QueryLog.Enabled = false

	c.Session.Table = "session"
	c.Session.Lifetime = 24 * time.Hour
	c.Session.GC = true
	return c
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Admins.Emails = slices.Clone(c.Admins.Emails)
	cp.OAuth.Scopes = slices.Clone(c.OAuth.Scopes)
	return &cp
}

// WithEnv returns a copy with ApplyEnv applied. The receiver, which is what
// gets saved, never holds values that came from the environment.
func (c *Config) WithEnv() *Config {
	cp := c.Clone()
	cp.ApplyEnv()
	return cp
}

// ApplyEnv overrides connection, cache and admin settings from SIMPL_*
// variables.
func (c *Config) ApplyEnv() {
	c.DB.Driver = util.FirstNonEmpty(os.Getenv("SIMPL_DB_DRIVER"), c.DB.Driver)
	c.DB.Host = util.FirstNonEmpty(os.Getenv("SIMPL_DB_HOST"), c.DB.Host)
	c.DB.User = util.FirstNonEmpty(os.Getenv("SIMPL_DB_USER"), c.DB.User)
	c.DB.Password = util.FirstNonEmpty(os.Getenv("SIMPL_DB_PASS"), c.DB.Password)
	c.DB.Database = util.FirstNonEmpty(os.Getenv("SIMPL_DB_NAME"), c.DB.Database)
	c.Cache.Dir = util.FirstNonEmpty(os.Getenv("SIMPL_CACHE_DIR"), c.Cache.Dir)
	c.Auth.Token = util.FirstNonEmpty(os.Getenv("SIMPL_ADMIN_TOKEN"), c.Auth.Token)
	c.OAuth.ClientSecret = util.FirstNonEmpty(os.Getenv("SIMPL_OAUTH_CLIENT_SECRET"), c.OAuth.ClientSecret)
}

func (c *Config) Validate() error {
	if c.DB.Driver == "" {
		return fmt.Errorf("config: db.driver is required")
	}
	if c.Cache.Backend != "" && !backends[c.Cache.Backend] {
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "file" && c.Cache.Dir == "" {
		return fmt.Errorf("config: cache.dir is required for the file backend")
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("config: cache.size must not be negative")
	}
	if c.OAuth.Enabled && len(c.Admins.Emails) == 0 {
		return fmt.Errorf("config: admins.emails is required when oauth is enabled")
	}
	return nil
}

// Redacted returns a copy safe to show to operators.
func (c *Config) Redacted() *Config {
	cp := c.Clone()
	for _, p := range []*string{&cp.DB.Password, &cp.Cache.Redis.Password, &cp.Auth.Token, &cp.OAuth.ClientSecret, &cp.OAuth.CookieSecret} {
		if *p != "" {
			*p = "********"
		}
	}
	return cp
}
