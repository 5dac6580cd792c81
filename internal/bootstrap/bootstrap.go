package bootstrap

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"gitea.knapp/jacoknapp/simpl/internal/config"
	"gitea.knapp/jacoknapp/simpl/internal/db"
	"gitea.knapp/jacoknapp/simpl/internal/logging"
	"gitea.knapp/jacoknapp/simpl/internal/querycache"
	"gitea.knapp/jacoknapp/simpl/internal/session"
	"gitea.knapp/jacoknapp/simpl/internal/settings"
)

// Runtime is everything a command needs, built from one config file.
// Config is the running config with environment overrides applied;
// Settings holds the file's own values.
type Runtime struct {
	Config   *config.Config
	Settings *settings.Store
	DB       *db.DB
	Cache    querycache.Cache
	Sessions *session.Store
	Log      zerolog.Logger
}

// EnsureFirstRun writes a default config next to cfgPath when none exists,
// then loads it and wires the database wrapper. Nothing is dialed yet.
func EnsureFirstRun(ctx context.Context, cfgPath string, logOut io.Writer) (*Runtime, error) {
	dataDir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		c := config.Default(dataDir)
		tokenBytes := make([]byte, 24)
		if _, err := rand.Read(tokenBytes); err != nil {
			return nil, fmt.Errorf("generate admin token: %w", err)
		}
		c.Auth.Token = fmt.Sprintf("%x", tokenBytes)
		if err := config.Save(cfgPath, c); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return Build(ctx, cfgPath, cfg, logOut)
}

// Build wires a runtime from a config as loaded from cfgPath. Environment
// overrides apply to the running copy only.
func Build(_ context.Context, cfgPath string, fileCfg *config.Config, logOut io.Writer) (*Runtime, error) {
	cfg := fileCfg.WithEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	log := logging.New(cfg, logOut)

	cache, err := querycache.New(cfg.Cache)
	if err != nil {
		return nil, err
	}

	database := db.Open(db.ConnectionConfig{
		Driver:   cfg.DB.Driver,
		Host:     cfg.DB.Host,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
	},
		db.WithCache(cache),
		db.WithCacheEnabled(cfg.Cache.Enabled),
		db.WithQueryLog(cfg.QueryLog.Enabled),
		db.WithTimeout(cfg.DB.Timeout),
		db.WithLogger(log.With().Str("component", "db").Logger()),
	)

	sessions := session.New(database, session.Options{
		Table:    cfg.Session.Table,
		Lifetime: cfg.Session.Lifetime,
		GC:       cfg.Session.GC,
	})

	log.Debug().Str("driver", cfg.DB.Driver).Str("cache", cfg.Cache.Backend).Msg("runtime ready")
	return &Runtime{
		Config:   cfg,
		Settings: settings.New(cfgPath, fileCfg),
		DB:       database,
		Cache:    cache,
		Sessions: sessions,
		Log:      log,
	}, nil
}

// Migrate creates the session table. It is the first statement that
// connects.
func (r *Runtime) Migrate(ctx context.Context) error {
	return r.Sessions.Migrate(ctx)
}

func (r *Runtime) Close() error {
	return errors.Join(r.DB.Close(), r.Cache.Close())
}
