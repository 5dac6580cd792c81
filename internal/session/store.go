// Package session persists opaque session blobs in a database table through
// the db wrapper.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"gitea.knapp/jacoknapp/simpl/internal/db"
)

type Options struct {
	Table    string
	Lifetime time.Duration
	GC       bool
}

type Store struct {
	db       *db.DB
	table    string
	lifetime time.Duration
	gc       bool
	now      func() time.Time
}

func New(database *db.DB, opts Options) *Store {
	if opts.Table == "" {
		opts.Table = "session"
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = 24 * time.Hour
	}
	return &Store{db: database, table: opts.Table, lifetime: opts.Lifetime, gc: opts.GC, now: time.Now}
}

// NewID returns a fresh, sortable session id.
func NewID() string { return ulid.Make().String() }

func (s *Store) Lifetime() time.Duration { return s.lifetime }

func (s *Store) Migrate(ctx context.Context) error {
	q := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"ses_id VARCHAR(64) NOT NULL PRIMARY KEY, "+
		"ses_start BIGINT NOT NULL, "+
		"last_access BIGINT NOT NULL, "+
		"ses_value TEXT)", s.table)
	_, err := s.db.Query(ctx, q, db.WithoutCache(), db.KeepCache())
	return err
}

func (s *Store) where(ctx context.Context, id string) (string, error) {
	p, err := s.db.Prepare(ctx, id)
	if err != nil {
		return "", err
	}
	return "`ses_id` = '" + p + "'", nil
}

// Read returns the stored blob, or nil when the session does not exist.
func (s *Store) Read(ctx context.Context, id string) ([]byte, error) {
	w, err := s.where(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.db.Query(ctx, fmt.Sprintf("SELECT ses_value, ses_start FROM `%s` WHERE %s", s.table, w), db.WithoutCache())
	if err != nil {
		return nil, err
	}
	row, ok := res.Next()
	if !ok {
		return nil, nil
	}
	return []byte(row.String("ses_value")), nil
}

// Write inserts or replaces the blob for id and refreshes last_access.
func (s *Store) Write(ctx context.Context, id string, data []byte) error {
	w, err := s.where(ctx, id)
	if err != nil {
		return err
	}
	res, err := s.db.Query(ctx, fmt.Sprintf("SELECT ses_id FROM `%s` WHERE %s", s.table, w), db.WithoutCache())
	if err != nil {
		return err
	}
	now := s.now().Unix()
	if res.Len() == 0 {
		_, err = s.db.Perform(ctx, s.table, db.Cols(
			"ses_id", id,
			"ses_start", now,
			"last_access", now,
			"ses_value", string(data),
		), db.ActionInsert, "", db.KeepCache())
		return err
	}
	_, err = s.db.Perform(ctx, s.table, db.Cols(
		"last_access", now,
		"ses_value", string(data),
	), db.ActionUpdate, w, db.KeepCache())
	return err
}

func (s *Store) Destroy(ctx context.Context, id string) error {
	w, err := s.where(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.db.Query(ctx, fmt.Sprintf("DELETE FROM `%s` WHERE %s", s.table, w), db.WithoutCache(), db.KeepCache())
	return err
}

// GC removes sessions idle for longer than maxAge (the store lifetime when
// maxAge is zero). It does nothing when collection is disabled.
func (s *Store) GC(ctx context.Context, maxAge time.Duration) (int64, error) {
	if !s.gc {
		return 0, nil
	}
	if maxAge <= 0 {
		maxAge = s.lifetime
	}
	cutoff := s.now().Add(-maxAge).Unix()
	res, err := s.db.Query(ctx, fmt.Sprintf("DELETE FROM `%s` WHERE `last_access` < %d", s.table, cutoff), db.WithoutCache(), db.KeepCache())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
