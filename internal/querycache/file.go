package querycache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gitea.knapp/jacoknapp/simpl/internal/file"
)

// FileCache keeps one file per entry at <dir>/query_<key>.cache. Writes go
// through a temp file and rename, so a reader sees either the old or the new
// entry. There is no cross-process locking: the last writer wins.
type FileCache struct {
	dir string
}

func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("querycache: file backend needs a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("querycache: create dir: %w", err)
	}
	return &FileCache{dir: dir}, nil
}

func (c *FileCache) Dir() string { return c.dir }

func (c *FileCache) entry(key string) *file.File {
	return file.New("query_"+key+".cache", c.dir)
}

func (c *FileCache) Writable() bool { return dirWritable(c.dir) }

func (c *FileCache) Get(_ context.Context, key string) (*Entry, bool, error) {
	b, err := c.entry(key).Contents()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	e, err := Unmarshal(b)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (c *FileCache) Set(_ context.Context, key string, e *Entry) error {
	b, err := Marshal(e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.dir, ".query_*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	f := file.New(filepath.Base(tmp.Name()), c.dir)
	if err := f.Rename(c.entry(key).Name); err != nil {
		_ = f.Delete()
		return err
	}
	return nil
}

func (c *FileCache) entries() ([]string, error) {
	return filepath.Glob(filepath.Join(c.dir, "query_*.cache"))
}

func (c *FileCache) Clear(context.Context) error {
	files, err := c.entries()
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range files {
		if err := file.New(filepath.Base(p), c.dir).Delete(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *FileCache) Stats(context.Context) (Stats, error) {
	files, err := c.entries()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Backend: "file"}
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			continue
		}
		st.Entries++
		st.Bytes += fi.Size()
	}
	return st, nil
}

func (c *FileCache) Close() error { return nil }
