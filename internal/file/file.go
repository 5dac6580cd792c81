// Package file wraps a single named file inside a directory.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// File is a file name relative to Dir. Name never contains a separator
// once FormatName has been applied.
type File struct {
	Name string
	Dir  string
}

func New(name, dir string) *File { return &File{Name: name, Dir: dir} }

func (f *File) Path() string { return filepath.Join(f.Dir, f.Name) }

func (f *File) Exists() bool {
	fi, err := os.Stat(f.Path())
	return err == nil && fi.Mode().IsRegular()
}

func (f *File) Contents() ([]byte, error) { return os.ReadFile(f.Path()) }

// Rename moves the file to newName in the same directory and updates Name.
func (f *File) Rename(newName string) error {
	if newName == "" || newName != filepath.Base(newName) {
		return fmt.Errorf("file: invalid name %q", newName)
	}
	if err := os.Rename(f.Path(), filepath.Join(f.Dir, newName)); err != nil {
		return err
	}
	f.Name = newName
	return nil
}

// Delete removes the file. A file that is already gone is not an error.
func (f *File) Delete() error {
	if err := os.Remove(f.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// FormatName replaces Name with its safe form.
func (f *File) FormatName() { f.Name = FormatName(f.Name) }

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FormatName maps s onto [A-Za-z0-9._-]: every run of other characters
// becomes one underscore and leading dots or dashes are dropped. An empty
// result is "file".
func FormatName(s string) string {
	s = unsafeRun.ReplaceAllString(s, "_")
	s = strings.TrimLeft(s, ".-")
	if s == "" {
		return "file"
	}
	return s
}
