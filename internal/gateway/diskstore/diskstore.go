// Package diskstore stores uploaded objects in a local directory. It backs
// evidence uploads when no remote bucket is configured or the remote upload fails.
package diskstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"devplan/internal/gateway"
)

// Store writes objects below Dir and exposes them under URLPrefix.
type Store struct {
	dir       string
	urlPrefix string
}

var _ gateway.ObjectStorage = (*Store)(nil)

// New creates a store rooted at dir. urlPrefix defaults to "/uploads".
func New(dir, urlPrefix string) *Store {
	if urlPrefix == "" {
		urlPrefix = "/uploads"
	}
	return &Store{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

// Upload writes data to dir/path.
func (s *Store) Upload(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", &gateway.StoreError{Op: "upload", Table: s.dir, Err: fmt.Errorf("create dir: %w", err)}
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", &gateway.StoreError{Op: "upload", Table: s.dir, Err: fmt.Errorf("write file: %w", err)}
	}
	return s.PublicURL(p), nil
}

// Remove deletes dir/path; a missing file is not an error.
func (s *Store) Remove(ctx context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &gateway.StoreError{Op: "remove", Table: s.dir, Err: err}
	}
	return nil
}

// PublicURL returns the URL the object is exposed under.
func (s *Store) PublicURL(p string) string {
	return s.urlPrefix + "/" + strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Ping makes sure the directory exists and is writable.
func (s *Store) Ping(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &gateway.StoreError{Op: "ping", Table: s.dir, Err: err}
	}
	f, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return &gateway.StoreError{Op: "ping", Table: s.dir, Err: err}
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// resolve maps an object path into the root directory, rejecting escapes.
func (s *Store) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", &gateway.StoreError{Op: "resolve", Table: s.dir, Err: fmt.Errorf("empty object path")}
	}
	return filepath.Join(s.dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
