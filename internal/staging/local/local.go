// Package local stages files in a directory on local disk.
package local

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/vbonduro/proplist/internal/staging"
)

const tempPattern = ".incoming-*"

type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Save writes r under a fresh key. The file only becomes visible under its key
// once fully written.
func (s *LocalStore) Save(ctx context.Context, prefix, mimeType string, r io.Reader) (string, error) {
	key := prefix + "-" + uuid.NewString() + extFor(mimeType)

	tmp, err := os.CreateTemp(s.dir, tempPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpName := tmp.Name()
	discard := func() {
		if rerr := os.Remove(tmpName); rerr != nil && !os.IsNotExist(rerr) {
			slog.Error("failed to remove partial staging file", "path", tmpName, "error", rerr)
		}
	}

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		discard()
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		discard()
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, key)); err != nil {
		discard()
		return "", fmt.Errorf("failed to commit staging file: %w", err)
	}
	return key, nil
}

// Open returns the staged bytes and their detected MIME type.
func (s *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", staging.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to open staging file: %w", err)
	}

	mt, err := mimetype.DetectReader(f)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = f.Close()
		return nil, "", fmt.Errorf("failed to inspect staging file: %w", err)
	}
	return f, mt.String(), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return staging.ErrNotFound
		}
		return fmt.Errorf("failed to delete staging file: %w", err)
	}
	return nil
}

// Sweep deletes staged files last modified before now minus maxAge and
// returns how many were removed. Leftovers appear when the process exits in
// the middle of a publish.
func (s *LocalStore) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read staging directory: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			slog.Warn("failed to sweep staging file", "name", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// path maps key to a file directly inside the staging directory.
func (s *LocalStore) path(key string) (string, error) {
	if key == "" || !filepath.IsLocal(key) || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid staging key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

func extFor(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	if mt := mimetype.Lookup(strings.TrimSpace(base)); mt != nil && mt.Extension() != "" {
		return mt.Extension()
	}
	return ".bin"
}
