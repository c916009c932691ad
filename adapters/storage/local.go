// Package storage provides StorageBackend implementations.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/pixelserve/pixelserve/errors"
)

// Local stores buffers on the local filesystem, one file per key.  Keys may
// contain slashes; intermediate directories are created on demand.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local backend rooted at dir, creating it if absent.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

func (l *Local) absPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", apperrors.Newf(apperrors.KindInvalidParameter, "local.key",
			"key %q escapes storage root", key)
	}
	return filepath.Join(l.rootDir, clean), nil
}

func (l *Local) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "local.put", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Transient("local.put", err)
	}

	// Write-then-rename so a crashed write never leaves a readable partial
	// file behind.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return apperrors.Transient("local.put", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return apperrors.Transient("local.put", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return apperrors.Transient("local.put", err)
	}
	if err := os.Chmod(tmp.Name(), l.permissions); err != nil {
		os.Remove(tmp.Name())
		return apperrors.Transient("local.put", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return apperrors.Transient("local.put", err)
	}
	return nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "local.get", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, apperrors.New(apperrors.KindNotFound, "local.get", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, apperrors.Transient("local.get", err)
	}
	return data, nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.KindStorage, "local.exists", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		return false, nil
	}
	if statErr != nil {
		return false, apperrors.Transient("local.exists", statErr)
	}
	return true, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "local.delete", err)
	}
	path, err := l.absPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return apperrors.Transient("local.delete", err)
	}
	return nil
}
