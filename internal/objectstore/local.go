package objectstore

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStore writes objects below a root directory. Objects appear
// atomically: data goes to a temporary file that is renamed into place.
type LocalStore struct {
	fs   afero.Fs
	root string
}

// NewLocalStore creates the root directory if needed. A nil fs means the OS
// filesystem.
func NewLocalStore(fs afero.Fs, root string) (*LocalStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if root == "" {
		return nil, configError("local store requires a path")
	}
	if err := fs.MkdirAll(root, PermDir); err != nil {
		return nil, storeError(fmt.Errorf("create root directory: %w", err), TypeLocal, "init", root)
	}
	return &LocalStore{fs: fs, root: root}, nil
}

func (s *LocalStore) Name() string { return TypeLocal }

func (s *LocalStore) Close() error { return nil }

// Put writes body to root/key.
func (s *LocalStore) Put(ctx context.Context, key string, body []byte, _ string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", configError("%v", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(s.root, filepath.FromSlash(key))
	dir := filepath.Dir(target)
	if err := s.fs.MkdirAll(dir, PermDir); err != nil {
		return "", storeError(err, TypeLocal, "mkdir", key)
	}

	tmp, err := afero.TempFile(s.fs, dir, tempFilePrefix+"*")
	if err != nil {
		return "", storeError(err, TypeLocal, "create", key)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = s.fs.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return "", storeError(err, TypeLocal, "write", key)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", storeError(err, TypeLocal, "sync", key)
	}
	if err := tmp.Close(); err != nil {
		return "", storeError(err, TypeLocal, "close", key)
	}
	if err := s.fs.Chmod(tmpName, PermFile); err != nil {
		return "", storeError(err, TypeLocal, "chmod", key)
	}
	if err := s.fs.Rename(tmpName, target); err != nil {
		return "", storeError(err, TypeLocal, "rename", key)
	}
	committed = true

	return "file://" + filepath.ToSlash(target), nil
}
