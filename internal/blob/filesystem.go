package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FilesystemStore implements Store on a local directory.
// Conditional puts are serialized within the process.
type FilesystemStore struct {
	dir string
	mu  sync.Mutex
}

// NewFilesystemStore creates the directory if it does not exist.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FilesystemStore{dir: dir}, nil
}

func (f *FilesystemStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(f.dir, clean), nil
}

func (f *FilesystemStore) Get(ctx context.Context, key string) (*Object, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Object{Data: data, ETag: contentTag(data)}, nil
}

func (f *FilesystemStore) Put(ctx context.Context, key string, data []byte, opts PutOptions) (string, error) {
	path, err := f.path(key)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if opts.IfMatch != "" || opts.IfNoneMatch {
		current, err := os.ReadFile(path)
		exists := err == nil
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}
		if err := checkPrecondition(contentTag(current), exists, opts); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	// Write atomically
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}
	return contentTag(data), nil
}
