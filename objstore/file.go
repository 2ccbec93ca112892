package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileClient stores objects on the local filesystem.
// Objects live at {root}/{bucket}/{key}, with key segments mapped to directories.
type FileClient struct {
	root string
}

// NewFileClient creates a FileClient rooted at the given directory.
// The directory is created if it does not exist.
func NewFileClient(root string) (*FileClient, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create root directory: %w", err)
	}
	return &FileClient{root: abs}, nil
}

// Root returns the absolute root path.
func (c *FileClient) Root() string { return c.root }

// Bucket returns a handle to the directory backing the named bucket.
func (c *FileClient) Bucket(name string, _ BucketOptions) Bucket {
	return &fileBucket{name: name, dir: filepath.Join(c.root, filepath.Clean(name))}
}

// Close is a no-op.
func (c *FileClient) Close() error { return nil }

type fileBucket struct {
	name string
	dir  string
}

// resolve converts an object key to a path, ensuring the result stays within
// the bucket directory.
func (b *fileBucket) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	abs := filepath.Join(b.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(abs, b.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes bucket %q", key, b.name)
	}
	return abs, nil
}

func (b *fileBucket) Exists(_ context.Context, key string) (bool, error) {
	path, err := b.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat object %q: %w", key, err)
	}
	return !info.IsDir(), nil
}

func (b *fileBucket) NewReader(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := b.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(b.name, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %q: %w", key, err)
	}
	return f, nil
}

// Upload writes into a temporary file next to the target and renames it into
// place, so readers never observe a partially written object.
func (b *fileBucket) Upload(ctx context.Context, key string, r io.Reader, _ ObjectAttrs) error {
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("write object %q: %w", key, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("commit object %q: %w", key, err)
	}
	committed = true
	return nil
}

func (b *fileBucket) Delete(_ context.Context, key string) error {
	path, err := b.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(b.name, key)
		}
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}
