package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalFiles serves files below a root directory. Handles are
// slash-separated paths relative to the root.
type LocalFiles struct {
	root string
}

// NewLocalFiles creates a LocalFiles rooted at dir.
func NewLocalFiles(dir string) *LocalFiles {
	return &LocalFiles{root: dir}
}

func (l *LocalFiles) resolve(fileHandle string) (string, error) {
	rel := filepath.FromSlash(fileHandle)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, fileHandle)
	}
	return filepath.Join(l.root, rel), nil
}

// Stat describes the file at fileHandle.
func (l *LocalFiles) Stat(ctx context.Context, fileHandle string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	p, err := l.resolve(fileHandle)
	if err != nil {
		return Handle{}, err
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Handle{}, fmt.Errorf("%w: %q", ErrNotFound, fileHandle)
	}
	if err != nil {
		return Handle{}, fmt.Errorf("stat %q: %w", fileHandle, err)
	}
	if info.IsDir() {
		return Handle{}, fmt.Errorf("%w: %q is a directory", ErrInvalidHandle, fileHandle)
	}

	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(fileHandle)))
	return Handle{
		Name:         info.Name(),
		Size:         info.Size(),
		Type:         contentType(info.Name()),
		LastModified: info.ModTime(),
		FileHandle:   fileHandle,
		DirHandle:    dir,
	}, nil
}

// Open opens the file at fileHandle for reading.
func (l *LocalFiles) Open(ctx context.Context, fileHandle string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.resolve(fileHandle)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, fileHandle)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", fileHandle, err)
	}
	return f, nil
}
