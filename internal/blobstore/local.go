package blobstore

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

const metaSuffix = ".meta"

// Local keeps objects as files under a directory. The content type of each
// object lives next to it in a ".meta" file.
type Local struct {
	dir    string
	bucket string
}

func NewLocal(dir, bucket string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &Local{dir: dir, bucket: bucket}, nil
}

func (l *Local) Bucket() string {
	return l.bucket
}

func (l *Local) path(name string) string {
	return filepath.Join(l.dir, filepath.FromSlash(name))
}

func (l *Local) Open(ctx context.Context, name string) (*Object, error) {
	if err := ValidateObjectName(name); err != nil {
		return nil, err
	}
	if strings.HasSuffix(name, metaSuffix) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := l.path(name)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	contentType := DefaultContentType
	if meta, err := os.ReadFile(path + metaSuffix); err == nil {
		contentType = contentTypeOrDefault(strings.TrimSpace(string(meta)))
	}

	return &Object{ReadCloser: file, Name: name, ContentType: contentType, Size: info.Size()}, nil
}

// Put writes to a temporary file and renames it into place, so readers
// never see a partial object.
func (l *Local) Put(ctx context.Context, name, contentType string, r io.Reader) (err error) {
	if err := ValidateObjectName(name); err != nil {
		return err
	}
	if strings.HasSuffix(name, metaSuffix) {
		return fmt.Errorf("%w: %s suffix is reserved", ErrInvalidObjectName, metaSuffix)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := l.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary object: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err = os.WriteFile(path+metaSuffix, []byte(contentTypeOrDefault(contentType)), 0o644); err != nil {
		return fmt.Errorf("failed to write object metadata %s: %w", name, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to commit object %s: %w", name, err)
	}
	return nil
}

func (l *Local) Close() error {
	return nil
}
