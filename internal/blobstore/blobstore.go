// Package blobstore stores uploaded files in an object store bucket.
package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
)

const (
	DefaultContentType = "application/octet-stream"
	maxObjectNameBytes = 1024
)

var (
	ErrNotFound          = errors.New("object not found")
	ErrInvalidObjectName = errors.New("invalid object name")
)

// Object is an open object. Callers must close it.
type Object struct {
	io.ReadCloser
	Name        string
	ContentType string
	Size        int64
}

// Store is a bucket of named objects.
type Store interface {
	Open(ctx context.Context, name string) (*Object, error)
	Put(ctx context.Context, name, contentType string, r io.Reader) error
	Bucket() string
	Close() error
}

// ValidateObjectName rejects names that are empty, too long, absolute, or
// that try to climb out of the bucket.
func ValidateObjectName(name string) error {
	switch {
	case name == "":
		return errors.Join(ErrInvalidObjectName, errors.New("name is empty"))
	case len(name) > maxObjectNameBytes:
		return errors.Join(ErrInvalidObjectName, errors.New("name is longer than 1024 bytes"))
	case strings.HasPrefix(name, "/"):
		return errors.Join(ErrInvalidObjectName, errors.New("name must not start with /"))
	case strings.ContainsRune(name, 0):
		return errors.Join(ErrInvalidObjectName, errors.New("name contains a NUL byte"))
	}

	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return errors.Join(ErrInvalidObjectName, errors.New("name contains a .. segment"))
		}
	}
	return nil
}

func contentTypeOrDefault(contentType string) string {
	if contentType == "" {
		return DefaultContentType
	}
	return contentType
}
