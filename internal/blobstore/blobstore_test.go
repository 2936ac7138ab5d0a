package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateObjectName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "report.csv", true},
		{"nested", "uploads/2023/report.csv", true},
		{"dots inside a name", "a..b.csv", true},
		{"empty", "", false},
		{"absolute", "/etc/passwd", false},
		{"parent segment", "../secret", false},
		{"nested parent segment", "uploads/../../secret", false},
		{"nul byte", "bad\x00name", false},
		{"too long", strings.Repeat("a", 1025), false},
		{"exactly max", strings.Repeat("a", 1024), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateObjectName(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidObjectName)
			}
		})
	}
}

func newLocal(t *testing.T) *Local {
	t.Helper()
	store, err := NewLocal(filepath.Join(t.TempDir(), "blobs"), "test-bucket")
	require.NoError(t, err)
	return store
}

func TestLocalPutAndOpen(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "uploads/hello.txt", "text/plain", strings.NewReader("hello world")))

	obj, err := store.Open(ctx, "uploads/hello.txt")
	require.NoError(t, err)
	defer func() { _ = obj.Close() }()

	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, "text/plain", obj.ContentType)
	assert.Equal(t, int64(11), obj.Size)
	assert.Equal(t, "uploads/hello.txt", obj.Name)
	assert.Equal(t, "test-bucket", store.Bucket())
}

func TestLocalDefaultContentType(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "blob.bin", "", strings.NewReader("\x00\x01")))

	obj, err := store.Open(ctx, "blob.bin")
	require.NoError(t, err)
	defer func() { _ = obj.Close() }()
	assert.Equal(t, DefaultContentType, obj.ContentType)
}

func TestLocalOverwrite(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "data.csv", "text/csv", strings.NewReader("first")))
	require.NoError(t, store.Put(ctx, "data.csv", "text/csv", strings.NewReader("second")))

	obj, err := store.Open(ctx, "data.csv")
	require.NoError(t, err)
	defer func() { _ = obj.Close() }()
	body, _ := io.ReadAll(obj)
	assert.Equal(t, "second", string(body))
}

func TestLocalOpenMissing(t *testing.T) {
	store := newLocal(t)

	_, err := store.Open(context.Background(), "nope.csv")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalOpenDirectoryIsNotFound(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "dir/file.txt", "text/plain", strings.NewReader("x")))

	_, err := store.Open(ctx, "dir")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalHidesMetadataFiles(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "file.txt", "text/plain", strings.NewReader("x")))

	_, err := store.Open(ctx, "file.txt.meta")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Put(ctx, "sneaky.meta", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidObjectName)
}

func TestLocalRejectsEscapingNames(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	err := store.Put(ctx, "../outside.txt", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidObjectName)

	_, err = store.Open(ctx, "../outside.txt")
	assert.ErrorIs(t, err, ErrInvalidObjectName)
}

func TestLocalPutLeavesNoTempFilesOnFailure(t *testing.T) {
	store := newLocal(t)

	err := store.Put(context.Background(), "broken.txt", "text/plain", failingReader{})
	require.Error(t, err)

	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalRespectsCancelledContext(t *testing.T) {
	store := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Put(ctx, "file.txt", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGCSRequiresBucket(t *testing.T) {
	_, err := NewGCS(context.Background(), "", "")
	assert.Error(t, err)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, io.ErrUnexpectedEOF
}
