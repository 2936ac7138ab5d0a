package kaggle

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func testClient(baseURL string) *Client {
	client := NewClient(Credentials{Username: "alice", Key: "secret"}, nil)
	client.BaseURL = baseURL
	client.InitialBackoff = time.Millisecond
	return client
}

func TestLoadCredentials(t *testing.T) {
	t.Run("explicit file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kaggle.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"username":"alice","key":"abc"}`), 0o600))

		creds, err := LoadCredentials(path)
		require.NoError(t, err)
		assert.Equal(t, Credentials{Username: "alice", Key: "abc"}, creds)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCredentials(filepath.Join(t.TempDir(), "kaggle.json"))
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kaggle.json")
		require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

		_, err := LoadCredentials(path)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("blank key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kaggle.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"username":"alice","key":" "}`), 0o600))

		_, err := LoadCredentials(path)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("environment variables", func(t *testing.T) {
		t.Setenv("KAGGLE_USERNAME", "bob")
		t.Setenv("KAGGLE_KEY", "xyz")

		creds, err := LoadCredentials("")
		require.NoError(t, err)
		assert.Equal(t, Credentials{Username: "bob", Key: "xyz"}, creds)
	})

	t.Run("only one environment variable", func(t *testing.T) {
		t.Setenv("KAGGLE_USERNAME", "bob")
		t.Setenv("KAGGLE_KEY", "")

		_, err := LoadCredentials("")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("config dir", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("KAGGLE_USERNAME", "")
		t.Setenv("KAGGLE_KEY", "")
		t.Setenv("KAGGLE_CONFIG_DIR", dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "kaggle.json"), []byte(`{"username":"carol","key":"k"}`), 0o600))

		creds, err := LoadCredentials("")
		require.NoError(t, err)
		assert.Equal(t, "carol", creds.Username)
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv("KAGGLE_USERNAME", "")
		t.Setenv("KAGGLE_KEY", "")
		t.Setenv("KAGGLE_CONFIG_DIR", t.TempDir())

		_, err := LoadCredentials("")
		assert.ErrorIs(t, err, ErrMissingCredentials)
	})
}

func TestDownloadExtractsArchive(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		DefaultFileName: "ID,State\nA-1,OH\n",
	})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/datasets/download/sobhanmoosavi/us-accidents", r.URL.Path)
		user, key, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", key)
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	dest := t.TempDir()
	files, err := testClient(server.URL).Download(context.Background(), DefaultDataset, dest)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(dest, DefaultFileName), files[0])

	body, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Equal(t, "ID,State\nA-1,OH\n", string(body))

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary archive should be removed")
}

func TestDownloadUnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Download(context.Background(), DefaultDataset, t.TempDir())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloadNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Download(context.Background(), "someone/nothing", t.TempDir())
	assert.ErrorIs(t, err, ErrDatasetNotFound)
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	archive := zipArchive(t, map[string]string{"data.csv": "a\n1\n"})
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(archive)
	}))
	defer server.Close()

	files, err := testClient(server.URL).Download(context.Background(), DefaultDataset, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadGivesUpAfterThreeAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Download(context.Background(), DefaultDataset, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDownloadRejectsBadDatasetName(t *testing.T) {
	for _, name := range []string{"", "noslash", "/name", "owner/", "a/b/c"} {
		_, err := testClient("http://127.0.0.1:1").Download(context.Background(), name, t.TempDir())
		assert.Error(t, err, name)
	}
}

func TestUnzipRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(archivePath, zipArchive(t, map[string]string{"../evil.txt": "x"}), 0o600))

	dest := filepath.Join(dir, "out")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	_, err := unzip(archivePath, dest)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "evil.txt"))
}

func TestUnzipNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "nested.zip")
	require.NoError(t, os.WriteFile(archivePath, zipArchive(t, map[string]string{"a/b/c.csv": "x"}), 0o600))

	files, err := unzip(archivePath, filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.FileExists(t, filepath.Join(dir, "out", "a", "b", "c.csv"))
}
