package restapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/usaccidents/accidents-api/internal/accidents"
	"github.com/usaccidents/accidents-api/internal/app"
	"github.com/usaccidents/accidents-api/internal/appconf"
	"github.com/usaccidents/accidents-api/internal/blobstore"
	"github.com/usaccidents/accidents-api/internal/logging"
	"github.com/usaccidents/accidents-api/internal/metrics"
)

const testAPIKey = "TEST"

var samplePath = filepath.Join("..", "..", "testdata", "accidents_sample.csv")

func testConfig() appconf.Config {
	return appconf.Config{
		Env:         appconf.Test,
		ApiKeys:     []string{testAPIKey},
		RateLimit:   100,
		Workers:     2,
		Threads:     4,
		MaxPageSize: 1000,
		Bucket:      "test-bucket",
	}
}

// createTestApi creates a RestAPI backed by the sample dataset and a local
// blob store in a temporary directory.
func createTestApi(t *testing.T) *RestAPI {
	return createTestApiWithConfig(t, testConfig())
}

func createTestApiWithConfig(t *testing.T, config appconf.Config) *RestAPI {
	t.Helper()
	manager, err := accidents.InitManager(context.Background(), accidents.Config{
		DatasetPath: samplePath,
		Env:         appconf.Test,
	})
	require.NoError(t, err)
	t.Cleanup(manager.Shutdown)

	blobs, err := blobstore.NewLocal(t.TempDir(), config.Bucket)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	api := NewRestAPI(&app.Application{
		Config:  config,
		Logger:  logging.NewStructuredLogger(io.Discard, slog.LevelInfo),
		Manager: manager,
		Blobs:   blobs,
		Metrics: metrics.NewWithRegistry(registry, registry),
	})
	t.Cleanup(api.Shutdown)
	return api
}

// createTestApiWithoutDataset creates a RestAPI whose dataset failed to load.
func createTestApiWithoutDataset(t *testing.T) *RestAPI {
	t.Helper()
	manager, err := accidents.NewManager(accidents.Config{
		DatasetPath: filepath.Join(t.TempDir(), "missing.csv"),
		Env:         appconf.Test,
	})
	require.NoError(t, err)
	require.Error(t, manager.Load(context.Background()))
	t.Cleanup(manager.Shutdown)

	api := NewRestAPI(&app.Application{
		Config:  testConfig(),
		Logger:  logging.NewStructuredLogger(io.Discard, slog.LevelInfo),
		Manager: manager,
	})
	t.Cleanup(api.Shutdown)
	return api
}

// serveAndRetrieveEndpoint sets up a test server, makes a request to the
// specified endpoint, and returns the response and its body.
func serveAndRetrieveEndpoint(t *testing.T, endpoint string) (*RestAPI, *http.Response, []byte) {
	api := createTestApi(t)
	resp, body := serveApiAndRetrieveEndpoint(t, api, endpoint)
	return api, resp, body
}

func serveApiAndRetrieveEndpoint(t *testing.T, api *RestAPI, endpoint string) (*http.Response, []byte) {
	t.Helper()
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + endpoint)
	require.NoError(t, err)
	defer logging.SafeCloseWithLogging(resp.Body,
		slog.Default().With(slog.String("component", "test")),
		"http_response_body")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func decodeErrorResponse(t *testing.T, body []byte) errorResponse {
	t.Helper()
	var response errorResponse
	require.NoError(t, json.Unmarshal(body, &response), string(body))
	return response
}

// httptestServer starts api on a test server and returns its URL.
func httptestServer(t *testing.T, api *RestAPI) string {
	t.Helper()
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server.URL
}
