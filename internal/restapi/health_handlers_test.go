package restapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usaccidents/accidents-api/internal/appconf"
)

func TestHealthzHandler(t *testing.T) {
	_, resp, body := serveAndRetrieveEndpoint(t, "/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestHealthzNeedsNoAPIKeyOrDataset(t *testing.T) {
	api := createTestApiWithoutDataset(t)
	resp, _ := serveApiAndRetrieveEndpoint(t, api, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyzWithDataset(t *testing.T) {
	_, resp, body := serveAndRetrieveEndpoint(t, "/readyz")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ready readiness
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, 12, ready.Rows)
	assert.Equal(t, samplePath, ready.Source)
	assert.False(t, ready.LastUpdated.IsZero())
	assert.Empty(t, ready.Error)
}

func TestReadyzWithoutDataset(t *testing.T) {
	api := createTestApiWithoutDataset(t)
	resp, body := serveApiAndRetrieveEndpoint(t, api, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var ready readiness
	require.NoError(t, json.Unmarshal(body, &ready))
	assert.Equal(t, "unavailable", ready.Status)
	assert.Contains(t, ready.Error, "missing.csv")
	assert.Zero(t, ready.Rows)
}

func TestReadyzWithoutManager(t *testing.T) {
	api := createTestApi(t)
	api.Manager = nil

	resp, _ := serveApiAndRetrieveEndpoint(t, api, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDebugPageOutsideProduction(t *testing.T) {
	api := createTestApi(t)

	resp, body := serveApiAndRetrieveEndpoint(t, api, "/debug/?key=TEST&dataType=summary")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.NotEmpty(t, body)

	resp, _ = serveApiAndRetrieveEndpoint(t, api, "/debug/?key=WRONG")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDebugPageDisabledInProduction(t *testing.T) {
	config := testConfig()
	config.Env = appconf.Production
	api := createTestApiWithConfig(t, config)

	resp, _ := serveApiAndRetrieveEndpoint(t, api, "/debug/?key=TEST")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
