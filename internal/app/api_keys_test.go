package app

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/usaccidents/accidents-api/internal/appconf"
)

func TestBlankKeyIsInvalid(t *testing.T) {
	app := &Application{
		Config: appconf.Config{
			ApiKeys: []string{"key"},
		},
	}
	assert.True(t, app.IsInvalidAPIKey(""))
	assert.True(t, app.IsInvalidAPIKey("other"))
	assert.False(t, app.IsInvalidAPIKey("key"))
}

func TestRequestAPIKeySources(t *testing.T) {
	app := &Application{Config: appconf.Config{ApiKeys: []string{"secret"}}}

	tests := []struct {
		name    string
		target  string
		header  string
		invalid bool
	}{
		{name: "query parameter", target: "/accidents/sample?key=secret"},
		{name: "header", target: "/accidents/sample", header: "secret"},
		{name: "query wins over header", target: "/accidents/sample?key=wrong", header: "secret", invalid: true},
		{name: "missing", target: "/accidents/sample", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set(APIKeyHeader, tt.header)
			}
			assert.Equal(t, tt.invalid, app.RequestHasInvalidAPIKey(req))
		})
	}
}

func TestNoConfiguredKeysAcceptsEverything(t *testing.T) {
	app := &Application{}

	req := httptest.NewRequest("GET", "/accidents/sample", nil)
	assert.False(t, app.APIKeysEnabled())
	assert.False(t, app.RequestHasInvalidAPIKey(req))
}
