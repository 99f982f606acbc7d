package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-commerce-router/pkg/auth"
	"github.com/txn2/mcp-commerce-router/pkg/health"
)

func TestNewWithDefaults(t *testing.T) {
	mcpServer, p, err := NewWithDefaults()
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, mcpServer)
	assert.Equal(t, Version, p.Config().Server.Version)
}

func TestNewWithConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  name: test-router
  version: 2.1.0
sessions:
  backend: memory
`), 0o600))

	mcpServer, p, err := NewWithConfig(path)
	require.NoError(t, err)
	defer p.Close()

	assert.NotNil(t, mcpServer)
	assert.Equal(t, "test-router", p.Config().Server.Name)
	assert.Equal(t, "2.1.0", p.Config().Server.Version, "explicit versions are kept")
}

func TestNewWithConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  transport: carrier-pigeon
`), 0o600))

	_, _, err := NewWithConfig(path)
	assert.Error(t, err)
}

func TestNewHTTPHandler_Probes(t *testing.T) {
	mcpServer, p, err := NewWithDefaults()
	require.NoError(t, err)
	defer p.Close()

	checker := health.NewChecker()
	handler := NewHTTPHandler(mcpServer, p.Config(), checker)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	checker.SetReady()
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewHTTPHandler_Auth(t *testing.T) {
	mcpServer, p, err := NewWithDefaults()
	require.NoError(t, err)
	defer p.Close()

	cfg := p.Config()
	cfg.Auth.APIKeys.Enabled = true
	cfg.Auth.APIKeys.Keys = []auth.APIKey{{Key: "secret", Name: "test"}}

	handler := NewHTTPHandler(mcpServer, cfg, health.NewChecker())

	// The MCP endpoint rejects unauthenticated calls.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Probes stay open for the orchestrator.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A valid key reaches the MCP handler (which then rejects the empty
	// body with a client error rather than 401).
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	handler.ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusUnauthorized, rec.Code)
}
