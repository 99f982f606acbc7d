// Package server provides factories for the commerce router's MCP server
// and its HTTP transport.
package server

import (
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-commerce-router/pkg/auth"
	"github.com/txn2/mcp-commerce-router/pkg/health"
	"github.com/txn2/mcp-commerce-router/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// NewWithConfig builds the platform and MCP server from a config file.
func NewWithConfig(configPath string) (*mcp.Server, *platform.Platform, error) {
	cfg, err := platform.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return newFromConfig(cfg)
}

// NewWithDefaults builds the platform with the built-in service catalog
// and an in-memory session store.
func NewWithDefaults() (*mcp.Server, *platform.Platform, error) {
	return newFromConfig(platform.DefaultConfig())
}

func newFromConfig(cfg *platform.Config) (*mcp.Server, *platform.Platform, error) {
	if cfg.Server.Version == "" || cfg.Server.Version == "1.0.0" {
		cfg.Server.Version = Version
	}
	p, err := platform.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return p.MCPServer(), p, nil
}

// NewHTTPHandler wires the streamable MCP handler with health probes and
// optional API-key authentication.
func NewHTTPHandler(server *mcp.Server, cfg *platform.Config, checker *health.Checker) http.Handler {
	streamable := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return server }, nil)

	var mcpHandler http.Handler = streamable
	if cfg.Auth.APIKeys.Enabled {
		authenticator := auth.NewAPIKeyAuthenticator(cfg.Auth.APIKeys.Keys)
		mcpHandler = auth.Middleware(authenticator)(streamable)
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.LivenessHandler())
	mux.Handle("/readyz", checker.ReadinessHandler())
	mux.Handle("/", mcpHandler)
	return mux
}
