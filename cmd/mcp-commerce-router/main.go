// Package main provides the entry point for the mcp-commerce-router server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-commerce-router/internal/server"
	"github.com/txn2/mcp-commerce-router/pkg/health"
	"github.com/txn2/mcp-commerce-router/pkg/platform"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type serverOptions struct {
	configPath  string
	transport   string
	address     string
	showVersion bool
}

func parseFlags() serverOptions {
	opts := serverOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.transport, "transport", "", "Transport type: stdio, http (overrides config)")
	flag.StringVar(&opts.address, "address", "", "Server address for HTTP transport (overrides config)")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("mcp-commerce-router version %s\n", server.Version)
		return nil
	}

	ctx := setupSignalHandler()

	mcpServer, p, err := createServer(opts)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("platform shutdown incomplete", "error", err)
		}
	}()

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}

	applyConfigOverrides(p.Config(), &opts)

	return serve(ctx, mcpServer, p.Config(), opts)
}

func createServer(opts serverOptions) (*mcp.Server, *platform.Platform, error) {
	if opts.configPath != "" {
		return server.NewWithConfig(opts.configPath)
	}
	return server.NewWithDefaults()
}

func applyConfigOverrides(cfg *platform.Config, opts *serverOptions) {
	if opts.transport == "" {
		opts.transport = cfg.Server.Transport
	}
	if opts.address == "" {
		opts.address = cfg.Server.Address
	}
}

func serve(ctx context.Context, mcpServer *mcp.Server, cfg *platform.Config, opts serverOptions) error {
	switch opts.transport {
	case "stdio":
		return mcpServer.Run(ctx, &mcp.StdioTransport{})
	case "http":
		return serveHTTP(ctx, mcpServer, cfg, opts.address)
	default:
		return fmt.Errorf("unsupported transport: %s", opts.transport)
	}
}

func serveHTTP(ctx context.Context, mcpServer *mcp.Server, cfg *platform.Config, address string) error {
	checker := health.NewChecker()
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.NewHTTPHandler(mcpServer, cfg, checker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over HTTP", "address", address)
		checker.SetReady()
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		checker.SetDraining()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down HTTP server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
