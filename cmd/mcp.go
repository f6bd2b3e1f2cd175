package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	mcpSdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evscmms/assistant/internal/app"
	"github.com/evscmms/assistant/internal/config"
	"github.com/evscmms/assistant/internal/mcp"
)

// runMCP initializes and starts the MCP server on stdio transport.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg)
	logger.Info("starting MCP server", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Name:     "evscmms-assistant",
		Version:  AppVersion,
		Registry: a.Registry,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	logger.Info("MCP server ready", "transport", "stdio")

	if err := mcpServer.Run(ctx, &mcpSdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	logger.Info("MCP server shut down gracefully")
	return nil
}
