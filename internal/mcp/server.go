// Package mcp exposes the assistant's registered functions as Model
// Context Protocol tools, so external MCP clients can call the same
// capabilities the conversational model does, behind the same argument
// validation.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evscmms/assistant/internal/log"
	"github.com/evscmms/assistant/internal/registry"
)

// Server wraps the MCP SDK server around the function registry.
type Server struct {
	mcpServer *mcp.Server
	registry  *registry.Registry
	logger    log.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name     string
	Version  string
	Registry *registry.Registry
	Logger   log.Logger
}

// NewServer builds the server and registers every function in the
// registry as a tool.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("function registry is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		registry:  cfg.Registry,
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocking.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() {
	for _, name := range s.registry.Names() {
		spec, err := s.registry.Resolve(name)
		if err != nil {
			continue
		}

		tool := &mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameters,
		}
		mcp.AddTool(s.mcpServer, tool, s.toolHandler(spec.Name))
	}
}

// toolHandler bridges one registered function into the MCP calling
// convention. Validation failures and execution errors come back as
// error results so the client sees what to fix; only encoding problems
// are protocol errors.
func (s *Server) toolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, in map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, in map[string]any) (*mcp.CallToolResult, any, error) {
		if in == nil {
			in = map[string]any{}
		}

		validated, err := s.registry.Validate(name, in)
		if err != nil {
			var verr *registry.ValidationError
			if errors.As(err, &verr) {
				return errorResult(verr.Error()), nil, nil
			}
			return nil, nil, err
		}

		spec, err := s.registry.Resolve(name)
		if err != nil {
			return nil, nil, err
		}

		payload, err := spec.Handler(ctx, validated)
		if err != nil {
			s.logger.Warn("tool call failed", "tool", name, "error", err)
			return errorResult(err.Error()), nil, nil
		}

		body, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding %s result: %w", name, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(body)}},
		}, nil, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
