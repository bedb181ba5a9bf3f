// Package mcp exposes the tool catalogue to MCP-speaking agent hosts over
// stdio. Every registered tool routes through the same dispatcher as the
// HTTP surface, so validation, rate limiting, and session semantics are
// identical on both.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cityair/conductor/internal/dispatch"
	"github.com/cityair/conductor/internal/log"
	"github.com/cityair/conductor/internal/schema"
)

// ToolCaller executes one tool call. Satisfied by *dispatch.Dispatcher.
type ToolCaller interface {
	Dispatch(ctx context.Context, call dispatch.Call) dispatch.Result
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	// CallerID identifies this MCP client to the rate and access gate.
	CallerID   string
	Dispatcher ToolCaller
	Catalog    []schema.ToolSchema
	Logger     log.Logger
}

// Server bridges the tool catalogue onto the MCP protocol. A stdio server
// serves one agent host, so all calls share one session created at startup.
type Server struct {
	mcpServer  *sdk.Server
	dispatcher ToolCaller
	sessionID  string
	callerID   string
	logger     log.Logger
}

// NewServer creates an MCP server with every catalogue tool registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	callerID := cfg.CallerID
	if callerID == "" {
		callerID = "mcp-client"
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer:  mcpServer,
		dispatcher: cfg.Dispatcher,
		sessionID:  uuid.NewString(),
		callerID:   callerID,
		logger:     logger,
	}

	for _, tool := range cfg.Catalog {
		s.mcpServer.AddTool(&sdk.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		}, s.handler(tool.Name))
	}

	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocking.
func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	s.logger.Info("mcp server starting", "session_id", s.sessionID)
	return s.mcpServer.Run(ctx, transport)
}

// handler adapts one catalogue tool to an MCP tool handler. Dispatch
// failures come back as error results, not protocol errors, so the agent
// host sees the structured error kind.
func (s *Server) handler(name string) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var args map[string]any
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, fmt.Errorf("decoding arguments for %s: %w", name, err)
			}
		}

		result := s.dispatcher.Dispatch(ctx, dispatch.Call{
			SessionID: s.sessionID,
			CallerID:  s.callerID,
			Tool:      name,
			Arguments: args,
		})

		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encoding result for %s: %w", name, err)
		}

		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: string(encoded)}},
			IsError: result.Status != "ok",
		}, nil
	}
}
