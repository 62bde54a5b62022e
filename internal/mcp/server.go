package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/secrets"
	"github.com/fyrsmithlabs/copyvara/internal/workspace"
)

// Server is an MCP server backed by a workspace.
type Server struct {
	mcp      *mcp.Server
	ws       *workspace.Workspace
	scrubber *secrets.Scrubber
	metrics  *Metrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "copyvara")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger *zap.Logger

	// Scrubber redacts secrets from tool output. Nil disables scrubbing.
	Scrubber *secrets.Scrubber
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "copyvara",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server for ws.
func NewServer(cfg *Config, ws *workspace.Workspace) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if ws == nil {
		return nil, fmt.Errorf("workspace is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	name, version := cfg.Name, cfg.Version
	if name == "" {
		name = "copyvara"
	}
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcp:      mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		ws:       ws,
		scrubber: cfg.Scrubber,
		metrics:  NewMetrics(logger),
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves the stdio transport until ctx is done or the client hangs up.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves an arbitrary transport.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

func (s *Server) scrub(text string) string {
	return s.scrubber.Scrub(text).Text
}
