package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/gh-grep/internal/grep"
	"github.com/fyrsmithlabs/gh-grep/internal/logging"
	"github.com/fyrsmithlabs/gh-grep/internal/metrics"
)

// Server is an MCP server backed by the grep engine.
type Server struct {
	mcp      *mcp.Server
	api      grep.API
	parallel int
	cacheSz  int
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "gh-grep")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Parallel is the repository concurrency used when a call does not
	// set one.
	Parallel int

	// CacheSize sizes the large-file lookup caches of each call.
	CacheSize int

	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:      "gh-grep",
		Version:   "dev",
		Parallel:  grep.DefaultParallel,
		CacheSize: grep.DefaultCacheSize,
		Logger:    logging.NewNop(),
	}
}

// NewServer creates an MCP server that greps through api.
func NewServer(cfg *Config, api grep.API) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if api == nil {
		return nil, fmt.Errorf("github api is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		api:      api,
		parallel: cfg.Parallel,
		cacheSz:  cfg.CacheSize,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server, for custom transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
