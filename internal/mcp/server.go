// Package mcp exposes resume pages to LLM clients over the Model Context
// Protocol. In stdio mode the server trusts its local operator; in HTTP
// mode every request authenticates with an API key whose scope bounds
// what the tools return.
package mcp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/resumly/resumly/internal/service"
	"github.com/resumly/resumly/internal/store"
)

// MCPServer wraps the mcp-go server with Resumly tool and resource
// registrations so AI agents can discover and read resume pages.
type MCPServer struct {
	store  *store.Store
	auth   *service.Auth
	logger *slog.Logger
	server *server.MCPServer
}

// NewMCPServer creates a server pre-loaded with the Resumly tools and
// resources, ready to serve over stdio or HTTP.
func NewMCPServer(st *store.Store, auth *service.Auth, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		store:  st,
		auth:   auth,
		logger: logger,
	}

	mcpServer := server.NewMCPServer(
		"Resumly",
		"0.1.0",
		server.WithResourceCapabilities(true, false),
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)
	s.registerResources(mcpServer)

	s.server = mcpServer
	return s
}

// Server returns the underlying mcp-go server, useful for testing.
func (s *MCPServer) Server() *server.MCPServer {
	return s.server
}

// ServeStdio starts the server in stdio mode, the integration path for
// clients that launch Resumly as a subprocess. No API key is required;
// whoever can exec the binary already owns the data directory.
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server in stdio mode")
	return server.ServeStdio(s.server)
}

// ServeHTTP starts the server in Streamable HTTP mode on addr. Each
// request must carry an X-API-Key header; the key's guards run exactly as
// they do on the REST API and its scope bounds every tool result.
func (s *MCPServer) ServeHTTP(addr string) error {
	httpServer := server.NewStreamableHTTPServer(
		s.server,
		server.WithHTTPContextFunc(s.authContext),
	)
	s.logger.Info("MCP HTTP server starting", "addr", addr)
	return httpServer.Start(addr)
}

// authContext validates the request's API key and stashes the resulting
// principal (or the validation error) in the tool-call context. Tool
// handlers surface the error; returning it here would kill the session
// rather than the call.
func (s *MCPServer) authContext(ctx context.Context, r *http.Request) context.Context {
	rawKey := r.Header.Get("X-API-Key")
	if rawKey == "" {
		return context.WithValue(ctx, authErrKey, service.ErrUnauthenticated)
	}
	principal, err := s.auth.ValidateAPIKey(ctx, rawKey, service.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Operation: "mcp",
	})
	if err != nil {
		return context.WithValue(ctx, authErrKey, err)
	}
	return context.WithValue(ctx, principalKey, principal)
}

func readOnlyAnnotation() mcp.ToolAnnotation {
	return mcp.ToolAnnotation{
		ReadOnlyHint: boolPtr(true),
	}
}

func boolPtr(b bool) *bool {
	return &b
}
