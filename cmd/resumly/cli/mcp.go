package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	rmcp "github.com/resumly/resumly/internal/mcp"
	"github.com/resumly/resumly/internal/service"
)

func newMCPCmd() *cobra.Command {
	var (
		transport string
		port      int
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for AI agents",
		Long: `Start a Model Context Protocol (MCP) server that exposes published resumes
as tools and resources for AI agents like Claude. Supports stdio (default)
and HTTP transports.

In stdio mode, the server communicates over stdin/stdout using JSON-RPC and
every published resume is readable, suitable for direct integration with
Claude Desktop on the machine that hosts the data.

In HTTP mode, each request carries an API key and the key's scope decides
which resumes are visible.`,
		Example: `  resumly mcp                             # stdio mode (for Claude Desktop)
  resumly mcp --transport http --port 3001   # HTTP mode with API key auth`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(transport, port)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport mode: stdio or http")
	cmd.Flags().IntVar(&port, "port", 3001, "HTTP port (only used with --transport http)")

	return cmd
}

func runMCP(transport string, port int) error {
	logger := newLogger()

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	auth := service.NewAuth(st, jwtSecret(), logger)
	mcpSrv := rmcp.NewMCPServer(st, auth, logger)

	switch transport {
	case "stdio":
		return mcpSrv.ServeStdio()
	case "http":
		addr := fmt.Sprintf(":%d", port)
		logger.Info("starting MCP HTTP server", "addr", addr)
		return mcpSrv.ServeHTTP(addr)
	default:
		return fmt.Errorf("unsupported transport %q; use 'stdio' or 'http'", transport)
	}
}
