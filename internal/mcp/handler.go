package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/permission"
	"github.com/resumly/resumly/internal/service"
)

type contextKey string

const (
	principalKey contextKey = "mcp_key_principal"
	authErrKey   contextKey = "mcp_auth_error"
)

// scope is the access boundary a tool call operates under. In stdio mode
// all published resumes are visible; in HTTP mode the API key decides.
type scope struct {
	principal *service.KeyPrincipal // nil in stdio mode
}

// callScope resolves the request's scope, or an error when HTTP auth
// failed. Errors are returned as tool results so the LLM sees them.
func (s *MCPServer) callScope(ctx context.Context) (*scope, error) {
	if err, ok := ctx.Value(authErrKey).(error); ok {
		return nil, err
	}
	if p, ok := ctx.Value(principalKey).(*service.KeyPrincipal); ok {
		if !p.Allows(permission.CategoryResume, permission.Read) {
			return nil, fmt.Errorf("api key does not grant resume:read")
		}
		return &scope{principal: p}, nil
	}
	// stdio mode: no per-request credential
	return &scope{}, nil
}

// visibleResumes returns the resumes the scope may see.
func (s *MCPServer) visibleResumes(ctx context.Context, sc *scope) ([]model.Resume, error) {
	if sc.principal == nil {
		return s.store.ListPublishedResumes(ctx)
	}
	if sc.principal.ResumeID != nil {
		resume, err := s.store.GetResume(ctx, *sc.principal.ResumeID)
		if err != nil {
			return nil, err
		}
		return []model.Resume{*resume}, nil
	}
	return s.store.ListResumes(ctx, sc.principal.OwnerID)
}

// resumeSummary is the compact listing shape returned by list and search
// tools; full content comes from the get tool.
type resumeSummary struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Role        string   `json:"role,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

func summarize(resumes []model.Resume) []resumeSummary {
	out := make([]resumeSummary, len(resumes))
	for i, r := range resumes {
		out[i] = resumeSummary{
			Slug:        r.Slug,
			Title:       r.Title,
			Role:        r.Role,
			DisplayName: r.DisplayName,
			Tags:        r.Tags,
			Summary:     r.Summary,
		}
	}
	return out
}

// matches reports whether the resume's text fields contain the query,
// case-insensitively.
func matches(r *model.Resume, query string) bool {
	q := strings.ToLower(query)
	for _, field := range []string{r.Title, r.Role, r.DisplayName, r.Summary, r.Slug} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// successJSON marshals data as an indented JSON tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. These are visible to the
// LLM so it can self-correct; they do NOT terminate the MCP session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
