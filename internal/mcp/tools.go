package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/resumly/resumly/internal/store"
)

// registerTools registers the Resumly MCP tools.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	srv.AddTool(
		mcp.NewTool("resumly_list_resumes",
			mcp.WithDescription(
				"List the resume pages available to you. Returns each page's slug, "+
					"title, role, display name, tags, and summary. Use this first to "+
					"discover which resumes exist, then load one with resumly_get_resume.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListResumes,
	)

	srv.AddTool(
		mcp.NewTool("resumly_get_resume",
			mcp.WithDescription(
				"Get the full content of one resume page by slug, including its "+
					"structured sections (experience, education, skills, projects).",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("slug",
				mcp.Required(),
				mcp.Description("Slug of the resume page to load"),
			),
		),
		s.handleGetResume,
	)

	srv.AddTool(
		mcp.NewTool("resumly_search_resumes",
			mcp.WithDescription(
				"Search the available resume pages by free text. Matches against "+
					"title, role, display name, tags, summary, and slug, "+
					"case-insensitively. Returns matching pages as summaries.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Text to search for, e.g. a skill or a role"),
			),
		),
		s.handleSearchResumes,
	)
}

func (s *MCPServer) handleListResumes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.callScope(ctx)
	if err != nil {
		return toolError("access denied: %v", err)
	}
	resumes, err := s.visibleResumes(ctx, sc)
	if err != nil {
		return toolError("failed to list resumes: %v", err)
	}
	return successJSON(summarize(resumes))
}

func (s *MCPServer) handleGetResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.callScope(ctx)
	if err != nil {
		return toolError("access denied: %v", err)
	}
	slug, err := request.RequireString("slug")
	if err != nil {
		return toolError("missing required parameter \"slug\"")
	}

	resume, err := s.store.GetResumeBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return toolError("no resume with slug %q", slug)
		}
		return toolError("failed to load resume: %v", err)
	}

	if sc.principal != nil {
		if resume.OwnerID != sc.principal.OwnerID {
			return toolError("no resume with slug %q", slug)
		}
		if sc.principal.ResumeID != nil && *sc.principal.ResumeID != resume.ID {
			return toolError("api key is not scoped to resume %q", slug)
		}
	} else if !resume.IsPublished {
		return toolError("no resume with slug %q", slug)
	}

	return successJSON(resume)
}

func (s *MCPServer) handleSearchResumes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sc, err := s.callScope(ctx)
	if err != nil {
		return toolError("access denied: %v", err)
	}
	query, err := request.RequireString("query")
	if err != nil {
		return toolError("missing required parameter \"query\"")
	}

	resumes, err := s.visibleResumes(ctx, sc)
	if err != nil {
		return toolError("failed to search resumes: %v", err)
	}

	matched := resumes[:0:0]
	for i := range resumes {
		if matches(&resumes[i], query) {
			matched = append(matched, resumes[i])
		}
	}
	return successJSON(summarize(matched))
}
