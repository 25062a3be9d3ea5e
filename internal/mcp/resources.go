package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/resumly/resumly/internal/store"
)

// registerResources adds the read-only resume resources LLM clients can
// load directly into context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	srv.AddResource(
		mcp.NewResource(
			"resumly://resumes",
			"Resume Pages",
			mcp.WithResourceDescription(
				"The resume pages available to this client, as summaries.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleResumesResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"resumly://resume/{slug}",
			"Resume Page",
			mcp.WithTemplateDescription(
				"Full content of one resume page, including structured sections.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleResumeResource,
	)
}

func (s *MCPServer) handleResumesResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sc, err := s.callScope(ctx)
	if err != nil {
		return nil, err
	}
	resumes, err := s.visibleResumes(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}

	b, err := json.MarshalIndent(summarize(resumes), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resumes: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "resumly://resumes",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

func (s *MCPServer) handleResumeResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sc, err := s.callScope(ctx)
	if err != nil {
		return nil, err
	}

	slug := strings.TrimPrefix(request.Params.URI, "resumly://resume/")
	resume, err := s.store.GetResumeBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("no resume with slug %q", slug)
		}
		return nil, fmt.Errorf("load resume: %w", err)
	}

	if sc.principal != nil {
		if resume.OwnerID != sc.principal.OwnerID {
			return nil, fmt.Errorf("no resume with slug %q", slug)
		}
		if sc.principal.ResumeID != nil && *sc.principal.ResumeID != resume.ID {
			return nil, fmt.Errorf("api key is not scoped to resume %q", slug)
		}
	} else if !resume.IsPublished {
		return nil, fmt.Errorf("no resume with slug %q", slug)
	}

	b, err := json.MarshalIndent(resume, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resume: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
