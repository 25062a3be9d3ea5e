package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/permission"
	"github.com/resumly/resumly/internal/service"
	"github.com/resumly/resumly/internal/store"
)

func newTestMCP(t *testing.T) (*MCPServer, *store.Store, *model.User) {
	t.Helper()
	s, err := store.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	user := &model.User{Email: "ada@example.com", PasswordHash: "x", IsActive: true}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := service.NewAuth(s, "test-secret", logger)
	return NewMCPServer(s, auth, logger), s, user
}

func seedResume(t *testing.T, s *store.Store, ownerID int64, slug, title string, published bool) *model.Resume {
	t.Helper()
	r := &model.Resume{
		OwnerID:     ownerID,
		Slug:        slug,
		Title:       title,
		Role:        "engineer",
		DisplayName: "Ada L.",
		Tags:        []string{"go", "distributed-systems"},
		Sections:    `{"experience":[]}`,
		IsPublished: published,
	}
	if err := s.CreateResume(context.Background(), r); err != nil {
		t.Fatalf("CreateResume: %v", err)
	}
	return r
}

func toolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return text.Text
}

func TestListResumesStdio(t *testing.T) {
	srv, s, user := newTestMCP(t)
	seedResume(t, s, user.ID, "ada", "Backend Engineer", true)
	seedResume(t, s, user.ID, "draft", "Unfinished", false)

	result, err := srv.handleListResumes(context.Background(), toolRequest("resumly_list_resumes", nil))
	if err != nil {
		t.Fatalf("handleListResumes: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	var items []resumeSummary
	if err := json.Unmarshal([]byte(resultText(t, result)), &items); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	// stdio mode sees published pages only
	if len(items) != 1 || items[0].Slug != "ada" {
		t.Errorf("got %+v, want just the published page", items)
	}
}

func TestGetResume(t *testing.T) {
	srv, s, user := newTestMCP(t)
	seedResume(t, s, user.ID, "ada", "Backend Engineer", true)

	result, err := srv.handleGetResume(context.Background(), toolRequest("resumly_get_resume", map[string]interface{}{"slug": "ada"}))
	if err != nil {
		t.Fatalf("handleGetResume: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", resultText(t, result))
	}

	var resume model.Resume
	if err := json.Unmarshal([]byte(resultText(t, result)), &resume); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if resume.Title != "Backend Engineer" {
		t.Errorf("title = %q", resume.Title)
	}

	result, err = srv.handleGetResume(context.Background(), toolRequest("resumly_get_resume", map[string]interface{}{"slug": "nope"}))
	if err != nil {
		t.Fatalf("handleGetResume: %v", err)
	}
	if !result.IsError {
		t.Error("unknown slug must return a tool error")
	}
}

func TestSearchResumes(t *testing.T) {
	srv, s, user := newTestMCP(t)
	seedResume(t, s, user.ID, "ada", "Backend Engineer", true)
	seedResume(t, s, user.ID, "eva", "Product Designer", true)

	result, err := srv.handleSearchResumes(context.Background(), toolRequest("resumly_search_resumes", map[string]interface{}{"query": "designer"}))
	if err != nil {
		t.Fatalf("handleSearchResumes: %v", err)
	}
	var items []resumeSummary
	if err := json.Unmarshal([]byte(resultText(t, result)), &items); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(items) != 1 || items[0].Slug != "eva" {
		t.Errorf("got %+v, want the designer page", items)
	}

	// Tags are searched too.
	result, _ = srv.handleSearchResumes(context.Background(), toolRequest("resumly_search_resumes", map[string]interface{}{"query": "distributed"}))
	items = nil
	if err := json.Unmarshal([]byte(resultText(t, result)), &items); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d tag matches, want 2", len(items))
	}
}

func mustParseSet(t *testing.T, raw []string) permission.Set {
	t.Helper()
	set, err := permission.ParseSet(raw)
	if err != nil {
		t.Fatalf("ParseSet(%v): %v", raw, err)
	}
	return set
}

func TestKeyWithoutReadRefused(t *testing.T) {
	srv, s, user := newTestMCP(t)
	bound := seedResume(t, s, user.ID, "ada", "Backend Engineer", true)

	principal := &service.KeyPrincipal{
		KeyID:       1,
		OwnerID:     user.ID,
		ResumeID:    &bound.ID,
		Permissions: mustParseSet(t, []string{"resume:write"}),
	}
	ctx := context.WithValue(context.Background(), principalKey, principal)

	result, err := srv.handleListResumes(ctx, toolRequest("resumly_list_resumes", nil))
	if err != nil {
		t.Fatalf("handleListResumes: %v", err)
	}
	if !result.IsError {
		t.Error("key without resume:read must be refused")
	}
}

func TestScopedReadKey(t *testing.T) {
	srv, s, user := newTestMCP(t)
	bound := seedResume(t, s, user.ID, "ada", "Backend Engineer", true)
	seedResume(t, s, user.ID, "eva", "Product Designer", true)

	principal := &service.KeyPrincipal{
		KeyID:       1,
		OwnerID:     user.ID,
		ResumeID:    &bound.ID,
		Permissions: mustParseSet(t, []string{"resume:read"}),
	}
	ctx := context.WithValue(context.Background(), principalKey, principal)

	result, err := srv.handleListResumes(ctx, toolRequest("resumly_list_resumes", nil))
	if err != nil {
		t.Fatalf("handleListResumes: %v", err)
	}
	var items []resumeSummary
	if err := json.Unmarshal([]byte(resultText(t, result)), &items); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if len(items) != 1 || items[0].Slug != "ada" {
		t.Errorf("scoped key sees %+v, want only its bound page", items)
	}

	// The other slug is off limits.
	result, _ = srv.handleGetResume(ctx, toolRequest("resumly_get_resume", map[string]interface{}{"slug": "eva"}))
	if !result.IsError {
		t.Error("scoped key must not read other resumes")
	}
	if !strings.Contains(resultText(t, result), "not scoped") {
		t.Errorf("unexpected error text: %s", resultText(t, result))
	}
}

func TestMatches(t *testing.T) {
	resume := &model.Resume{
		Slug:        "ada",
		Title:       "Backend Engineer",
		Role:        "Staff Engineer",
		DisplayName: "Ada L.",
		Summary:     "Distributed systems, Go, Postgres.",
		Tags:        []string{"go", "kubernetes"},
	}

	tests := []struct {
		query string
		want  bool
	}{
		{"backend", true},
		{"BACKEND", true},
		{"staff", true},
		{"postgres", true},
		{"kubernetes", true},
		{"ada", true},
		{"rust", false},
		{"", true},
	}

	for _, tt := range tests {
		if got := matches(resume, tt.query); got != tt.want {
			t.Errorf("matches(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestAuthErrorSurfacesAsToolError(t *testing.T) {
	srv, _, _ := newTestMCP(t)
	ctx := context.WithValue(context.Background(), authErrKey, service.ErrKeyRevoked)

	result, err := srv.handleListResumes(ctx, toolRequest("resumly_list_resumes", nil))
	if err != nil {
		t.Fatalf("handleListResumes: %v", err)
	}
	if !result.IsError {
		t.Fatal("auth failure must surface as a tool error, not a session kill")
	}
	if !strings.Contains(resultText(t, result), "revoked") {
		t.Errorf("unexpected error text: %s", resultText(t, result))
	}
}
