package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/permission"
	"github.com/resumly/resumly/internal/store"
)

func newTestAuth(t *testing.T, s *store.Store) *Auth {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuth(s, "test-secret", logger)
}

func createTestKey(t *testing.T, s *store.Store, spec KeySpec, ownerID int64) (*model.APIKey, string) {
	t.Helper()
	key, secret, err := NewKeys(s).Create(context.Background(), ownerID, spec)
	if err != nil {
		t.Fatalf("Create key: %v", err)
	}
	return key, secret
}

func TestValidateAPIKey(t *testing.T) {
	s := newTestStore(t)
	auth := newTestAuth(t, s)
	ctx := context.Background()

	user := newTestUser(t, s, "ada@example.com")
	resume := newTestResume(t, s, user.ID, "ada")
	key, secret := createTestKey(t, s, KeySpec{
		Name:        "reader",
		ResumeID:    &resume.ID,
		Permissions: []string{"resume:read"},
	}, user.ID)

	meta := RequestMeta{IP: "203.0.113.9", UserAgent: "test/1.0", Operation: "get_resume"}
	principal, err := auth.ValidateAPIKey(ctx, secret, meta)
	if err != nil {
		t.Fatalf("ValidateAPIKey: %v", err)
	}
	if principal.KeyID != key.ID || principal.OwnerID != user.ID {
		t.Errorf("principal %+v does not match key", principal)
	}
	if principal.IsAdmin {
		t.Error("non-admin key produced an admin principal")
	}
	if !principal.Allows(permission.CategoryResume, permission.Read) {
		t.Error("principal must allow resume:read")
	}
	if principal.Allows(permission.CategoryResume, permission.Write) {
		t.Error("principal must not allow resume:write")
	}

	// The use is recorded.
	got, err := s.GetAPIKey(ctx, key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if got.UseCount != 1 {
		t.Errorf("got use count %d, want 1", got.UseCount)
	}
	if got.FirstUsedAt == nil || got.LastUsedAt == nil {
		t.Error("usage timestamps not set")
	}

	if _, err := auth.ValidateAPIKey(ctx, "mcp_0000000000000000000000000000dead", meta); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials for unknown key", err)
	}
}

func TestValidateAPIKeyGuards(t *testing.T) {
	s := newTestStore(t)
	auth := newTestAuth(t, s)
	ctx := context.Background()

	user := newTestUser(t, s, "ada@example.com")
	resume := newTestResume(t, s, user.ID, "ada")
	meta := RequestMeta{IP: "203.0.113.9", UserAgent: "test/1.0"}

	t.Run("revoked", func(t *testing.T) {
		key, secret := createTestKey(t, s, KeySpec{
			Name: "k", ResumeID: &resume.ID, Permissions: []string{"read"},
		}, user.ID)
		if err := s.RevokeAPIKey(ctx, key.ID); err != nil {
			t.Fatalf("RevokeAPIKey: %v", err)
		}
		if _, err := auth.ValidateAPIKey(ctx, secret, meta); !errors.Is(err, ErrKeyRevoked) {
			t.Errorf("got %v, want ErrKeyRevoked", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		_, secret := createTestKey(t, s, KeySpec{
			Name: "k", ResumeID: &resume.ID, Permissions: []string{"read"}, ExpiresAt: &past,
		}, user.ID)
		if _, err := auth.ValidateAPIKey(ctx, secret, meta); !errors.Is(err, ErrKeyExpired) {
			t.Errorf("got %v, want ErrKeyExpired", err)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		one := int64(1)
		_, secret := createTestKey(t, s, KeySpec{
			Name: "k", ResumeID: &resume.ID, Permissions: []string{"read"}, MaxUses: &one,
		}, user.ID)
		if _, err := auth.ValidateAPIKey(ctx, secret, meta); err != nil {
			t.Fatalf("first use: %v", err)
		}
		if _, err := auth.ValidateAPIKey(ctx, secret, meta); !errors.Is(err, ErrKeyExhausted) {
			t.Errorf("got %v, want ErrKeyExhausted", err)
		}
	})

	t.Run("ip whitelist", func(t *testing.T) {
		_, secret := createTestKey(t, s, KeySpec{
			Name: "k", ResumeID: &resume.ID, Permissions: []string{"read"},
			IPWhitelist: []string{"10.0.0.0/8", "203.0.113.9"},
		}, user.ID)
		if _, err := auth.ValidateAPIKey(ctx, secret, RequestMeta{IP: "10.1.2.3"}); err != nil {
			t.Errorf("CIDR match rejected: %v", err)
		}
		if _, err := auth.ValidateAPIKey(ctx, secret, RequestMeta{IP: "203.0.113.9"}); err != nil {
			t.Errorf("exact match rejected: %v", err)
		}
		if _, err := auth.ValidateAPIKey(ctx, secret, RequestMeta{IP: "198.51.100.1"}); !errors.Is(err, ErrIPNotAllowed) {
			t.Errorf("got %v, want ErrIPNotAllowed", err)
		}
	})

	t.Run("user agent", func(t *testing.T) {
		_, secret := createTestKey(t, s, KeySpec{
			Name: "k", ResumeID: &resume.ID, Permissions: []string{"read"},
			UserAgentPattern: `^claude-`,
		}, user.ID)
		if _, err := auth.ValidateAPIKey(ctx, secret, RequestMeta{IP: "10.0.0.1", UserAgent: "claude-desktop/1.2"}); err != nil {
			t.Errorf("matching agent rejected: %v", err)
		}
		if _, err := auth.ValidateAPIKey(ctx, secret, RequestMeta{IP: "10.0.0.1", UserAgent: "curl/8.0"}); !errors.Is(err, ErrUserAgentBlocked) {
			t.Errorf("got %v, want ErrUserAgentBlocked", err)
		}
	})

	t.Run("rate limit", func(t *testing.T) {
		_, secret := createTestKey(t, s, KeySpec{
			Name: "k", ResumeID: &resume.ID, Permissions: []string{"read"}, RateLimit: 2,
		}, user.ID)
		for i := 0; i < 2; i++ {
			if _, err := auth.ValidateAPIKey(ctx, secret, meta); err != nil {
				t.Fatalf("use %d: %v", i+1, err)
			}
		}
		if _, err := auth.ValidateAPIKey(ctx, secret, meta); !errors.Is(err, ErrRateLimited) {
			t.Errorf("got %v, want ErrRateLimited", err)
		}
	})
}

func TestHourlyLimiterWindow(t *testing.T) {
	l := newHourlyLimiter()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !l.allow(1, 3, now) {
			t.Fatalf("request %d within limit refused", i+1)
		}
	}
	if l.allow(1, 3, now) {
		t.Error("request over limit allowed")
	}
	// A new hour opens a fresh window.
	if !l.allow(1, 3, now.Add(time.Hour)) {
		t.Error("request in the next window refused")
	}
	// Other keys are unaffected.
	if !l.allow(2, 1, now) {
		t.Error("independent key refused")
	}
	// Zero means unlimited.
	for i := 0; i < 100; i++ {
		if !l.allow(3, 0, now) {
			t.Fatal("unlimited key refused")
		}
	}
}

func TestAuthenticate(t *testing.T) {
	s := newTestStore(t)
	auth := newTestAuth(t, s)
	ctx := context.Background()

	hash, err := HashPassword("hunter2hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := &model.User{
		Email:        "ada@example.com",
		PasswordHash: hash,
		Name:         "Ada",
		IsActive:     true,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := auth.Authenticate(ctx, "ada@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("got user %d, want %d", got.ID, user.ID)
	}

	if _, err := auth.Authenticate(ctx, "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials for bad password", err)
	}
	if _, err := auth.Authenticate(ctx, "nobody@example.com", "hunter2hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials for unknown email", err)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	s := newTestStore(t)
	auth := newTestAuth(t, s)

	token, err := auth.IssueJWT(42, "ada@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	principal, err := auth.ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if principal.UserID != 42 || principal.Email != "ada@example.com" {
		t.Errorf("claims %+v do not round-trip", principal)
	}

	if _, err := auth.ValidateJWT("not.a.token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials for garbage token", err)
	}

	expired, err := auth.IssueJWT(42, "ada@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("IssueJWT expired: %v", err)
	}
	if _, err := auth.ValidateJWT(expired); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials for expired token", err)
	}

	other := NewAuth(s, "other-secret", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := other.ValidateJWT(token); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials across secrets", err)
	}
}
