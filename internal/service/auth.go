package service

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/resumly/resumly/internal/keygen"
	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/permission"
	"github.com/resumly/resumly/internal/store"
)

// KeyPrincipal is the identity attached to a request authenticated with
// an API key.
type KeyPrincipal struct {
	KeyID       int64
	OwnerID     int64
	ResumeID    *int64 // nil for admin keys
	IsAdmin     bool
	Permissions permission.Set
}

// Allows evaluates the key's scopes against a requested action.
func (p *KeyPrincipal) Allows(category string, verb permission.Verb) bool {
	return permission.Check(p.IsAdmin, p.Permissions, category, verb)
}

// SessionPrincipal is the identity attached to a JWT-authenticated
// management request.
type SessionPrincipal struct {
	UserID int64
	Email  string
}

// RequestMeta carries the request-shape attributes a key's guards are
// checked against.
type RequestMeta struct {
	IP        string
	UserAgent string
	Operation string // tool name or route, recorded in the usage log
}

// Auth validates API keys and user sessions. Per-key rate limiting uses
// an in-memory hourly window; counters reset on process restart, which is
// acceptable for a limit measured in requests per hour.
type Auth struct {
	store     *store.Store
	jwtSecret []byte
	limiter   *hourlyLimiter
	logger    *slog.Logger
}

// NewAuth creates the auth service.
func NewAuth(st *store.Store, jwtSecret string, logger *slog.Logger) *Auth {
	return &Auth{
		store:     st,
		jwtSecret: []byte(jwtSecret),
		limiter:   newHourlyLimiter(),
		logger:    logger,
	}
}

// ValidateAPIKey checks a raw key against stored hashes and the record's
// guards, records the use, and returns the key's principal. Every check
// failure maps to a distinct sentinel so callers can report why a key was
// refused without leaking whether the key exists.
func (a *Auth) ValidateAPIKey(ctx context.Context, rawKey string, meta RequestMeta) (*KeyPrincipal, error) {
	key, err := a.store.GetAPIKeyByHash(ctx, keygen.Hash(rawKey))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	switch {
	case key.IsRevoked:
		return nil, ErrKeyRevoked
	case key.ExpiresAt != nil && !key.ExpiresAt.After(now):
		return nil, ErrKeyExpired
	case key.MaxUses != nil && key.UseCount >= *key.MaxUses:
		return nil, ErrKeyExhausted
	}

	if err := checkIPWhitelist(key.IPWhitelist, meta.IP); err != nil {
		return nil, err
	}
	if err := checkUserAgent(key.UserAgentPattern, meta.UserAgent); err != nil {
		return nil, err
	}
	if !a.limiter.allow(key.ID, key.RateLimit, now) {
		return nil, ErrRateLimited
	}

	perms, err := permission.ParseSet(key.Permissions)
	if err != nil && !key.IsAdmin {
		// A persisted record with an unparseable scope set should not
		// happen; refuse rather than guess.
		return nil, ErrInvalidCredentials
	}

	if err := a.store.RecordKeyUsage(ctx, &model.KeyUsage{
		KeyID:     key.ID,
		Operation: meta.Operation,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		a.logger.Warn("record key usage", "key_id", key.ID, "error", err)
	}

	return &KeyPrincipal{
		KeyID:       key.ID,
		OwnerID:     key.OwnerID,
		ResumeID:    key.ResumeID,
		IsAdmin:     key.IsAdmin,
		Permissions: perms,
	}, nil
}

func checkIPWhitelist(whitelist []string, ipStr string) error {
	if len(whitelist) == 0 {
		return nil
	}
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil {
		return ErrIPNotAllowed
	}
	for _, entry := range whitelist {
		if strings.Contains(entry, "/") {
			if _, cidr, err := net.ParseCIDR(entry); err == nil && cidr.Contains(ip) {
				return nil
			}
			continue
		}
		if allowed := net.ParseIP(entry); allowed != nil && allowed.Equal(ip) {
			return nil
		}
	}
	return ErrIPNotAllowed
}

func checkUserAgent(pattern, userAgent string) error {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		// Validated at write time; an unparseable stored pattern blocks
		// rather than passes.
		return ErrUserAgentBlocked
	}
	if !re.MatchString(userAgent) {
		return ErrUserAgentBlocked
	}
	return nil
}

// ---------------------------------------------------------------------------
// User sessions
// ---------------------------------------------------------------------------

// Authenticate verifies an email/password pair against the bcrypt hash
// on file and returns the account.
func (a *Auth) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// HashPassword produces the bcrypt hash stored for a user password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type jwtClaims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// IssueJWT creates a signed session token for the given user.
func (a *Auth) IssueJWT(userID int64, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "resumly",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// ValidateJWT verifies a bearer token and returns the session principal.
func (a *Auth) ValidateJWT(tokenStr string) (*SessionPrincipal, error) {
	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return &SessionPrincipal{UserID: claims.UserID, Email: claims.Email}, nil
}

// ---------------------------------------------------------------------------
// Per-key rate limiting
// ---------------------------------------------------------------------------

// hourlyLimiter is a fixed-window counter per key. Each key carries its
// own requests-per-hour allowance, so the shared-limit middleware
// (httprate) cannot serve this case.
type hourlyLimiter struct {
	mu      sync.Mutex
	windows map[int64]*limitWindow
}

type limitWindow struct {
	start time.Time
	count int
}

func newHourlyLimiter() *hourlyLimiter {
	return &hourlyLimiter{windows: make(map[int64]*limitWindow)}
}

func (l *hourlyLimiter) allow(keyID int64, limit int, now time.Time) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[keyID]
	if !ok || now.Sub(w.start) >= time.Hour {
		l.windows[keyID] = &limitWindow{start: now, count: 1}
		return true
	}
	if w.count >= limit {
		return false
	}
	w.count++
	return true
}
