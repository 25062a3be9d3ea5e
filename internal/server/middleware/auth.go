package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/resumly/resumly/internal/service"
)

type contextKeyAuth string

const (
	// SessionKey is the context key for an authenticated user session.
	SessionKey contextKeyAuth = "session_principal"
	// KeyPrincipalKey is the context key for an authenticated API key.
	KeyPrincipalKey contextKeyAuth = "key_principal"
)

// Session validates the Authorization Bearer token and attaches the user's
// session principal to the context. Management routes require it.
func Session(auth *service.Auth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a Bearer token.")
				return
			}
			principal, err := auth.ValidateJWT(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "Invalid or expired session token")
				return
			}
			ctx := context.WithValue(r.Context(), SessionKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DefaultAPIKeyHeader is the request header KeyAuth reads the key from
// when no override is configured.
const DefaultAPIKeyHeader = "X-API-Key"

// KeyAuth validates the API key header against the key store, running
// every guard the key carries (expiry, revocation, use allowance, IP
// whitelist, user-agent pattern, hourly rate limit) and recording the use.
// An empty header name selects DefaultAPIKeyHeader.
func KeyAuth(auth *service.Auth, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get(header)
			if rawKey == "" {
				writeAuthError(w, http.StatusUnauthorized, "Authentication required. Provide a "+header+" header.")
				return
			}
			principal, err := auth.ValidateAPIKey(r.Context(), rawKey, service.RequestMeta{
				IP:        clientIP(r),
				UserAgent: r.UserAgent(),
				Operation: r.Method + " " + r.URL.Path,
			})
			if err != nil {
				status, msg := keyErrorStatus(err)
				writeAuthError(w, status, msg)
				return
			}
			ctx := context.WithValue(r.Context(), KeyPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func keyErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrKeyRevoked):
		return http.StatusUnauthorized, "API key has been revoked"
	case errors.Is(err, service.ErrKeyExpired):
		return http.StatusUnauthorized, "API key has expired"
	case errors.Is(err, service.ErrKeyExhausted):
		return http.StatusUnauthorized, "API key exceeded its use allowance"
	case errors.Is(err, service.ErrIPNotAllowed):
		return http.StatusForbidden, "Request origin not in the key's IP whitelist"
	case errors.Is(err, service.ErrUserAgentBlocked):
		return http.StatusForbidden, "Client not permitted by the key's user-agent rule"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "API key rate limit exceeded"
	default:
		return http.StatusUnauthorized, "Invalid API key"
	}
}

// GetSession extracts the session principal, or nil when unauthenticated.
func GetSession(ctx context.Context) *service.SessionPrincipal {
	if p, ok := ctx.Value(SessionKey).(*service.SessionPrincipal); ok {
		return p
	}
	return nil
}

// GetKeyPrincipal extracts the API key principal, or nil when absent.
func GetKeyPrincipal(ctx context.Context) *service.KeyPrincipal {
	if p, ok := ctx.Value(KeyPrincipalKey).(*service.KeyPrincipal); ok {
		return p
	}
	return nil
}

// clientIP strips the port from RemoteAddr. RealIP runs earlier in the
// chain, so this is the forwarded address when a proxy supplied one.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Built by hand to avoid an import cycle with the handler package.
	w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":` + strconv.Quote(message) + `}}`))
}
