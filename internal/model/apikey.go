package model

import "time"

// RotationPolicy controls how often a key is expected to be rotated.
// A due rotation flags the key but never deactivates it; expiry and
// rotation-due are independent signals.
type RotationPolicy string

const (
	RotationNever     RotationPolicy = "never"
	RotationMonthly   RotationPolicy = "monthly"
	RotationQuarterly RotationPolicy = "quarterly"
	RotationYearly    RotationPolicy = "yearly"
)

// ValidRotationPolicy reports whether p is a known policy value.
func ValidRotationPolicy(p RotationPolicy) bool {
	switch p {
	case RotationNever, RotationMonthly, RotationQuarterly, RotationYearly:
		return true
	}
	return false
}

// AdminKeyMaxTTL caps the lifetime of admin-scoped keys. Admin keys must
// always carry an expiry no later than creation time plus this interval.
const AdminKeyMaxTTL = 3 * 30 * 24 * time.Hour

// APIKey is one credential granting scoped access to a user's resume data.
// The raw secret is never stored; only a SHA-256 hash and the first/last
// four characters for display are persisted.
type APIKey struct {
	ID      int64  `json:"id" db:"id"`
	OwnerID int64  `json:"owner_id" db:"owner_id"`
	Name    string `json:"name" db:"name"`

	KeyHash   string `json:"-" db:"key_hash"` // SHA-256 hash, never expose
	KeyPrefix string `json:"key_prefix" db:"key_prefix"`
	KeySuffix string `json:"key_suffix" db:"key_suffix"`

	// ResumeID is nil only for admin keys, which see every resume the
	// owner has. Non-admin keys always scope to exactly one resume.
	ResumeID    *int64   `json:"resume_id" db:"resume_id"`
	IsAdmin     bool     `json:"is_admin" db:"is_admin"`
	Permissions []string `json:"permissions"`

	ExpiresAt *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	MaxUses   *int64     `json:"max_uses,omitempty" db:"max_uses"`
	RateLimit int        `json:"rate_limit" db:"rate_limit"` // requests per hour

	IPWhitelist      []string `json:"ip_whitelist,omitempty"`
	UserAgentPattern string   `json:"user_agent_pattern,omitempty" db:"user_agent_pattern"`

	RotationPolicy RotationPolicy `json:"rotation_policy" db:"rotation_policy"`
	NextRotationAt *time.Time     `json:"next_rotation_at,omitempty" db:"next_rotation_at"`
	KeyVersion     int            `json:"key_version" db:"key_version"`

	UseCount    int64      `json:"use_count" db:"use_count"`
	UniqueIPs   int64      `json:"unique_ips" db:"unique_ips"`
	FirstUsedAt *time.Time `json:"first_used_at,omitempty" db:"first_used_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`

	IsRevoked bool      `json:"is_revoked" db:"is_revoked"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// ResumeTitle is joined in by list queries for display; it is not a
	// column on the api_keys table.
	ResumeTitle string `json:"resume_title,omitempty" db:"resume_title"`
}

// IsActive reports whether the key currently validates: not revoked, not
// expired, and not over its use allowance.
func (k *APIKey) IsActive() bool {
	return k.IsActiveAt(time.Now())
}

// IsActiveAt is IsActive evaluated against an explicit clock.
func (k *APIKey) IsActiveAt(now time.Time) bool {
	if k.IsRevoked {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	if k.MaxUses != nil && k.UseCount >= *k.MaxUses {
		return false
	}
	return true
}

// RotationDue reports whether the key's scheduled rotation date has
// passed. A due key keeps validating until it is actually rotated.
func (k *APIKey) RotationDue(now time.Time) bool {
	return k.NextRotationAt != nil && !k.NextRotationAt.After(now)
}

// DisplayKey renders the masked form shown in listings, e.g. "mcp_…ab12".
func (k *APIKey) DisplayKey() string {
	return k.KeyPrefix + "…" + k.KeySuffix
}

// KeyUsage is one analytics row recorded for each authenticated request
// served with a key.
type KeyUsage struct {
	ID        int64     `json:"id" db:"id"`
	KeyID     int64     `json:"key_id" db:"key_id"`
	Operation string    `json:"operation" db:"operation"` // tool name or route
	IP        string    `json:"ip" db:"ip"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
