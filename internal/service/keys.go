package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/resumly/resumly/internal/keygen"
	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/permission"
	"github.com/resumly/resumly/internal/store"
)

// DefaultRateLimit is applied when a key spec leaves the limit unset.
const DefaultRateLimit = 1000 // requests per hour

// KeySpec is the caller-supplied description of a new API key.
type KeySpec struct {
	Name             string
	ResumeID         *int64
	IsAdmin          bool
	Permissions      []string
	ExpiresAt        *time.Time
	MaxUses          *int64
	RateLimit        int
	IPWhitelist      []string
	UserAgentPattern string
	RotationPolicy   model.RotationPolicy
}

// KeyPatch holds the mutable fields of an existing key. Nil pointers leave
// the field untouched. Scope (resume binding and admin flag) is fixed at
// creation; rotating or re-scoping means issuing a new key.
type KeyPatch struct {
	Name             *string
	Permissions      []string
	ExpiresAt        *time.Time
	ClearExpiresAt   bool
	MaxUses          *int64
	ClearMaxUses     bool
	RateLimit        *int
	IPWhitelist      []string
	UserAgentPattern *string
	RotationPolicy   *model.RotationPolicy
}

// Keys implements the API key lifecycle with ownership enforcement: every
// operation verifies the caller owns the record before touching it.
type Keys struct {
	store *store.Store
}

// NewKeys creates the key service over the given store.
func NewKeys(st *store.Store) *Keys {
	return &Keys{store: st}
}

// Create validates the spec, generates the secret material, and persists a
// new key record. The returned plaintext is the only copy that will ever
// exist; it cannot be retrieved again.
func (s *Keys) Create(ctx context.Context, ownerID int64, spec KeySpec) (*model.APIKey, string, error) {
	if ownerID == 0 {
		return nil, "", ErrUnauthenticated
	}
	if err := s.validateSpec(ctx, ownerID, &spec); err != nil {
		return nil, "", err
	}

	secret, err := keygen.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	material := keygen.Derive(secret)

	now := time.Now().UTC()
	key := &model.APIKey{
		OwnerID:          ownerID,
		Name:             spec.Name,
		KeyHash:          material.Hash,
		KeyPrefix:        material.Prefix,
		KeySuffix:        material.Suffix,
		ResumeID:         spec.ResumeID,
		IsAdmin:          spec.IsAdmin,
		Permissions:      spec.Permissions,
		ExpiresAt:        spec.ExpiresAt,
		MaxUses:          spec.MaxUses,
		RateLimit:        spec.RateLimit,
		IPWhitelist:      spec.IPWhitelist,
		UserAgentPattern: spec.UserAgentPattern,
		RotationPolicy:   spec.RotationPolicy,
		NextRotationAt:   NextRotation(spec.RotationPolicy, now),
		KeyVersion:       1,
	}

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("persist key: %w", err)
	}
	return key, secret, nil
}

// validateSpec normalizes the spec in place and rejects malformed input
// before anything is persisted.
func (s *Keys) validateSpec(ctx context.Context, ownerID int64, spec *KeySpec) error {
	spec.Name = strings.TrimSpace(spec.Name)
	if spec.Name == "" {
		return validationErr("name", "must not be empty")
	}

	// Admin keys satisfy every permission check, so an empty set is fine
	// for them; everything else must carry at least one scope. Persisted
	// sets are normalized so a global scope never coexists with a narrower
	// scope of the same verb.
	if len(spec.Permissions) > 0 || !spec.IsAdmin {
		set, err := permission.ParseSet(spec.Permissions)
		if err != nil {
			return validationErr("permissions", "%v", err)
		}
		spec.Permissions = set.Normalize().Strings()
	}

	if spec.RateLimit < 0 {
		return validationErr("rate_limit", "must be a positive integer")
	}
	if spec.RateLimit == 0 {
		spec.RateLimit = DefaultRateLimit
	}

	if spec.MaxUses != nil && *spec.MaxUses <= 0 {
		return validationErr("max_uses", "must be a positive integer")
	}

	if spec.RotationPolicy == "" {
		spec.RotationPolicy = model.RotationNever
	}
	if !model.ValidRotationPolicy(spec.RotationPolicy) {
		return validationErr("rotation_policy", "unknown policy %q", spec.RotationPolicy)
	}

	if err := validateIPWhitelist(spec.IPWhitelist); err != nil {
		return err
	}
	if spec.UserAgentPattern != "" {
		if _, err := regexp.Compile(spec.UserAgentPattern); err != nil {
			return validationErr("user_agent_pattern", "invalid regexp: %v", err)
		}
	}

	now := time.Now().UTC()
	if spec.IsAdmin {
		// Admin keys see every resume and must expire within three months.
		spec.ResumeID = nil
		latest := now.Add(model.AdminKeyMaxTTL)
		if spec.ExpiresAt == nil || spec.ExpiresAt.After(latest) {
			spec.ExpiresAt = &latest
		}
		return nil
	}

	if spec.ResumeID == nil {
		return validationErr("resume_id", "required for non-admin keys")
	}
	resume, err := s.store.GetResume(ctx, *spec.ResumeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return validationErr("resume_id", "resume %d not found", *spec.ResumeID)
		}
		return fmt.Errorf("look up resume: %w", err)
	}
	if resume.OwnerID != ownerID {
		return ErrUnauthorized
	}
	return nil
}

func validateIPWhitelist(entries []string) error {
	for _, e := range entries {
		if strings.Contains(e, "/") {
			if _, _, err := net.ParseCIDR(e); err != nil {
				return validationErr("ip_whitelist", "invalid CIDR %q", e)
			}
			continue
		}
		if net.ParseIP(e) == nil {
			return validationErr("ip_whitelist", "invalid address %q", e)
		}
	}
	return nil
}

// List returns the caller's keys joined with resume display info. Secret
// material stays out of the result: the hash field is blanked.
func (s *Keys) List(ctx context.Context, ownerID int64) ([]model.APIKey, error) {
	if ownerID == 0 {
		return nil, ErrUnauthenticated
	}
	keys, err := s.store.ListAPIKeys(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// Get returns one key after checking ownership.
func (s *Keys) Get(ctx context.Context, ownerID, id int64) (*model.APIKey, error) {
	key, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	key.KeyHash = ""
	return key, nil
}

// Update applies a patch to an owned key. The patched permission set must
// remain valid and non-empty.
func (s *Keys) Update(ctx context.Context, ownerID, id int64, patch KeyPatch) (*model.APIKey, error) {
	key, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, validationErr("name", "must not be empty")
		}
		key.Name = name
	}
	if patch.Permissions != nil {
		set, err := permission.ParseSet(patch.Permissions)
		if err != nil {
			return nil, validationErr("permissions", "%v", err)
		}
		key.Permissions = set.Normalize().Strings()
	}
	if patch.ClearExpiresAt {
		if key.IsAdmin {
			return nil, validationErr("expires_at", "admin keys must have an expiry")
		}
		key.ExpiresAt = nil
	} else if patch.ExpiresAt != nil {
		exp := *patch.ExpiresAt
		if key.IsAdmin {
			latest := key.CreatedAt.Add(model.AdminKeyMaxTTL)
			if exp.After(latest) {
				exp = latest
			}
		}
		key.ExpiresAt = &exp
	}
	if patch.ClearMaxUses {
		key.MaxUses = nil
	} else if patch.MaxUses != nil {
		if *patch.MaxUses <= 0 {
			return nil, validationErr("max_uses", "must be a positive integer")
		}
		key.MaxUses = patch.MaxUses
	}
	if patch.RateLimit != nil {
		if *patch.RateLimit <= 0 {
			return nil, validationErr("rate_limit", "must be a positive integer")
		}
		key.RateLimit = *patch.RateLimit
	}
	if patch.IPWhitelist != nil {
		if err := validateIPWhitelist(patch.IPWhitelist); err != nil {
			return nil, err
		}
		key.IPWhitelist = patch.IPWhitelist
	}
	if patch.UserAgentPattern != nil {
		if *patch.UserAgentPattern != "" {
			if _, err := regexp.Compile(*patch.UserAgentPattern); err != nil {
				return nil, validationErr("user_agent_pattern", "invalid regexp: %v", err)
			}
		}
		key.UserAgentPattern = *patch.UserAgentPattern
	}
	if patch.RotationPolicy != nil {
		if !model.ValidRotationPolicy(*patch.RotationPolicy) {
			return nil, validationErr("rotation_policy", "unknown policy %q", *patch.RotationPolicy)
		}
		key.RotationPolicy = *patch.RotationPolicy
		key.NextRotationAt = NextRotation(key.RotationPolicy, time.Now().UTC())
	}

	if err := s.store.UpdateAPIKey(ctx, key); err != nil {
		return nil, err
	}
	key.KeyHash = ""
	return key, nil
}

// Revoke deactivates a key irreversibly. The record stays for audit;
// Delete removes it.
func (s *Keys) Revoke(ctx context.Context, ownerID, id int64) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	return s.store.RevokeAPIKey(ctx, id)
}

// Delete removes the record entirely.
func (s *Keys) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return err
	}
	return s.store.DeleteAPIKey(ctx, id)
}

// Usage returns recent usage rows for an owned key.
func (s *Keys) Usage(ctx context.Context, ownerID, id int64, limit int) ([]model.KeyUsage, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.ListKeyUsage(ctx, id, limit)
}

// owned fetches a key and enforces the ownership check shared by every
// guarded mutation.
func (s *Keys) owned(ctx context.Context, ownerID, id int64) (*model.APIKey, error) {
	if ownerID == 0 {
		return nil, ErrUnauthenticated
	}
	key, err := s.store.GetAPIKey(ctx, id)
	if err != nil {
		return nil, err
	}
	if key.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	return key, nil
}
