package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/resumly/resumly/internal/keygen"
	"github.com/resumly/resumly/internal/model"
	"github.com/resumly/resumly/internal/store"
)

// ConfirmPhrase is the literal an operator must type to rotate a key. It
// is a UX safety gate against accidental rotation, not a security control,
// and must be re-entered for every attempt.
const ConfirmPhrase = "rotate"

// Confirms reports whether the typed input satisfies the rotation gate.
// Matching is case-insensitive and ignores surrounding whitespace.
func Confirms(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), ConfirmPhrase)
}

// Rotator replaces a key's secret while preserving its identity, scope,
// and audit trail. At most one rotation per key may be in flight;
// concurrent attempts are rejected with ErrRotationInFlight.
type Rotator struct {
	store *store.Store

	mu       sync.Mutex
	inFlight map[int64]bool
}

// NewRotator creates a rotation controller over the given store.
func NewRotator(st *store.Store) *Rotator {
	return &Rotator{
		store:    st,
		inFlight: make(map[int64]bool),
	}
}

// Rotate generates a new secret for an owned key and swaps it in
// atomically: the store applies hash, prefix, suffix, and the version
// bump in a single update, so the old secret stops validating exactly
// when the new one starts. On any failure the old secret remains valid.
//
// The new plaintext is returned exactly once. confirm must satisfy the
// typed-confirmation gate.
func (r *Rotator) Rotate(ctx context.Context, ownerID, keyID int64, confirm string) (*model.APIKey, string, error) {
	if ownerID == 0 {
		return nil, "", ErrUnauthenticated
	}
	if !Confirms(confirm) {
		return nil, "", ErrConfirmRequired
	}

	if !r.acquire(keyID) {
		return nil, "", ErrRotationInFlight
	}
	defer r.release(keyID)

	key, err := r.store.GetAPIKey(ctx, keyID)
	if err != nil {
		return nil, "", err
	}
	if key.OwnerID != ownerID {
		return nil, "", ErrUnauthorized
	}

	secret, err := keygen.Generate()
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	material := keygen.Derive(secret)

	now := time.Now().UTC()
	next := NextRotation(key.RotationPolicy, now)
	if err := r.store.RotateAPIKey(ctx, keyID, material.Hash, material.Prefix, material.Suffix, next); err != nil {
		// The update did not apply; the old secret is still the valid one.
		return nil, "", fmt.Errorf("rotation failed, existing key unchanged: %w", err)
	}

	key.KeyHash = ""
	key.KeyPrefix = material.Prefix
	key.KeySuffix = material.Suffix
	key.KeyVersion++
	key.NextRotationAt = next
	key.UpdatedAt = now
	return key, secret, nil
}

func (r *Rotator) acquire(keyID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[keyID] {
		return false
	}
	r.inFlight[keyID] = true
	return true
}

func (r *Rotator) release(keyID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, keyID)
}

// NextRotation computes the scheduled rotation date for a policy, counted
// from the creation or last rotation time. Keys with RotationNever have
// no schedule. A key past its date is flagged as due but keeps working
// until actually rotated.
func NextRotation(policy model.RotationPolicy, from time.Time) *time.Time {
	var next time.Time
	switch policy {
	case model.RotationMonthly:
		next = from.AddDate(0, 1, 0)
	case model.RotationQuarterly:
		next = from.AddDate(0, 3, 0)
	case model.RotationYearly:
		next = from.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &next
}
