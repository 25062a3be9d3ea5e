package model

import (
	"testing"
	"time"
)

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// TestIsActiveAt exercises all eight combinations of revoked, expiry, and
// max-use states.
func TestIsActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := timePtr(now.Add(-time.Hour))
	future := timePtr(now.Add(time.Hour))

	tests := []struct {
		name    string
		revoked bool
		expires *time.Time
		maxUses *int64
		uses    int64
		want    bool
	}{
		{"clean key", false, nil, nil, 0, true},
		{"revoked", true, nil, nil, 0, false},
		{"expired", false, past, nil, 0, false},
		{"not yet expired", false, future, nil, 0, true},
		{"over max uses", false, nil, int64Ptr(5), 5, false},
		{"under max uses", false, nil, int64Ptr(5), 4, true},
		{"revoked and expired", true, past, nil, 0, false},
		{"expired and over uses", false, past, int64Ptr(1), 1, false},
		{"revoked but otherwise fine", true, future, int64Ptr(5), 0, false},
	}

	for _, tt := range tests {
		k := &APIKey{
			IsRevoked: tt.revoked,
			ExpiresAt: tt.expires,
			MaxUses:   tt.maxUses,
			UseCount:  tt.uses,
		}
		if got := k.IsActiveAt(now); got != tt.want {
			t.Errorf("%s: IsActiveAt = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsActiveExpiryBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	k := &APIKey{ExpiresAt: timePtr(now)}
	// A key expiring exactly now no longer validates.
	if k.IsActiveAt(now) {
		t.Error("key expiring at the evaluation instant should be inactive")
	}
}

func TestRotationDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	k := &APIKey{}
	if k.RotationDue(now) {
		t.Error("key without a rotation date is never due")
	}

	k.NextRotationAt = timePtr(now.Add(-time.Minute))
	if !k.RotationDue(now) {
		t.Error("key past its rotation date should be due")
	}

	// Rotation-due and active are independent signals.
	if !k.IsActiveAt(now) {
		t.Error("a rotation-due key must remain usable")
	}

	k.NextRotationAt = timePtr(now.Add(time.Minute))
	if k.RotationDue(now) {
		t.Error("key before its rotation date should not be due")
	}
}

func TestValidRotationPolicy(t *testing.T) {
	for _, p := range []RotationPolicy{RotationNever, RotationMonthly, RotationQuarterly, RotationYearly} {
		if !ValidRotationPolicy(p) {
			t.Errorf("%q should be valid", p)
		}
	}
	if ValidRotationPolicy("weekly") {
		t.Error("weekly is not in the policy vocabulary")
	}
}

func TestDisplayKey(t *testing.T) {
	k := &APIKey{KeyPrefix: "mcp_", KeySuffix: "ab12"}
	if got := k.DisplayKey(); got != "mcp_…ab12" {
		t.Errorf("DisplayKey = %q", got)
	}
}
