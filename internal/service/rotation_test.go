package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resumly/resumly/internal/keygen"
	"github.com/resumly/resumly/internal/model"
)

func TestConfirms(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"rotate", true},
		{"ROTATE", true},
		{"  Rotate \n", true},
		{"", false},
		{"rotat", false},
		{"yes", false},
	}
	for _, tc := range cases {
		if got := Confirms(tc.input); got != tc.want {
			t.Errorf("Confirms(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestRotate(t *testing.T) {
	s := newTestStore(t)
	keys := NewKeys(s)
	rotator := NewRotator(s)
	ctx := context.Background()

	user := newTestUser(t, s, "ada@example.com")
	resume := newTestResume(t, s, user.ID, "ada")
	key, oldSecret, err := keys.Create(ctx, user.ID, KeySpec{
		Name:        "k",
		ResumeID:    &resume.ID,
		Permissions: []string{"resume:read"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rotated, newSecret, err := rotator.Rotate(ctx, user.ID, key.ID, "rotate")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if newSecret == oldSecret {
		t.Fatal("rotation returned the old secret")
	}
	if rotated.KeyVersion != 2 {
		t.Errorf("got version %d, want 2", rotated.KeyVersion)
	}

	// The old secret stops validating exactly when the new one starts.
	if _, err := s.GetAPIKeyByHash(ctx, keygen.Hash(oldSecret)); err == nil {
		t.Error("old secret still resolves after rotation")
	}
	got, err := s.GetAPIKeyByHash(ctx, keygen.Hash(newSecret))
	if err != nil {
		t.Fatalf("new secret does not resolve: %v", err)
	}

	// Everything but the secret material survives.
	if got.ID != key.ID || got.Name != key.Name {
		t.Error("rotation changed the key identity")
	}
	if got.ResumeID == nil || *got.ResumeID != resume.ID {
		t.Error("rotation changed the resume binding")
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "resume:read" {
		t.Errorf("rotation changed permissions: %v", got.Permissions)
	}
}

func TestRotateTwice(t *testing.T) {
	s := newTestStore(t)
	keys := NewKeys(s)
	rotator := NewRotator(s)
	ctx := context.Background()

	user := newTestUser(t, s, "ada@example.com")
	resume := newTestResume(t, s, user.ID, "ada")
	key, first, err := keys.Create(ctx, user.ID, KeySpec{
		Name:        "k",
		ResumeID:    &resume.ID,
		Permissions: []string{"resume:read"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Each rotation bumps the version by one and retires the secret it
	// replaced, so two rotations leave exactly one live secret.
	_, second, err := rotator.Rotate(ctx, user.ID, key.ID, "rotate")
	if err != nil {
		t.Fatalf("first Rotate: %v", err)
	}
	rotated, third, err := rotator.Rotate(ctx, user.ID, key.ID, "rotate")
	if err != nil {
		t.Fatalf("second Rotate: %v", err)
	}

	if rotated.KeyVersion != 3 {
		t.Errorf("got version %d, want 3", rotated.KeyVersion)
	}
	if second == first || third == second || third == first {
		t.Error("rotation reissued an earlier secret")
	}

	for i, dead := range []string{first, second} {
		if _, err := s.GetAPIKeyByHash(ctx, keygen.Hash(dead)); err == nil {
			t.Errorf("secret %d still resolves after two rotations", i+1)
		}
	}
	got, err := s.GetAPIKeyByHash(ctx, keygen.Hash(third))
	if err != nil {
		t.Fatalf("current secret does not resolve: %v", err)
	}
	if got.ID != key.ID {
		t.Error("rotation changed the key identity")
	}
}

func TestRotateConfirmGate(t *testing.T) {
	s := newTestStore(t)
	keys := NewKeys(s)
	rotator := NewRotator(s)
	ctx := context.Background()

	user := newTestUser(t, s, "ada@example.com")
	resume := newTestResume(t, s, user.ID, "ada")
	key, secret, err := keys.Create(ctx, user.ID, KeySpec{
		Name: "k", ResumeID: &resume.ID, Permissions: []string{"read"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, _, err := rotator.Rotate(ctx, user.ID, key.ID, "yes"); !errors.Is(err, ErrConfirmRequired) {
		t.Errorf("got %v, want ErrConfirmRequired", err)
	}

	// A refused confirmation leaves the existing secret valid.
	if _, err := s.GetAPIKeyByHash(ctx, keygen.Hash(secret)); err != nil {
		t.Errorf("old secret invalidated without confirmation: %v", err)
	}

	stranger := newTestUser(t, s, "eve@example.com")
	if _, _, err := rotator.Rotate(ctx, stranger.ID, key.ID, "rotate"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("got %v, want ErrUnauthorized", err)
	}
}

func TestRotateInFlight(t *testing.T) {
	s := newTestStore(t)
	rotator := NewRotator(s)

	if !rotator.acquire(7) {
		t.Fatal("first acquire must succeed")
	}
	if rotator.acquire(7) {
		t.Error("second acquire on the same key must fail")
	}
	if !rotator.acquire(8) {
		t.Error("acquire on a different key must succeed")
	}
	rotator.release(7)
	if !rotator.acquire(7) {
		t.Error("acquire after release must succeed")
	}
}

func TestRotateSchedule(t *testing.T) {
	s := newTestStore(t)
	keys := NewKeys(s)
	rotator := NewRotator(s)
	ctx := context.Background()

	user := newTestUser(t, s, "ada@example.com")
	resume := newTestResume(t, s, user.ID, "ada")
	key, _, err := keys.Create(ctx, user.ID, KeySpec{
		Name:           "k",
		ResumeID:       &resume.ID,
		Permissions:    []string{"read"},
		RotationPolicy: model.RotationMonthly,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if key.NextRotationAt == nil {
		t.Fatal("monthly policy must schedule a rotation")
	}

	rotated, _, err := rotator.Rotate(ctx, user.ID, key.ID, "rotate")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if rotated.NextRotationAt == nil {
		t.Fatal("rotation must reschedule the next date")
	}
	want := time.Now().UTC().AddDate(0, 1, 0)
	diff := rotated.NextRotationAt.Sub(want)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("next rotation %v, want about %v", rotated.NextRotationAt, want)
	}
}

func TestNextRotation(t *testing.T) {
	from := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		policy model.RotationPolicy
		want   *time.Time
	}{
		{model.RotationNever, nil},
		{model.RotationMonthly, timePtr(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC))},
		{model.RotationQuarterly, timePtr(time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC))},
		{model.RotationYearly, timePtr(time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC))},
	}
	for _, tc := range cases {
		got := NextRotation(tc.policy, from)
		switch {
		case tc.want == nil && got != nil:
			t.Errorf("%s: got %v, want nil", tc.policy, got)
		case tc.want != nil && (got == nil || !got.Equal(*tc.want)):
			t.Errorf("%s: got %v, want %v", tc.policy, got, tc.want)
		}
	}
}

func timePtr(t time.Time) *time.Time { return &t }
