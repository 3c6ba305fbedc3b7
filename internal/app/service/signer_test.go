package service

import (
	"testing"
	"time"

	"github.com/lumenlearn/growthloop/internal/app/model"
)

func TestSigner_SignVerifyRoundTrip(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	expires := time.Now().Add(7 * 24 * time.Hour).Truncate(time.Second)
	params := map[string]string{"subject": "algebra", "deck_id": "d42"}

	sig, err := s.Sign("Ab3xYz9Qw1", expires, "u1", model.LoopBuddyChallenge, params)
	if err != nil {
		t.Fatalf("Sign returned error: %v", err)
	}
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}

	if !s.Verify(sig, "Ab3xYz9Qw1", expires, "u1", model.LoopBuddyChallenge, params) {
		t.Fatal("expected signature to verify")
	}
}

func TestSigner_ParamOrderDoesNotMatter(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	expires := time.Now().Add(time.Hour).Truncate(time.Second)

	a := map[string]string{"subject": "algebra", "deck_id": "d42", "grade": "8"}
	b := map[string]string{"grade": "8", "deck_id": "d42", "subject": "algebra"}

	sigA, err := s.Sign("code123456", expires, "u1", model.LoopCelebrate, a)
	if err != nil {
		t.Fatalf("Sign a: %v", err)
	}
	sigB, err := s.Sign("code123456", expires, "u1", model.LoopCelebrate, b)
	if err != nil {
		t.Fatalf("Sign b: %v", err)
	}
	if sigA != sigB {
		t.Fatal("expected identical signatures regardless of param insertion order")
	}
}

func TestSigner_FlippedFieldsFailVerification(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	params := map[string]string{"subject": "algebra"}

	sig, err := s.Sign("code123456", expires, "u1", model.LoopBuddyChallenge, params)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	cases := []struct {
		name   string
		verify func() bool
	}{
		{"code", func() bool {
			return s.Verify(sig, "code999999", expires, "u1", model.LoopBuddyChallenge, params)
		}},
		{"expiry", func() bool {
			return s.Verify(sig, "code123456", expires.Add(time.Second), "u1", model.LoopBuddyChallenge, params)
		}},
		{"actor", func() bool {
			return s.Verify(sig, "code123456", expires, "u2", model.LoopBuddyChallenge, params)
		}},
		{"loop", func() bool {
			return s.Verify(sig, "code123456", expires, "u1", model.LoopCelebrate, params)
		}},
		{"params", func() bool {
			return s.Verify(sig, "code123456", expires, "u1", model.LoopBuddyChallenge, map[string]string{"subject": "geometry"})
		}},
	}
	for _, tc := range cases {
		if tc.verify() {
			t.Errorf("expected verification to fail with flipped %s", tc.name)
		}
	}
}

func TestSigner_MissingSecret(t *testing.T) {
	s := NewSigner(nil)
	expires := time.Now().Add(time.Hour)

	if _, err := s.Sign("code123456", expires, "u1", model.LoopBuddyChallenge, nil); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}

	// Verify must report false, never error, when unsigned operation is impossible.
	if s.Verify("anything", "code123456", expires, "u1", model.LoopBuddyChallenge, nil) {
		t.Fatal("expected Verify to fail without a secret")
	}
}

func TestSigner_CanonicalParamSeparators(t *testing.T) {
	s := NewSigner([]byte("test-secret"))
	expires := time.Now().Add(time.Hour).Truncate(time.Second)

	// Maps with different key/value splits must not canonicalize identically.
	a := map[string]string{"ab": "c"}
	b := map[string]string{"a": "bc"}

	sigA, _ := s.Sign("code123456", expires, "u1", model.LoopStudyGroup, a)
	sigB, _ := s.Sign("code123456", expires, "u1", model.LoopStudyGroup, b)
	if sigA == sigB {
		t.Fatal("expected distinct signatures for distinct param maps")
	}
}
