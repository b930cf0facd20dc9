package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newTestSigner(t *testing.T, clock *fakeClock) *Signer {
	t.Helper()
	s, err := NewSigner(NewKeyring("k1", "super-secret", nil), clock.Now)
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}
	return s
}

func refreshClaims() Claims {
	return Claims{
		Subject:   "user-123",
		TokenID:   "jti-1",
		Type:      TokenRefresh,
		IssuedAt:  t0,
		ExpiresAt: t0.Add(time.Hour),
	}
}

func TestIssueAndValidate_RoundTrip(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: t0}
	s := newTestSigner(t, clock)

	want := refreshClaims()
	tok, err := s.Issue(want)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	got, err := s.Validate(tok)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if got.Subject != want.Subject || got.TokenID != want.TokenID || got.Type != want.Type {
		t.Fatalf("claims mismatch: got %+v want %+v", got, want)
	}
	if !got.IssuedAt.Equal(want.IssuedAt) || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("times mismatch: got %v/%v want %v/%v", got.IssuedAt, got.ExpiresAt, want.IssuedAt, want.ExpiresAt)
	}

	// still valid one second before expiry
	clock.now = t0.Add(time.Hour - time.Second)
	if _, err := s.Validate(tok); err != nil {
		t.Fatalf("expected token valid before expiry, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: t0}
	s := newTestSigner(t, clock)

	tok, err := s.Issue(refreshClaims())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	clock.now = t0.Add(time.Hour + time.Second)
	_, err = s.Validate(tok)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestValidate_AnySignatureBitFlipFails(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t, &fakeClock{now: t0})

	tok, err := s.Issue(refreshClaims())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	parts := strings.Split(tok, ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}

	for i := 0; i < len(sig)*8; i++ {
		mutated := append([]byte(nil), sig...)
		mutated[i/8] ^= 1 << (i % 8)
		bad := parts[0] + "." + parts[1] + "." + base64.RawURLEncoding.EncodeToString(mutated)

		if _, err := s.Validate(bad); !errors.Is(err, common.ErrTokenInvalidSignature) {
			t.Fatalf("bit %d: expected common.ErrTokenInvalidSignature, got %v", i, err)
		}
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	t.Parallel()

	signer := newTestSigner(t, &fakeClock{now: t0})
	other, err := NewSigner(NewKeyring("k1", "another-secret", nil), (&fakeClock{now: t0}).Now)
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}

	tok, err := other.Issue(refreshClaims())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := signer.Validate(tok); !errors.Is(err, common.ErrTokenInvalidSignature) {
		t.Fatalf("expected common.ErrTokenInvalidSignature, got %v", err)
	}
}

func TestValidate_KeyRotation(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: t0}
	old, err := NewSigner(NewKeyring("k1", "old-secret", nil), clock.Now)
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}
	tok, err := old.Issue(refreshClaims())
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	// k1 retired but kept for verification
	rotated, err := NewSigner(NewKeyring("k2", "new-secret", map[string]string{"k1": "old-secret"}), clock.Now)
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}
	if _, err := rotated.Validate(tok); err != nil {
		t.Fatalf("retired key should still verify, got %v", err)
	}

	// k1 dropped from the keyring
	dropped, err := NewSigner(NewKeyring("k2", "new-secret", nil), clock.Now)
	if err != nil {
		t.Fatalf("NewSigner error: %v", err)
	}
	if _, err := dropped.Validate(tok); !errors.Is(err, common.ErrTokenInvalidSignature) {
		t.Fatalf("expected common.ErrTokenInvalidSignature, got %v", err)
	}
}

func TestValidate_Malformed(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t, &fakeClock{now: t0})
	key := []byte("super-secret")

	sign := func(method jwt.SigningMethod, claims jwt.Claims, k any) string {
		tok := jwt.NewWithClaims(method, claims)
		str, err := tok.SignedString(k)
		if err != nil {
			t.Fatalf("SignedString: %v", err)
		}
		return str
	}

	reg := jwt.RegisteredClaims{
		Subject:   "u1",
		ID:        "jti",
		IssuedAt:  jwt.NewNumericDate(t0),
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
	}

	cases := map[string]string{
		"garbage":       "not.a.jwt",
		"empty":         "",
		"alg none":      sign(jwt.SigningMethodNone, jwtClaims{RegisteredClaims: reg, Type: TokenAccess}, jwt.UnsafeAllowNoneSignatureType),
		"hs512":         sign(jwt.SigningMethodHS512, jwtClaims{RegisteredClaims: reg, Type: TokenAccess}, key),
		"missing typ":   sign(jwt.SigningMethodHS256, jwtClaims{RegisteredClaims: reg}, key),
		"unknown typ":   sign(jwt.SigningMethodHS256, jwtClaims{RegisteredClaims: reg, Type: "id"}, key),
		"missing exp":   sign(jwt.SigningMethodHS256, jwtClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", IssuedAt: reg.IssuedAt}, Type: TokenAccess}, key),
		"missing sub":   sign(jwt.SigningMethodHS256, jwtClaims{RegisteredClaims: jwt.RegisteredClaims{ID: "x", IssuedAt: reg.IssuedAt, ExpiresAt: reg.ExpiresAt}, Type: TokenAccess}, key),
		"refresh no id": sign(jwt.SigningMethodHS256, jwtClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u1", IssuedAt: reg.IssuedAt, ExpiresAt: reg.ExpiresAt}, Type: TokenRefresh}, key),
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Validate(tok); !errors.Is(err, common.ErrTokenMalformed) {
				t.Fatalf("expected common.ErrTokenMalformed, got %v", err)
			}
		})
	}
}

func TestValidateType(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t, &fakeClock{now: t0})

	c := refreshClaims()
	c.Type = TokenAccess
	tok, err := s.Issue(c)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := s.ValidateType(tok, TokenAccess); err != nil {
		t.Fatalf("ValidateType access: %v", err)
	}
	if _, err := s.ValidateType(tok, TokenRefresh); !errors.Is(err, common.ErrTokenMalformed) {
		t.Fatalf("expected common.ErrTokenMalformed for wrong type, got %v", err)
	}
}

func TestNewSigner_RequiresActiveKey(t *testing.T) {
	t.Parallel()

	if _, err := NewSigner(Keyring{ActiveID: "k1", Keys: map[string][]byte{}}, nil); err == nil {
		t.Fatalf("expected error for missing active key")
	}
	if _, err := NewSigner(NewKeyring("k1", "", nil), nil); err == nil {
		t.Fatalf("expected error for empty active key")
	}
}

func TestIssue_RejectsIncompleteClaims(t *testing.T) {
	t.Parallel()

	s := newTestSigner(t, &fakeClock{now: t0})
	if _, err := s.Issue(Claims{Type: TokenAccess}); !errors.Is(err, common.ErrTokenMalformed) {
		t.Fatalf("expected common.ErrTokenMalformed, got %v", err)
	}
}
