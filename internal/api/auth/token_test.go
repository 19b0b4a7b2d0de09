package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestService(t *testing.T, secret string, clock *fakeClock) *TokenService {
	t.Helper()
	svc, err := NewTokenService(secret, "HS256", time.Hour, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	return svc
}

func TestTokenService_ValidUntilExpiry(t *testing.T) {
	issued := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: issued}
	svc := newTestService(t, "secret", clock)

	token, claims, err := svc.Issue("user-1", map[string]any{"email": "a@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !claims.ExpiresAt.Time.Equal(issued.Add(time.Hour)) {
		t.Fatalf("exp must equal iat + ttl, got %s", claims.ExpiresAt.Time)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be set")
	}

	for _, offset := range []time.Duration{0, 30 * time.Minute, time.Hour - time.Second} {
		clock.t = issued.Add(offset)
		got, err := svc.Verify(token)
		if err != nil {
			t.Fatalf("verify at +%s: %v", offset, err)
		}
		if got.Subject != "user-1" || got.Email != "a@example.com" {
			t.Fatalf("unexpected claims: %+v", got)
		}
	}

	clock.t = issued.Add(time.Hour)
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken at expiry, got %v", err)
	}
}

func TestTokenService_ForeignSecret(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	token, _, err := newTestService(t, "secret-a", clock).Issue("user-1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := newTestService(t, "secret-b", clock).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenService_RejectsOtherAlgorithm(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	hs512, err := NewTokenService("secret", "HS512", time.Hour, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new token service: %v", err)
	}
	token, _, err := hs512.Issue("user-1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := newTestService(t, "secret", clock).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for HS512 token, got %v", err)
	}
}

func TestTokenService_MissingSubject(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	svc := newTestService(t, "secret", clock)
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Minute))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, _, err := svc.Issue("", nil); err == nil {
		t.Fatalf("expected issue to reject empty subject")
	}
}

func TestTokenService_Malformed(t *testing.T) {
	svc := newTestService(t, "secret", &fakeClock{t: time.Now()})
	for _, token := range []string{"", "abc", strings.Repeat("x.", 2) + "y"} {
		if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}

func TestNewTokenService_Validation(t *testing.T) {
	if _, err := NewTokenService("", "HS256", time.Hour); err == nil {
		t.Fatalf("expected empty secret error")
	}
	if _, err := NewTokenService("s", "RS256", time.Hour); err == nil {
		t.Fatalf("expected unsupported algorithm error")
	}
	if _, err := NewTokenService("s", "HS256", 0); err == nil {
		t.Fatalf("expected ttl error")
	}
}

func TestTokenService_ExtraClaimsRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	svc := newTestService(t, "secret", clock)

	token, _, err := svc.Issue("user-1", map[string]any{
		"email": "a@example.com",
		"role":  "mentor",
		"level": 3,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Subject != "user-1" || got.Email != "a@example.com" {
		t.Fatalf("unexpected claims: %+v", got)
	}
	if got.Extra["role"] != "mentor" || got.Extra["level"] != float64(3) {
		t.Fatalf("expected extra claims to round-trip, got %v", got.Extra)
	}
	if _, ok := got.Extra["sub"]; ok {
		t.Fatalf("registered claims must not leak into Extra: %v", got.Extra)
	}
}

func TestTokenService_ReservedClaimsRejected(t *testing.T) {
	svc := newTestService(t, "secret", &fakeClock{t: time.Now()})
	for _, name := range []string{"sub", "iat", "exp", "jti"} {
		if _, _, err := svc.Issue("user-1", map[string]any{name: "x"}); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	if _, _, err := svc.Issue("user-1", map[string]any{"email": 42}); err == nil {
		t.Fatalf("expected non-string email to be rejected")
	}
}

func TestTokenService_SubSecondIssueTime(t *testing.T) {
	// iat is encoded in whole seconds; validity runs from the encoded iat
	issued := time.Date(2024, 3, 10, 12, 0, 0, 900_000_000, time.UTC)
	clock := &fakeClock{t: issued}
	svc := newTestService(t, "secret", clock)

	token, claims, err := svc.Issue("user-1", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	iat := claims.IssuedAt.Time
	if !iat.Equal(issued.Truncate(time.Second)) {
		t.Fatalf("expected iat truncated to the second, got %s", iat)
	}

	clock.t = iat.Add(time.Hour - time.Millisecond)
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("verify just before iat+ttl: %v", err)
	}
	clock.t = iat.Add(time.Hour)
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken at iat+ttl, got %v", err)
	}
}
