package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestService(now time.Time) *TokenService {
	svc := NewTokenService("test-secret", time.Hour)
	svc.now = func() time.Time { return now }
	return svc
}

func TestTokenService_IssueVerifyRoundTrip(t *testing.T) {
	svc := newTestService(time.Now())
	want := Identity{ID: 1, Username: "alice", Role: "admin"}

	token, err := svc.Issue(want)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	got, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != want {
		t.Fatalf("Verify() = %+v, want %+v", got, want)
	}
}

func TestTokenService_VerifyRejectsExpired(t *testing.T) {
	issuedAt := time.Now()
	svc := newTestService(issuedAt)

	token, err := svc.Issue(Identity{ID: 1, Username: "alice", Role: "user"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	svc.now = func() time.Time { return issuedAt.Add(59 * time.Minute) }
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("Verify() before expiry error = %v", err)
	}

	svc.now = func() time.Time { return issuedAt.Add(61 * time.Minute) }
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify() after expiry error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_VerifyRejectsForeignSecret(t *testing.T) {
	other := NewTokenService("other-secret", time.Hour)
	token, err := other.Issue(Identity{ID: 1, Username: "alice", Role: "admin"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	svc := NewTokenService("test-secret", time.Hour)
	if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_VerifyRejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	claims := Claims{
		UserID: 1,
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	tests := []struct {
		name   string
		method jwt.SigningMethod
		key    any
	}{
		{name: "none", method: jwt.SigningMethodNone, key: jwt.UnsafeAllowNoneSignatureType},
		{name: "hs512", method: jwt.SigningMethodHS512, key: []byte("test-secret")},
	}

	svc := NewTokenService("test-secret", time.Hour)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(tt.method, claims).SignedString(tt.key)
			if err != nil {
				t.Fatalf("SignedString() error = %v", err)
			}
			if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenService_VerifyRejectsGarbage(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	for _, token := range []string{"", "abc", "a.b.c"} {
		if _, err := svc.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Verify(%q) error = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	svc := NewTokenService("s", 0)
	if svc.ttl != DefaultTokenTTL {
		t.Fatalf("ttl = %v, want %v", svc.ttl, DefaultTokenTTL)
	}
}
