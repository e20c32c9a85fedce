package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		ttl     time.Duration
		wantErr bool
		wantTTL time.Duration
	}{
		{"short secret", "short", time.Hour, true, 0},
		{"exactly 16 chars", "this-is-16-chars", time.Hour, false, time.Hour},
		{"zero ttl uses default", "this-is-16-chars", 0, false, DefaultTokenTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, err := NewTokenService(tt.secret, tt.ttl)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTokenService() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && ts.TTL() != tt.wantTTL {
				t.Errorf("TTL() = %v, want %v", ts.TTL(), tt.wantTTL)
			}
		})
	}
}

// =========================================================================
// GENERATE / VALIDATE TESTS
// =========================================================================

func TestGenerateValidateRoundTrip(t *testing.T) {
	ts := newTestTokenService(t)

	for _, name := range []string{"Alex", "alex", "Jordan Lee"} {
		token, err := ts.Generate(name)
		if err != nil {
			t.Fatalf("Generate(%q) error = %v", name, err)
		}
		if strings.Count(token, ".") != 2 {
			t.Errorf("Generate(%q) = %q, want header.payload.signature", name, token)
		}

		got, err := ts.Validate(token)
		if err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if got != name {
			t.Errorf("Validate() = %q, want %q", got, name)
		}
	}
}

func TestGenerateDifferentUsersGetDifferentTokens(t *testing.T) {
	ts := newTestTokenService(t)

	a, _ := ts.Generate("Alex")
	b, _ := ts.Generate("Jordan")
	if a == b {
		t.Error("Generate() returned identical tokens for different users")
	}
}

func TestValidateRejects(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	valid, _ := ts.Generate("Alex")
	expired, _ := ts.GenerateWithDuration("Alex", -time.Second)
	foreign, _ := other.Generate("Alex")
	noSubject, _ := ts.Generate("")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
		{"expired", expired},
		{"tampered signature", valid[:len(valid)-3] + "xxx"},
		{"signed with another secret", foreign},
		{"no subject", noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Validate(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
