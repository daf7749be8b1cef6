package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t testing.TB, claims jwt.RegisteredClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func expiringIn(d time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   "u1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
	}
}

func TestExpiresAt(t *testing.T) {
	secret := "client-never-knows-this"
	now := time.Now()

	fresh := signToken(t, expiringIn(time.Hour), secret)
	stale := signToken(t, expiringIn(-time.Hour), secret)
	noExp := signToken(t, jwt.RegisteredClaims{Subject: "u1"}, secret)

	tests := []struct {
		name        string
		token       string
		wantOK      bool
		wantExpired bool
	}{
		{name: "fresh jwt", token: fresh, wantOK: true},
		{name: "expired jwt", token: stale, wantOK: true, wantExpired: true},
		{name: "jwt without exp", token: noExp, wantOK: false},
		{name: "opaque token", token: "b0742345623214e7f5aac75a", wantOK: false},
		{name: "empty", token: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, ok := ExpiresAt(tt.token)
			if ok != tt.wantOK {
				t.Fatalf("ExpiresAt() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && exp.IsZero() {
				t.Error("ExpiresAt() returned zero time with ok")
			}
			if got := Expired(tt.token, now); got != tt.wantExpired {
				t.Errorf("Expired() = %v, want %v", got, tt.wantExpired)
			}
		})
	}
}

func TestExpired_IgnoresSignature(t *testing.T) {
	token := signToken(t, expiringIn(-time.Minute), "server-side-secret")
	if !Expired(token, time.Now()) {
		t.Error("Expired() = false for a token signed with an unknown secret")
	}
}

func BenchmarkExpired(b *testing.B) {
	token := signToken(b, expiringIn(15*time.Minute), "benchmark-secret-key")
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if Expired(token, now) {
			b.Fatal("Expired() = true for a fresh token")
		}
	}
}
