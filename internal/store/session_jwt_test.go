package store

import (
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newHSStore(t *testing.T, revoker TokenRevoker, opts JWTOptions) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore("unit-test-secret", time.Hour, revoker, opts)
	if err != nil {
		t.Fatalf("new jwt session store: %v", err)
	}
	return s
}

func TestJWTSessionStoreRoundTrip(t *testing.T) {
	s := newHSStore(t, nil, JWTOptions{})
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	uid, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}
	if uid != "user-1" {
		t.Fatalf("subject = %q, want user-1", uid)
	}
}

func TestJWTSessionStoreRejectsTamperedToken(t *testing.T) {
	s := newHSStore(t, nil, JWTOptions{})
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, ok, err := s.GetUserIDByToken(tampered); err == nil || ok {
		t.Fatalf("tampered token must fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRejectsWrongSecret(t *testing.T) {
	signing := newHSStore(t, nil, JWTOptions{})
	verify, err := NewJWTSessionStore("different-secret", time.Hour, nil, JWTOptions{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := signing.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := verify.GetUserIDByToken(token); err == nil || ok {
		t.Fatalf("wrong-secret token must fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	signing := newHSStore(t, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-a"})
	verify := newHSStore(t, nil, JWTOptions{Issuer: "issuer-a", Audience: "aud-b"})

	token, err := signing.NewSession("user-claim")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := verify.GetUserIDByToken(token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestJWTSessionStoreRevokesByJTI(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	s := newHSStore(t, revoker, JWTOptions{})

	token, err := s.NewSession("user-revoke")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err == nil || ok {
		t.Fatalf("expected revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRedisRevoker(t *testing.T) {
	redis := miniredis.RunT(t)
	revoker := NewRedisTokenRevoker(redis.Addr(), "")
	s := newHSStore(t, revoker, JWTOptions{})

	token, err := s.NewSession("user-redis")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err != nil || !ok {
		t.Fatalf("token before revoke: ok=%v err=%v", ok, err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err == nil || ok {
		t.Fatalf("redis-revoked token must fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRequiresSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("  ", time.Hour, nil, JWTOptions{}); err == nil {
		t.Fatalf("expected constructor error for empty secret")
	}
}
