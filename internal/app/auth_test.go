package app

import (
	"context"
	"testing"
)

func TestRegisterRejectsDuplicateEmailAndUsername(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	user, token, err := ta.app.Register(ctx, RegisterInput{Email: "a@example.com", Username: "alice", TelegramUserID: 1})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if token == "" {
		t.Fatal("expected a session token on register")
	}
	if !user.IsActive {
		t.Fatal("new user should be active")
	}

	_, _, err = ta.app.Register(ctx, RegisterInput{Email: "a@example.com", Username: "other"})
	wantKind(t, err, KindConflict)

	_, _, err = ta.app.Register(ctx, RegisterInput{Email: "b@example.com", Username: "alice"})
	wantKind(t, err, KindConflict)
}

func TestLoginUnknownOrInactiveUserIsUnauthorized(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	_, _, err := ta.app.Login(ctx, "nobody@example.com")
	wantKind(t, err, KindUnauthorized)

	user := ta.registerUser(t, "c@example.com", "carol")
	user.IsActive = false
	if err := ta.store.SaveUser(user); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}
	_, _, err = ta.app.Login(ctx, "c@example.com")
	wantKind(t, err, KindUnauthorized)
}

func TestLoginNormalizesEmailAndTouchesUpdatedAt(t *testing.T) {
	ta := newTestApp(t)
	registered := ta.registerUser(t, "d@example.com", "dave")

	user, token, err := ta.app.Login(context.Background(), "  D@Example.COM ")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatal("expected a session token on login")
	}
	if user.ID != registered.ID {
		t.Fatalf("logged in as wrong user: %s != %s", user.ID, registered.ID)
	}
	if !user.UpdatedAt.After(registered.UpdatedAt) {
		t.Fatal("login should touch updated_at")
	}
}

func TestUserFromTokenRoundTripAndLogoutRevocation(t *testing.T) {
	ta := newTestApp(t)
	registered := ta.registerUser(t, "e@example.com", "erin")

	_, token, err := ta.app.Login(context.Background(), "e@example.com")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	got, ok := ta.app.UserFromToken(token)
	if !ok || got.ID != registered.ID {
		t.Fatalf("token did not resolve to user: ok=%v id=%s", ok, got.ID)
	}

	if _, ok := ta.app.UserFromToken("not-a-token"); ok {
		t.Fatal("garbage token must not resolve")
	}

	if err := ta.app.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := ta.app.UserFromToken(token); ok {
		t.Fatal("revoked token must not resolve")
	}
}
