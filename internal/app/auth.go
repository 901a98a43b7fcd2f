package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

// RegisterInput holds the registration payload.
type RegisterInput struct {
	Email          string
	Username       string
	TelegramUserID int64
}

// Register creates a new active user and issues a session token.
func (a *App) Register(ctx context.Context, in RegisterInput) (domain.User, string, error) {
	_ = ctx
	email := strings.TrimSpace(strings.ToLower(in.Email))
	username := strings.TrimSpace(in.Username)
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, "", invalid("a valid email is required")
	}
	if username == "" {
		return domain.User{}, "", invalid("username is required")
	}

	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", internal("registration failed", fmt.Errorf("check email: %w", err))
	}
	if taken {
		return domain.User{}, "", conflict("Email already registered")
	}
	taken, err = a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, "", internal("registration failed", fmt.Errorf("check username: %w", err))
	}
	if taken {
		return domain.User{}, "", conflict("Username already taken")
	}

	ts := now()
	user := domain.User{
		ID:             store.NewID(),
		Email:          email,
		Username:       username,
		TelegramUserID: in.TelegramUserID,
		IsActive:       true,
		CreatedAt:      ts,
		UpdatedAt:      ts,
	}
	if err := a.store.SaveUser(user); err != nil {
		// The unique indexes close the race between the checks above and
		// this insert.
		if errors.Is(err, store.ErrDuplicate) {
			return domain.User{}, "", conflict("Email or username already taken")
		}
		return domain.User{}, "", internal("registration failed", fmt.Errorf("save user: %w", err))
	}

	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", internal("registration failed", fmt.Errorf("issue token: %w", err))
	}
	return user, token, nil
}

// Login issues a session token for an existing active user. There is no
// password in this design; possession of the email is the whole credential
// (see DESIGN.md for the recorded decision).
func (a *App) Login(ctx context.Context, email string) (domain.User, string, error) {
	_ = ctx
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", internal("login failed", fmt.Errorf("fetch user: %w", err))
	}
	if !ok || !user.IsActive {
		return domain.User{}, "", unauthorized("Invalid email or user not found")
	}

	user.UpdatedAt = now()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", internal("login failed", fmt.Errorf("touch user: %w", err))
	}

	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", internal("login failed", fmt.Errorf("issue token: %w", err))
	}
	return user, token, nil
}

// UserFromToken resolves a bearer token to an active user. Any verification
// failure resolves to "no user" rather than an error: the gate fails closed.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	if !user.IsActive {
		return domain.User{}, false
	}
	return user, true
}

// RefreshToken issues a fresh session token for the authenticated user.
func (a *App) RefreshToken(user domain.User) (string, error) {
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return "", internal("token refresh failed", err)
	}
	return token, nil
}

// Logout revokes the presented token until it would have expired.
func (a *App) Logout(token string) error {
	if err := a.sessions.DeleteSession(token); err != nil {
		return internal("logout failed", err)
	}
	return nil
}
