package server

import (
	"net/http"

	"telefwd/internal/app"
	"telefwd/internal/util"
	"telefwd/pkg/domain"
)

type authResponse struct {
	User        domain.User `json:"user"`
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.registerLimiter != nil && !s.registerLimiter.Allow(util.ClientIP(r)) {
		s.audit(r, "auth.register", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req struct {
		Email          string `json:"email"`
		Username       string `json:"username"`
		TelegramUserID int64  `json:"telegram_user_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := s.app.Register(r.Context(), app.RegisterInput{
		Email:          req.Email,
		Username:       req.Username,
		TelegramUserID: req.TelegramUserID,
	})
	if err != nil {
		s.audit(r, "auth.register", "fail", "reason", app.Message(err))
		writeAppError(w, err)
		return
	}
	s.audit(r, "auth.register", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{User: user, AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.loginLimiter != nil && !s.loginLimiter.Allow(util.ClientIP(r)) {
		s.audit(r, "auth.login", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, token, err := s.app.Login(r.Context(), req.Email)
	if err != nil {
		s.audit(r, "auth.login", "fail")
		writeAppError(w, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{User: user, AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, err := s.app.RefreshToken(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{User: user, AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeAppError(w, err)
		return
	}
	s.audit(r, "auth.logout", "success")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}
