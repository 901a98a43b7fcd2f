package server

import (
	"net/http"

	"telefwd/pkg/domain"
)

func (s *Server) handleStartBot(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	msg, err := s.app.StartBot(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleStopBot(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	msg, err := s.app.StopBot(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	status, err := s.app.GetBotStatus(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTelegramAuth(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		PhoneNumber string `json:"phone_number"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.Authenticate(r.Context(), user, req.PhoneNumber); err != nil {
		s.audit(r, "telegram.authenticate", "fail", "user_id", user.ID)
		writeAppError(w, err)
		return
	}
	s.audit(r, "telegram.authenticate", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Telegram authentication initiated"})
}
