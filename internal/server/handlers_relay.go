package server

import (
	"net/http"
	"time"

	"telefwd/pkg/domain"
)

// handleRelayConfirm receives the relay's report of the actual session
// state after a start or stop command.
func (s *Server) handleRelayConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		UserID string `json:"user_id"`
		State  string `json:"state"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := s.app.ConfirmRelayState(r.Context(), req.UserID, req.State); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleRelayLog ingests one forwarding outcome from the relay.
func (s *Server) handleRelayLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		UserID          string    `json:"user_id"`
		RuleID          string    `json:"rule_id"`
		SourceMessageID int64     `json:"source_message_id"`
		TargetMessageID int64     `json:"target_message_id"`
		Status          string    `json:"status"`
		ErrorMessage    string    `json:"error_message"`
		Timestamp       time.Time `json:"timestamp"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := s.app.RecordForwardingOutcome(r.Context(), domain.ForwardingLog{
		UserID:          req.UserID,
		RuleID:          req.RuleID,
		SourceMessageID: req.SourceMessageID,
		TargetMessageID: req.TargetMessageID,
		Status:          domain.ForwardStatus(req.Status),
		ErrorMessage:    req.ErrorMessage,
		CreatedAt:       req.Timestamp,
	}); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}
