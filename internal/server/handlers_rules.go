package server

import (
	"net/http"
	"strings"

	"telefwd/internal/app"
	"telefwd/pkg/domain"
)

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodGet:
		activeOnly := r.URL.Query().Get("active_only") == "true"
		rules, err := s.app.ListRules(r.Context(), user, activeOnly)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if rules == nil {
			rules = []domain.ForwardingRule{}
		}
		writeJSON(w, http.StatusOK, rules)
	case http.MethodPost:
		var req struct {
			SourceChannelID string   `json:"source_channel_id"`
			TargetChannelID string   `json:"target_channel_id"`
			FilterKeywords  []string `json:"filter_keywords"`
			ExcludeKeywords []string `json:"exclude_keywords"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		rule, err := s.app.CreateRule(r.Context(), user, app.RuleInput{
			SourceChannelID: req.SourceChannelID,
			TargetChannelID: req.TargetChannelID,
			FilterKeywords:  req.FilterKeywords,
			ExcludeKeywords: req.ExcludeKeywords,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	default:
		methodNotAllowed(w)
	}
}

// /forwarding-rules/{id}
func (s *Server) handleRuleByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/forwarding-rules/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rule, err := s.app.GetRule(r.Context(), user, id)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	case http.MethodPut:
		var req struct {
			SourceChannelID *string   `json:"source_channel_id"`
			TargetChannelID *string   `json:"target_channel_id"`
			FilterKeywords  *[]string `json:"filter_keywords"`
			ExcludeKeywords *[]string `json:"exclude_keywords"`
			IsActive        *bool     `json:"is_active"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		rule, err := s.app.UpdateRule(r.Context(), user, id, app.RulePatch{
			SourceChannelID: req.SourceChannelID,
			TargetChannelID: req.TargetChannelID,
			FilterKeywords:  req.FilterKeywords,
			ExcludeKeywords: req.ExcludeKeywords,
			IsActive:        req.IsActive,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	case http.MethodDelete:
		if err := s.app.DeleteRule(r.Context(), user, id); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Forwarding rule deleted"})
	default:
		methodNotAllowed(w)
	}
}
