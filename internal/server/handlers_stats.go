package server

import (
	"net/http"
	"strconv"

	"telefwd/internal/app"
	"telefwd/pkg/domain"
)

func queryInt(r *http.Request, key string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return v
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := s.app.Overview(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatsLogs(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	page, err := s.app.Logs(r.Context(), user, app.LogsQuery{
		Page:   queryInt(r, "page"),
		Limit:  queryInt(r, "limit"),
		Status: domain.ForwardStatus(r.URL.Query().Get("status_filter")),
		RuleID: r.URL.Query().Get("rule_id"),
		Days:   queryInt(r, "days"),
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	analytics, err := s.app.GetAnalytics(r.Context(), user, queryInt(r, "days"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	perf, err := s.app.GetPerformance(r.Context(), user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Server) handleLogCleanup(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	res, err := s.app.CleanupLogs(r.Context(), user, queryInt(r, "days_to_keep"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
