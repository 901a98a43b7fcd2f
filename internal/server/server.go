package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"telefwd/internal/app"
	"telefwd/internal/ratelimit"
	"telefwd/internal/util"
	"telefwd/pkg/domain"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App

	// RelaySecret authorizes the relay's internal callbacks. Empty disables
	// the internal endpoints.
	RelaySecret string

	// Redis for the auth rate limiters. Empty disables rate limiting
	// (tests, local dev without redis).
	RedisAddr     string
	RedisPassword string

	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
}

// Server exposes the HTTP API.
type Server struct {
	app         *app.App
	mux         *http.ServeMux
	relaySecret string

	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{
		app:         cfg.App,
		mux:         http.NewServeMux(),
		relaySecret: strings.TrimSpace(cfg.RelaySecret),
	}
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		registerLimit := cfg.RegisterRateLimitPerMinute
		if registerLimit <= 0 {
			registerLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			prefix := "telefwd:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		var err error
		if s.registerLimiter, err = newLimiter("register", registerLimit); err != nil {
			return nil, err
		}
		if s.loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))
	s.mux.Handle("/auth/refresh", s.authenticated(s.handleRefresh))
	s.mux.HandleFunc("/auth/logout", s.handleLogout)

	// channels
	s.mux.Handle("/channels", s.authenticated(s.handleChannels))
	s.mux.Handle("/channels/available", s.authenticated(s.handleAvailableChannels))
	s.mux.Handle("/channels/", s.authenticated(s.handleChannelByID))

	// forwarding rules
	s.mux.Handle("/forwarding-rules", s.authenticated(s.handleRules))
	s.mux.Handle("/forwarding-rules/", s.authenticated(s.handleRuleByID))

	// telegram bot
	s.mux.Handle("/telegram/start-bot", s.authenticated(s.handleStartBot))
	s.mux.Handle("/telegram/stop-bot", s.authenticated(s.handleStopBot))
	s.mux.Handle("/telegram/bot-status", s.authenticated(s.handleBotStatus))
	s.mux.Handle("/telegram/authenticate", s.authenticated(s.handleTelegramAuth))
	s.mux.Handle("/telegram/channels/available", s.authenticated(s.handleAvailableChannels))

	// subscriptions
	s.mux.Handle("/subscription/create", s.authenticated(s.handleSubscriptionCreate))
	s.mux.Handle("/subscription/cancel", s.authenticated(s.handleSubscriptionCancel))
	s.mux.Handle("/subscription/status", s.authenticated(s.handleSubscriptionStatus))
	s.mux.HandleFunc("/subscription/plans", s.handlePlans)
	s.mux.Handle("/subscription/retry-payment", s.authenticated(s.handleRetryPayment))
	s.mux.HandleFunc("/subscription/webhook", s.handleWebhook)

	// stats
	s.mux.Handle("/stats", s.authenticated(s.handleStats))
	s.mux.Handle("/stats/logs", s.authenticated(s.handleStatsLogs))
	s.mux.Handle("/stats/logs/cleanup", s.authenticated(s.handleLogCleanup))
	s.mux.Handle("/stats/analytics", s.authenticated(s.handleAnalytics))
	s.mux.Handle("/stats/performance", s.authenticated(s.handlePerformance))

	// relay callbacks
	s.mux.Handle("/internal/relay/confirm", s.relayOnly(s.handleRelayConfirm))
	s.mux.Handle("/internal/relay/logs", s.relayOnly(s.handleRelayLog))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.authorize(r)
		if !ok {
			s.audit(r, "auth.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, user)
	})
}

func (s *Server) authorize(r *http.Request) (domain.User, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return domain.User{}, false
	}
	return s.app.UserFromToken(token)
}

// relayOnly authorizes the relay's internal callbacks with a shared secret
// header compared in constant time.
func (s *Server) relayOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.relaySecret == "" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		got := r.Header.Get("X-Relay-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.relaySecret)) != 1 {
			s.audit(r, "relay.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// helpers

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps the application error taxonomy to HTTP statuses.
// Internal causes never reach the client.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch app.KindOf(err) {
	case app.KindUnauthorized:
		status = http.StatusUnauthorized
	case app.KindForbidden:
		status = http.StatusForbidden
	case app.KindNotFound:
		status = http.StatusNotFound
	case app.KindConflict:
		status = http.StatusConflict
	case app.KindInvalid:
		status = http.StatusBadRequest
	case app.KindUnavailable:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		slog.Error("request failed", "err", err)
	}
	writeError(w, status, app.Message(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
