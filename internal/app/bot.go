package app

import (
	"context"
	"strings"
	"time"

	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

// BotStatus is the external view of the relay session.
type BotStatus struct {
	Running       bool       `json:"running"`
	Authenticated bool       `json:"authenticated"`
	LastActivity  *time.Time `json:"lastActivity"`
	ActiveRules   int        `json:"activeRules"`
}

// StartBot dispatches a start command to the relay and records the session
// as starting. The dispatch is fire-and-forget; "running" is only stored
// when the relay confirms through ConfirmRelayState.
func (a *App) StartBot(ctx context.Context, user domain.User) (string, error) {
	sess, ok, err := a.store.GetBotSession(user.ID)
	if err != nil {
		return "", internal("Failed to start Telegram bot", err)
	}
	if ok && sess.State.Active() {
		return "Bot is already running", nil
	}

	if err := a.dispatchStart(ctx, user.ID); err != nil {
		return "", internal("Failed to start Telegram bot", err)
	}

	ts := now()
	if !ok {
		sess = domain.BotSession{ID: store.NewID(), UserID: user.ID}
	}
	sess.State = domain.BotStarting
	sess.IsAuthenticated = true
	sess.LastActivity = &ts
	if err := a.store.SaveBotSession(sess); err != nil {
		return "", internal("Failed to start Telegram bot", err)
	}
	return "Bot start initiated", nil
}

// StopBot synchronously stops the relay session. Stopping a bot that was
// never started is a no-op.
func (a *App) StopBot(ctx context.Context, user domain.User) (string, error) {
	sess, ok, err := a.store.GetBotSession(user.ID)
	if err != nil {
		return "", internal("Failed to stop Telegram bot", err)
	}
	if !ok || sess.State == domain.BotStopped {
		return "Bot is not running", nil
	}

	if err := a.messaging.StopForwarding(ctx, user.ID); err != nil {
		return "", internal("Failed to stop Telegram bot", err)
	}

	ts := now()
	sess.State = domain.BotStopped
	sess.LastActivity = &ts
	if err := a.store.SaveBotSession(sess); err != nil {
		return "", internal("Failed to stop Telegram bot", err)
	}
	return "Bot stopped", nil
}

// GetBotStatus reports the session state plus the active rule count.
func (a *App) GetBotStatus(ctx context.Context, user domain.User) (BotStatus, error) {
	_ = ctx
	activeRules, err := a.store.CountActiveRules(user.ID)
	if err != nil {
		return BotStatus{}, internal("failed to fetch bot status", err)
	}
	status := BotStatus{ActiveRules: activeRules}
	sess, ok, err := a.store.GetBotSession(user.ID)
	if err != nil {
		return BotStatus{}, internal("failed to fetch bot status", err)
	}
	if ok {
		status.Running = sess.State.Active()
		status.Authenticated = sess.IsAuthenticated
		status.LastActivity = sess.LastActivity
	}
	return status, nil
}

// Authenticate registers the user's phone with the relay and marks the
// session authenticated.
func (a *App) Authenticate(ctx context.Context, user domain.User, phoneNumber string) error {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return invalid("phone_number is required")
	}
	if err := a.messaging.CreateClient(ctx, user.ID, phoneNumber); err != nil {
		return internal("Failed to authenticate with Telegram", err)
	}

	sess, ok, err := a.store.GetBotSession(user.ID)
	if err != nil {
		return internal("Failed to authenticate with Telegram", err)
	}
	if !ok {
		sess = domain.BotSession{ID: store.NewID(), UserID: user.ID, State: domain.BotStopped}
	}
	sess.PhoneNumber = phoneNumber
	sess.IsAuthenticated = true
	if err := a.store.SaveBotSession(sess); err != nil {
		return internal("Failed to authenticate with Telegram", err)
	}
	return nil
}

// ConfirmRelayState is the relay's report of the actual session state. A
// "started" report moves starting to running; "stopped" clears the session.
// Reports for unknown users are ignored.
func (a *App) ConfirmRelayState(ctx context.Context, userID, state string) error {
	_ = ctx
	sess, ok, err := a.store.GetBotSession(userID)
	if err != nil {
		return internal("failed to record relay state", err)
	}
	if !ok {
		return nil
	}

	ts := now()
	switch state {
	case "started":
		if sess.State != domain.BotStarting {
			return nil
		}
		sess.State = domain.BotRunning
	case "stopped":
		sess.State = domain.BotStopped
	default:
		return invalid("state must be started or stopped")
	}
	sess.LastActivity = &ts
	if err := a.store.SaveBotSession(sess); err != nil {
		return internal("failed to record relay state", err)
	}
	return nil
}

// RecordForwardingOutcome ingests one forwarding result reported by the
// relay, appending a log row and bumping the rule counters on success.
func (a *App) RecordForwardingOutcome(ctx context.Context, log domain.ForwardingLog) error {
	_ = ctx
	switch log.Status {
	case domain.ForwardSuccess, domain.ForwardFailed, domain.ForwardFiltered:
	default:
		return invalid("status must be SUCCESS, FAILED, or FILTERED")
	}
	if log.ID == "" {
		log.ID = store.NewID()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now()
	}
	if err := a.store.AppendLog(log); err != nil {
		return internal("failed to record forwarding log", err)
	}

	if log.Status == domain.ForwardSuccess && log.RuleID != "" {
		rule, ok, err := a.store.GetRule(log.UserID, log.RuleID)
		if err != nil || !ok {
			return nil
		}
		rule.MessagesForwarded++
		ts := log.CreatedAt
		rule.LastForwardedAt = &ts
		if err := a.store.SaveRule(rule); err != nil {
			return internal("failed to update rule counters", err)
		}
	}
	return nil
}
