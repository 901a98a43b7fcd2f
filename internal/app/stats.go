package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

// LogsQuery narrows and pages the forwarding log listing.
type LogsQuery struct {
	Page   int
	Limit  int
	Status domain.ForwardStatus
	RuleID string
	Days   int
}

// LogsPage is one page of forwarding logs.
type LogsPage struct {
	Logs  []domain.ForwardingLog `json:"logs"`
	Page  int                    `json:"page"`
	Limit int                    `json:"limit"`
}

// Analytics is the dashboard rollup over a date range.
type Analytics struct {
	Days      int                      `json:"days"`
	Daily     []domain.DailyStat       `json:"dailyStats"`
	TopRules  []domain.RulePerformance `json:"topRules"`
	TopErrors []domain.ErrorFrequency  `json:"topErrors"`
}

// Performance summarizes the last 24 hours.
type Performance struct {
	MessagesForwarded int64   `json:"messagesForwarded24h"`
	MessagesFailed    int64   `json:"messagesFailed24h"`
	MessagesFiltered  int64   `json:"messagesFiltered24h"`
	SuccessRate       float64 `json:"successRate"`
	BotUptimeHours    float64 `json:"botUptimeHours"`
}

// CleanupResult reports a log purge.
type CleanupResult struct {
	DeletedCount int64  `json:"deletedCount"`
	ArchiveKey   string `json:"archiveKey,omitempty"`
}

func clampInt(v, min, max, def int) int {
	if v == 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Overview returns the per-user dashboard totals.
func (a *App) Overview(ctx context.Context, user domain.User) (domain.Stats, error) {
	_ = ctx
	channels, err := a.store.ListChannels(user.ID)
	if err != nil {
		return domain.Stats{}, internal("failed to fetch stats", err)
	}
	totalRules, err := a.store.CountRules(user.ID)
	if err != nil {
		return domain.Stats{}, internal("failed to fetch stats", err)
	}
	activeRules, err := a.store.CountActiveRules(user.ID)
	if err != nil {
		return domain.Stats{}, internal("failed to fetch stats", err)
	}
	forwarded, err := a.store.SumMessagesForwarded(user.ID)
	if err != nil {
		return domain.Stats{}, internal("failed to fetch stats", err)
	}

	stats := domain.Stats{
		TotalChannels:          len(channels),
		TotalRules:             totalRules,
		ActiveRules:            activeRules,
		TotalMessagesForwarded: forwarded,
		SubscriptionActive:     a.hasActiveSubscription(user),
	}
	if sess, ok, err := a.store.GetBotSession(user.ID); err == nil && ok {
		stats.BotRunning = sess.State.Active()
	}
	return stats, nil
}

// Logs returns a page of forwarding logs, newest first.
func (a *App) Logs(ctx context.Context, user domain.User, q LogsQuery) (LogsPage, error) {
	_ = ctx
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := clampInt(q.Limit, 1, 100, 50)
	days := clampInt(q.Days, 1, 90, 7)

	switch q.Status {
	case "", domain.ForwardSuccess, domain.ForwardFailed, domain.ForwardFiltered:
	default:
		return LogsPage{}, invalid("status_filter must be SUCCESS, FAILED, or FILTERED")
	}

	logs, err := a.store.ListLogs(user.ID, store.LogFilter{
		Status: q.Status,
		RuleID: q.RuleID,
		Since:  now().AddDate(0, 0, -days),
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return LogsPage{}, internal("failed to fetch logs", err)
	}
	if logs == nil {
		logs = []domain.ForwardingLog{}
	}
	return LogsPage{Logs: logs, Page: page, Limit: limit}, nil
}

// GetAnalytics builds the daily rollup plus top rules and failure messages.
func (a *App) GetAnalytics(ctx context.Context, user domain.User, days int) (Analytics, error) {
	_ = ctx
	days = clampInt(days, 1, 365, 30)
	since := now().AddDate(0, 0, -days)

	daily, err := a.store.DailyStats(user.ID, since)
	if err != nil {
		return Analytics{}, internal("failed to build analytics", err)
	}
	topRules, err := a.store.TopRules(user.ID, 10)
	if err != nil {
		return Analytics{}, internal("failed to build analytics", err)
	}
	topErrors, err := a.store.TopErrors(user.ID, since, 5)
	if err != nil {
		return Analytics{}, internal("failed to build analytics", err)
	}
	if daily == nil {
		daily = []domain.DailyStat{}
	}
	if topRules == nil {
		topRules = []domain.RulePerformance{}
	}
	if topErrors == nil {
		topErrors = []domain.ErrorFrequency{}
	}
	return Analytics{Days: days, Daily: daily, TopRules: topRules, TopErrors: topErrors}, nil
}

// GetPerformance summarizes the last 24 hours of forwarding activity.
func (a *App) GetPerformance(ctx context.Context, user domain.User) (Performance, error) {
	_ = ctx
	since := now().Add(-24 * time.Hour)
	counts, err := a.store.CountLogsByStatusSince(user.ID, since)
	if err != nil {
		return Performance{}, internal("failed to fetch performance", err)
	}

	perf := Performance{
		MessagesForwarded: counts[domain.ForwardSuccess],
		MessagesFailed:    counts[domain.ForwardFailed],
		MessagesFiltered:  counts[domain.ForwardFiltered],
	}
	total := perf.MessagesForwarded + perf.MessagesFailed + perf.MessagesFiltered
	if total > 0 {
		perf.SuccessRate = float64(perf.MessagesForwarded) / float64(total) * 100
	}

	// LastActivity is set when the session enters a state, so for a running
	// session it approximates the start of the current run.
	if sess, ok, err := a.store.GetBotSession(user.ID); err == nil && ok &&
		sess.State.Active() && sess.LastActivity != nil {
		perf.BotUptimeHours = now().Sub(*sess.LastActivity).Hours()
	}
	return perf, nil
}

// CleanupLogs purges logs older than the retention window, archiving the
// purged rows first when an archiver is configured. An archive failure
// aborts the purge.
func (a *App) CleanupLogs(ctx context.Context, user domain.User, daysToKeep int) (CleanupResult, error) {
	if daysToKeep == 0 {
		daysToKeep = 90
	}
	if daysToKeep < 7 || daysToKeep > 365 {
		return CleanupResult{}, invalid("days_to_keep must be between 7 and 365")
	}
	cutoff := now().AddDate(0, 0, -daysToKeep)

	var archiveKey string
	if a.archiver != nil {
		old, err := a.store.ListLogsBefore(user.ID, cutoff)
		if err != nil {
			return CleanupResult{}, internal("failed to clean up logs", err)
		}
		if len(old) > 0 {
			key, err := a.archiver.ArchiveLogs(ctx, user.ID, old)
			if err != nil {
				return CleanupResult{}, internal("failed to archive logs before cleanup", fmt.Errorf("archive: %w", err))
			}
			archiveKey = key
			slog.Info("archived logs before purge", "user_id", user.ID, "count", len(old), "key", key)
		}
	}

	deleted, err := a.store.DeleteLogsBefore(user.ID, cutoff)
	if err != nil {
		return CleanupResult{}, internal("failed to clean up logs", err)
	}
	return CleanupResult{DeletedCount: deleted, ArchiveKey: archiveKey}, nil
}
