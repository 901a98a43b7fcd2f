package store

import (
	"errors"
	"time"

	"telefwd/pkg/domain"
)

var (
	// ErrChannelInUse is returned when deleting a channel that a forwarding
	// rule still references.
	ErrChannelInUse = errors.New("channel is referenced by forwarding rules")

	// ErrDuplicate is returned on unique-constraint violations
	// (email/username, channel per user, rule pair per user).
	ErrDuplicate = errors.New("duplicate record")
)

// LogFilter narrows ListLogs results. Zero values mean "no filter".
type LogFilter struct {
	Status domain.ForwardStatus
	RuleID string
	Since  time.Time
	Offset int
	Limit  int
}

// Store defines persistence for users, channels, rules, logs, bot sessions,
// and subscriptions. All reads and writes except user lookups are scoped to
// one owning user.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	HasUsername(username string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// channels
	SaveChannel(domain.Channel) error
	ListChannels(userID string) ([]domain.Channel, error)
	GetChannel(userID, id string) (domain.Channel, bool, error)
	GetChannelByExternalID(userID, channelID string) (domain.Channel, bool, error)
	// DeleteChannel removes the channel unless a rule references it as
	// source or target; the check and delete run in one transaction.
	DeleteChannel(userID, id string) error

	// forwarding rules
	SaveRule(domain.ForwardingRule) error
	ListRules(userID string, activeOnly bool) ([]domain.ForwardingRule, error)
	GetRule(userID, id string) (domain.ForwardingRule, bool, error)
	DeleteRule(userID, id string) error
	CountRules(userID string) (int, error)
	CountActiveRules(userID string) (int, error)
	HasRulePair(userID, sourceChannelID, targetChannelID string) (bool, error)

	// forwarding logs
	AppendLog(domain.ForwardingLog) error
	ListLogs(userID string, f LogFilter) ([]domain.ForwardingLog, error)
	ListLogsBefore(userID string, cutoff time.Time) ([]domain.ForwardingLog, error)
	DeleteLogsBefore(userID string, cutoff time.Time) (int64, error)
	CountLogsByStatusSince(userID string, since time.Time) (map[domain.ForwardStatus]int64, error)
	DailyStats(userID string, since time.Time) ([]domain.DailyStat, error)
	TopRules(userID string, limit int) ([]domain.RulePerformance, error)
	TopErrors(userID string, since time.Time, limit int) ([]domain.ErrorFrequency, error)
	SumMessagesForwarded(userID string) (int64, error)

	// bot sessions
	GetBotSession(userID string) (domain.BotSession, bool, error)
	SaveBotSession(domain.BotSession) error

	// subscriptions
	SaveSubscription(domain.Subscription) error
	LatestSubscription(userID string) (domain.Subscription, bool, error)
	GetSubscriptionByExternalID(externalID string) (domain.Subscription, bool, error)
	// FindSubscriptionByStatus returns the newest subscription of the user
	// whose status is one of the given set.
	FindSubscriptionByStatus(userID string, statuses ...domain.SubscriptionStatus) (domain.Subscription, bool, error)
}
