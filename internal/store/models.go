package store

import (
	"strings"
	"time"

	"telefwd/pkg/domain"
)

// GORM models used for persistence. Unique indexes back the application-level
// uniqueness checks so concurrent check-then-insert cannot slip duplicates in.
type UserModel struct {
	ID                 string    `gorm:"primaryKey"`
	Email              string    `gorm:"uniqueIndex;not null"`
	Username           string    `gorm:"uniqueIndex;not null"`
	TelegramUserID     int64     `gorm:"not null"`
	SubscriptionActive bool      `gorm:"not null"`
	IsActive           bool      `gorm:"not null"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

type ChannelModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index;uniqueIndex:idx_user_channel,priority:1"`
	ChannelID string    `gorm:"not null;uniqueIndex:idx_user_channel,priority:2"`
	Name      string    `gorm:"not null"`
	Type      string    `gorm:"not null"`
	IsActive  bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type RuleModel struct {
	ID                string    `gorm:"primaryKey"`
	UserID            string    `gorm:"not null;index;uniqueIndex:idx_user_rule_pair,priority:1"`
	SourceChannelID   string    `gorm:"not null;uniqueIndex:idx_user_rule_pair,priority:2"`
	TargetChannelID   string    `gorm:"not null;uniqueIndex:idx_user_rule_pair,priority:3"`
	FilterKeywords    string    `gorm:"not null"`
	ExcludeKeywords   string    `gorm:"not null"`
	IsActive          bool      `gorm:"not null"`
	MessagesForwarded int64     `gorm:"not null"`
	LastForwardedAt   *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

type LogModel struct {
	ID              string    `gorm:"primaryKey"`
	UserID          string    `gorm:"not null;index"`
	RuleID          string    `gorm:"not null;index"`
	SourceMessageID int64     `gorm:"not null"`
	TargetMessageID int64     `gorm:"not null"`
	Status          string    `gorm:"not null;index"`
	ErrorMessage    string
	CreatedAt       time.Time `gorm:"not null;index"`
}

type BotSessionModel struct {
	ID              string    `gorm:"primaryKey"`
	UserID          string    `gorm:"not null;uniqueIndex"`
	State           string    `gorm:"not null"`
	IsAuthenticated bool      `gorm:"not null"`
	PhoneNumber     string
	LastActivity    *time.Time
}

type SubscriptionModel struct {
	ID                     string    `gorm:"primaryKey"`
	UserID                 string    `gorm:"not null;index"`
	ExternalSubscriptionID string    `gorm:"not null;uniqueIndex"`
	Status                 string    `gorm:"not null"`
	Amount                 float64   `gorm:"not null"`
	Currency               string    `gorm:"not null"`
	NextBillingTime        *time.Time
	CreatedAt              time.Time `gorm:"not null"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:                 u.ID,
		Email:              u.Email,
		Username:           u.Username,
		TelegramUserID:     u.TelegramUserID,
		SubscriptionActive: u.SubscriptionActive,
		IsActive:           u.IsActive,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:                 m.ID,
		Email:              m.Email,
		Username:           m.Username,
		TelegramUserID:     m.TelegramUserID,
		SubscriptionActive: m.SubscriptionActive,
		IsActive:           m.IsActive,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func channelToModel(c domain.Channel) ChannelModel {
	return ChannelModel{
		ID:        c.ID,
		UserID:    c.UserID,
		ChannelID: c.ChannelID,
		Name:      c.Name,
		Type:      string(c.Type),
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
	}
}

func channelFromModel(m ChannelModel) domain.Channel {
	return domain.Channel{
		ID:        m.ID,
		UserID:    m.UserID,
		ChannelID: m.ChannelID,
		Name:      m.Name,
		Type:      domain.ChannelType(m.Type),
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
	}
}

func ruleToModel(r domain.ForwardingRule) RuleModel {
	return RuleModel{
		ID:                r.ID,
		UserID:            r.UserID,
		SourceChannelID:   r.SourceChannelID,
		TargetChannelID:   r.TargetChannelID,
		FilterKeywords:    joinKeywords(r.FilterKeywords),
		ExcludeKeywords:   joinKeywords(r.ExcludeKeywords),
		IsActive:          r.IsActive,
		MessagesForwarded: r.MessagesForwarded,
		LastForwardedAt:   r.LastForwardedAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func ruleFromModel(m RuleModel) domain.ForwardingRule {
	return domain.ForwardingRule{
		ID:                m.ID,
		UserID:            m.UserID,
		SourceChannelID:   m.SourceChannelID,
		TargetChannelID:   m.TargetChannelID,
		FilterKeywords:    splitKeywords(m.FilterKeywords),
		ExcludeKeywords:   splitKeywords(m.ExcludeKeywords),
		IsActive:          m.IsActive,
		MessagesForwarded: m.MessagesForwarded,
		LastForwardedAt:   m.LastForwardedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func logToModel(l domain.ForwardingLog) LogModel {
	return LogModel{
		ID:              l.ID,
		UserID:          l.UserID,
		RuleID:          l.RuleID,
		SourceMessageID: l.SourceMessageID,
		TargetMessageID: l.TargetMessageID,
		Status:          string(l.Status),
		ErrorMessage:    l.ErrorMessage,
		CreatedAt:       l.CreatedAt,
	}
}

func logFromModel(m LogModel) domain.ForwardingLog {
	return domain.ForwardingLog{
		ID:              m.ID,
		UserID:          m.UserID,
		RuleID:          m.RuleID,
		SourceMessageID: m.SourceMessageID,
		TargetMessageID: m.TargetMessageID,
		Status:          domain.ForwardStatus(m.Status),
		ErrorMessage:    m.ErrorMessage,
		CreatedAt:       m.CreatedAt,
	}
}

func botSessionToModel(s domain.BotSession) BotSessionModel {
	return BotSessionModel{
		ID:              s.ID,
		UserID:          s.UserID,
		State:           string(s.State),
		IsAuthenticated: s.IsAuthenticated,
		PhoneNumber:     s.PhoneNumber,
		LastActivity:    s.LastActivity,
	}
}

func botSessionFromModel(m BotSessionModel) domain.BotSession {
	return domain.BotSession{
		ID:              m.ID,
		UserID:          m.UserID,
		State:           domain.BotState(m.State),
		IsAuthenticated: m.IsAuthenticated,
		PhoneNumber:     m.PhoneNumber,
		LastActivity:    m.LastActivity,
	}
}

func subscriptionToModel(s domain.Subscription) SubscriptionModel {
	return SubscriptionModel{
		ID:                     s.ID,
		UserID:                 s.UserID,
		ExternalSubscriptionID: s.ExternalSubscriptionID,
		Status:                 string(s.Status),
		Amount:                 s.Amount,
		Currency:               s.Currency,
		NextBillingTime:        s.NextBillingTime,
		CreatedAt:              s.CreatedAt,
	}
}

func subscriptionFromModel(m SubscriptionModel) domain.Subscription {
	return domain.Subscription{
		ID:                     m.ID,
		UserID:                 m.UserID,
		ExternalSubscriptionID: m.ExternalSubscriptionID,
		Status:                 domain.SubscriptionStatus(m.Status),
		Amount:                 m.Amount,
		Currency:               m.Currency,
		NextBillingTime:        m.NextBillingTime,
		CreatedAt:              m.CreatedAt,
	}
}

// Keyword lists are stored comma-joined; keywords themselves never contain
// commas (rejected when a rule is created or updated).
func joinKeywords(words []string) string {
	return strings.Join(words, ",")
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
