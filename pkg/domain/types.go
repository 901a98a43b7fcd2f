package domain

import "time"

type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
)

type ForwardStatus string

const (
	ForwardSuccess  ForwardStatus = "SUCCESS"
	ForwardFailed   ForwardStatus = "FAILED"
	ForwardFiltered ForwardStatus = "FILTERED"
)

type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
)

// BotState tracks the relay lifecycle for one user. "starting" means a start
// command was dispatched but the relay has not confirmed yet; "running" is
// recorded only after the relay reports back.
type BotState string

const (
	BotStopped  BotState = "stopped"
	BotStarting BotState = "starting"
	BotRunning  BotState = "running"
)

// Active reports whether the relay is starting or confirmed running.
func (s BotState) Active() bool {
	return s == BotStarting || s == BotRunning
}

type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	Username           string    `json:"username"`
	TelegramUserID     int64     `json:"telegramUserId"`
	SubscriptionActive bool      `json:"subscriptionActive"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type Channel struct {
	ID        string      `json:"id"`
	UserID    string      `json:"-"`
	ChannelID string      `json:"channelId"`
	Name      string      `json:"channelName"`
	Type      ChannelType `json:"channelType"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
}

type ForwardingRule struct {
	ID                string     `json:"id"`
	UserID            string     `json:"-"`
	SourceChannelID   string     `json:"sourceChannelId"`
	TargetChannelID   string     `json:"targetChannelId"`
	FilterKeywords    []string   `json:"filterKeywords"`
	ExcludeKeywords   []string   `json:"excludeKeywords"`
	IsActive          bool       `json:"isActive"`
	MessagesForwarded int64      `json:"messagesForwarded"`
	LastForwardedAt   *time.Time `json:"lastForwardedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type ForwardingLog struct {
	ID              string        `json:"id"`
	UserID          string        `json:"-"`
	RuleID          string        `json:"ruleId"`
	SourceMessageID int64         `json:"sourceMessageId"`
	TargetMessageID int64         `json:"targetMessageId"`
	Status          ForwardStatus `json:"status"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

type BotSession struct {
	ID              string     `json:"id"`
	UserID          string     `json:"-"`
	State           BotState   `json:"state"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	PhoneNumber     string     `json:"-"`
	LastActivity    *time.Time `json:"lastActivity"`
}

type Subscription struct {
	ID                     string             `json:"id"`
	UserID                 string             `json:"-"`
	ExternalSubscriptionID string             `json:"externalSubscriptionId"`
	Status                 SubscriptionStatus `json:"status"`
	Amount                 float64            `json:"amount"`
	Currency               string             `json:"currency"`
	NextBillingTime        *time.Time         `json:"nextBillingTime"`
	CreatedAt              time.Time          `json:"createdAt"`
}

// Stats is the per-user dashboard summary.
type Stats struct {
	TotalChannels          int   `json:"totalChannels"`
	TotalRules             int   `json:"totalRules"`
	ActiveRules            int   `json:"activeRules"`
	TotalMessagesForwarded int64 `json:"totalMessagesForwarded"`
	BotRunning             bool  `json:"botRunning"`
	SubscriptionActive     bool  `json:"subscriptionActive"`
}

// DailyStat is one day of forwarding activity.
type DailyStat struct {
	Date       string `json:"date"`
	Total      int64  `json:"totalMessages"`
	Successful int64  `json:"successful"`
	Failed     int64  `json:"failed"`
	Filtered   int64  `json:"filtered"`
}

// RulePerformance ranks a rule by forwarded volume.
type RulePerformance struct {
	RuleID            string `json:"ruleId"`
	SourceChannelID   string `json:"sourceChannel"`
	TargetChannelID   string `json:"targetChannel"`
	MessagesForwarded int64  `json:"messagesForwarded"`
}

// ErrorFrequency counts occurrences of one failure message.
type ErrorFrequency struct {
	Error string `json:"error"`
	Count int64  `json:"count"`
}

// Plan describes a purchasable subscription tier.
type Plan struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	Interval    string   `json:"interval"`
	Features    []string `json:"features"`
}

// RelayChannel is a channel visible to the user's Telegram account,
// as reported by the relay service.
type RelayChannel struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Username     string `json:"username,omitempty"`
	MembersCount int    `json:"membersCount"`
	IsPrivate    bool   `json:"isPrivate"`
}
