package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"telefwd/pkg/domain"
)

// GormStore implements Store using GORM over Postgres (or SQLite for
// development and tests).
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations. driver is "postgres"
// or "sqlite".
func NewGormStore(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres", "":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(
		&UserModel{},
		&ChannelModel{},
		&RuleModel{},
		&LogModel{},
		&BotSessionModel{},
		&SubscriptionModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return translate(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "username", "telegram_user_id", "subscription_active", "is_active", "updated_at"}),
	}).Create(&model).Error)
}

// HasUserEmail checks if the email is taken.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	return s.exists(&UserModel{}, "email = ?", email)
}

// HasUsername checks if the username is taken.
func (s *GormStore) HasUsername(username string) (bool, error) {
	return s.exists(&UserModel{}, "username = ?", username)
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveChannel stores or updates a channel.
func (s *GormStore) SaveChannel(c domain.Channel) error {
	model := channelToModel(c)
	return translate(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"channel_id", "name", "type", "is_active"}),
	}).Create(&model).Error)
}

// ListChannels returns the user's channels, newest first.
func (s *GormStore) ListChannels(userID string) ([]domain.Channel, error) {
	var models []ChannelModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Channel, 0, len(models))
	for _, m := range models {
		res = append(res, channelFromModel(m))
	}
	return res, nil
}

// GetChannel returns a channel owned by the user.
func (s *GormStore) GetChannel(userID, id string) (domain.Channel, bool, error) {
	var model ChannelModel
	if err := s.db.Where("user_id = ? AND id = ?", userID, id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Channel{}, false, nil
		}
		return domain.Channel{}, false, err
	}
	return channelFromModel(model), true, nil
}

// GetChannelByExternalID returns a channel by its Telegram channel id.
func (s *GormStore) GetChannelByExternalID(userID, channelID string) (domain.Channel, bool, error) {
	var model ChannelModel
	if err := s.db.Where("user_id = ? AND channel_id = ?", userID, channelID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Channel{}, false, nil
		}
		return domain.Channel{}, false, err
	}
	return channelFromModel(model), true, nil
}

// DeleteChannel removes the channel unless a rule references it. The
// reference check and the delete share one transaction so a concurrent rule
// insert cannot slip between them.
func (s *GormStore) DeleteChannel(userID, id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var model ChannelModel
		if err := tx.Where("user_id = ? AND id = ?", userID, id).First(&model).Error; err != nil {
			return err
		}
		var refs int64
		err := tx.Model(&RuleModel{}).
			Where("user_id = ? AND (source_channel_id = ? OR target_channel_id = ?)", userID, model.ChannelID, model.ChannelID).
			Count(&refs).Error
		if err != nil {
			return err
		}
		if refs > 0 {
			return ErrChannelInUse
		}
		return tx.Delete(&ChannelModel{}, "id = ?", model.ID).Error
	})
}

// SaveRule stores or updates a forwarding rule. The (user, source, target)
// unique index rejects concurrent duplicate pairs.
func (s *GormStore) SaveRule(r domain.ForwardingRule) error {
	model := ruleToModel(r)
	return translate(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source_channel_id", "target_channel_id", "filter_keywords", "exclude_keywords", "is_active", "messages_forwarded", "last_forwarded_at", "updated_at"}),
	}).Create(&model).Error)
}

// ListRules returns the user's rules, newest first.
func (s *GormStore) ListRules(userID string, activeOnly bool) ([]domain.ForwardingRule, error) {
	tx := s.db.Where("user_id = ?", userID)
	if activeOnly {
		tx = tx.Where("is_active = ?", true)
	}
	var models []RuleModel
	if err := tx.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ForwardingRule, 0, len(models))
	for _, m := range models {
		res = append(res, ruleFromModel(m))
	}
	return res, nil
}

// GetRule returns a rule owned by the user.
func (s *GormStore) GetRule(userID, id string) (domain.ForwardingRule, bool, error) {
	var model RuleModel
	if err := s.db.Where("user_id = ? AND id = ?", userID, id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ForwardingRule{}, false, nil
		}
		return domain.ForwardingRule{}, false, err
	}
	return ruleFromModel(model), true, nil
}

// DeleteRule removes a rule owned by the user.
func (s *GormStore) DeleteRule(userID, id string) error {
	return s.db.Delete(&RuleModel{}, "user_id = ? AND id = ?", userID, id).Error
}

// CountRules counts all rules of the user.
func (s *GormStore) CountRules(userID string) (int, error) {
	return s.count(&RuleModel{}, "user_id = ?", userID)
}

// CountActiveRules counts active rules of the user.
func (s *GormStore) CountActiveRules(userID string) (int, error) {
	return s.count(&RuleModel{}, "user_id = ? AND is_active = ?", userID, true)
}

// HasRulePair checks whether the exact source/target pair already exists.
func (s *GormStore) HasRulePair(userID, sourceChannelID, targetChannelID string) (bool, error) {
	return s.exists(&RuleModel{}, "user_id = ? AND source_channel_id = ? AND target_channel_id = ?", userID, sourceChannelID, targetChannelID)
}

// AppendLog records one forwarding outcome.
func (s *GormStore) AppendLog(l domain.ForwardingLog) error {
	model := logToModel(l)
	return s.db.Create(&model).Error
}

// ListLogs returns filtered logs, newest first.
func (s *GormStore) ListLogs(userID string, f LogFilter) ([]domain.ForwardingLog, error) {
	tx := s.db.Where("user_id = ?", userID)
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	if f.RuleID != "" {
		tx = tx.Where("rule_id = ?", f.RuleID)
	}
	if !f.Since.IsZero() {
		tx = tx.Where("created_at >= ?", f.Since)
	}
	tx = tx.Order("created_at DESC")
	if f.Offset > 0 {
		tx = tx.Offset(f.Offset)
	}
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	var models []LogModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ForwardingLog, 0, len(models))
	for _, m := range models {
		res = append(res, logFromModel(m))
	}
	return res, nil
}

// ListLogsBefore returns logs older than the cutoff, oldest first.
func (s *GormStore) ListLogsBefore(userID string, cutoff time.Time) ([]domain.ForwardingLog, error) {
	var models []LogModel
	err := s.db.Where("user_id = ? AND created_at < ?", userID, cutoff).
		Order("created_at ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.ForwardingLog, 0, len(models))
	for _, m := range models {
		res = append(res, logFromModel(m))
	}
	return res, nil
}

// DeleteLogsBefore purges logs older than the cutoff and reports the count.
func (s *GormStore) DeleteLogsBefore(userID string, cutoff time.Time) (int64, error) {
	res := s.db.Delete(&LogModel{}, "user_id = ? AND created_at < ?", userID, cutoff)
	return res.RowsAffected, res.Error
}

// CountLogsByStatusSince groups recent log rows by status.
func (s *GormStore) CountLogsByStatusSince(userID string, since time.Time) (map[domain.ForwardStatus]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.Model(&LogModel{}).
		Select("status, COUNT(*) AS n").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ForwardStatus]int64, len(rows))
	for _, r := range rows {
		out[domain.ForwardStatus(r.Status)] = r.N
	}
	return out, nil
}

// DailyStats rolls up per-day counts. The rollup runs in Go so it behaves
// identically on Postgres and SQLite.
func (s *GormStore) DailyStats(userID string, since time.Time) ([]domain.DailyStat, error) {
	type row struct {
		Status    string
		CreatedAt time.Time
	}
	var rows []row
	err := s.db.Model(&LogModel{}).
		Select("status, created_at").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]logEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, logEntry{Status: domain.ForwardStatus(r.Status), CreatedAt: r.CreatedAt})
	}
	return rollupDaily(entries), nil
}

// TopRules returns the user's rules ranked by forwarded volume.
func (s *GormStore) TopRules(userID string, limit int) ([]domain.RulePerformance, error) {
	var models []RuleModel
	err := s.db.Where("user_id = ?", userID).
		Order("messages_forwarded DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.RulePerformance, 0, len(models))
	for _, m := range models {
		res = append(res, domain.RulePerformance{
			RuleID:            m.ID,
			SourceChannelID:   m.SourceChannelID,
			TargetChannelID:   m.TargetChannelID,
			MessagesForwarded: m.MessagesForwarded,
		})
	}
	return res, nil
}

// TopErrors returns the most frequent failure messages.
func (s *GormStore) TopErrors(userID string, since time.Time, limit int) ([]domain.ErrorFrequency, error) {
	type row struct {
		ErrorMessage string
		N            int64
	}
	var rows []row
	err := s.db.Model(&LogModel{}).
		Select("error_message, COUNT(*) AS n").
		Where("user_id = ? AND status = ? AND created_at >= ? AND error_message <> ''", userID, string(domain.ForwardFailed), since).
		Group("error_message").
		Order("n DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.ErrorFrequency, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.ErrorFrequency{Error: r.ErrorMessage, Count: r.N})
	}
	return res, nil
}

// SumMessagesForwarded totals the user's rule counters.
func (s *GormStore) SumMessagesForwarded(userID string) (int64, error) {
	var total *int64
	err := s.db.Model(&RuleModel{}).
		Select("SUM(messages_forwarded)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// GetBotSession returns the user's bot session row, if any.
func (s *GormStore) GetBotSession(userID string) (domain.BotSession, bool, error) {
	var model BotSessionModel
	if err := s.db.Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BotSession{}, false, nil
		}
		return domain.BotSession{}, false, err
	}
	return botSessionFromModel(model), true, nil
}

// SaveBotSession upserts the single session row per user.
func (s *GormStore) SaveBotSession(sess domain.BotSession) error {
	model := botSessionToModel(sess)
	return translate(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"state", "is_authenticated", "phone_number", "last_activity"}),
	}).Create(&model).Error)
}

// SaveSubscription stores or updates a subscription.
func (s *GormStore) SaveSubscription(sub domain.Subscription) error {
	model := subscriptionToModel(sub)
	return translate(s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "amount", "currency", "next_billing_time"}),
	}).Create(&model).Error)
}

// LatestSubscription returns the newest subscription of the user.
func (s *GormStore) LatestSubscription(userID string) (domain.Subscription, bool, error) {
	var model SubscriptionModel
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Subscription{}, false, nil
		}
		return domain.Subscription{}, false, err
	}
	return subscriptionFromModel(model), true, nil
}

// GetSubscriptionByExternalID looks up by the payment provider's id.
func (s *GormStore) GetSubscriptionByExternalID(externalID string) (domain.Subscription, bool, error) {
	var model SubscriptionModel
	if err := s.db.Where("external_subscription_id = ?", externalID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Subscription{}, false, nil
		}
		return domain.Subscription{}, false, err
	}
	return subscriptionFromModel(model), true, nil
}

// FindSubscriptionByStatus returns the newest subscription with one of the
// given statuses.
func (s *GormStore) FindSubscriptionByStatus(userID string, statuses ...domain.SubscriptionStatus) (domain.Subscription, bool, error) {
	set := make([]string, 0, len(statuses))
	for _, st := range statuses {
		set = append(set, string(st))
	}
	var model SubscriptionModel
	err := s.db.Where("user_id = ? AND status IN ?", userID, set).
		Order("created_at DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Subscription{}, false, nil
		}
		return domain.Subscription{}, false, err
	}
	return subscriptionFromModel(model), true, nil
}

func (s *GormStore) exists(model any, query string, args ...any) (bool, error) {
	var count int64
	if err := s.db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) count(model any, query string, args ...any) (int, error) {
	var count int64
	if err := s.db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
