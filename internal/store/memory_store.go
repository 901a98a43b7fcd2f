package store

import (
	"sort"
	"sync"
	"time"

	"telefwd/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local
// development and mirrors the GORM store's semantics, including the
// uniqueness guarantees.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	emails        map[string]string // email -> user ID
	usernames     map[string]string // username -> user ID
	channels      map[string]domain.Channel
	rules         map[string]domain.ForwardingRule
	logs          []domain.ForwardingLog
	botSessions   map[string]domain.BotSession // key: user ID
	subscriptions map[string]domain.Subscription
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		emails:        make(map[string]string),
		usernames:     make(map[string]string),
		channels:      make(map[string]domain.Channel),
		rules:         make(map[string]domain.ForwardingRule),
		botSessions:   make(map[string]domain.BotSession),
		subscriptions: make(map[string]domain.Subscription),
	}
}

// SaveUser registers or updates a user, enforcing email/username uniqueness.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.emails[u.Email]; ok && id != u.ID {
		return ErrDuplicate
	}
	if id, ok := m.usernames[u.Username]; ok && id != u.ID {
		return ErrDuplicate
	}
	if prev, ok := m.users[u.ID]; ok {
		delete(m.emails, prev.Email)
		delete(m.usernames, prev.Username)
	}
	m.users[u.ID] = u
	m.emails[u.Email] = u.ID
	m.usernames[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.emails[email]
	return ok, nil
}

func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.usernames[username]
	return ok, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// SaveChannel stores or updates a channel, enforcing (user, channel_id)
// uniqueness.
func (m *MemoryStore) SaveChannel(c domain.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.channels {
		if other.ID != c.ID && other.UserID == c.UserID && other.ChannelID == c.ChannelID {
			return ErrDuplicate
		}
	}
	m.channels[c.ID] = c
	return nil
}

func (m *MemoryStore) ListChannels(userID string) ([]domain.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Channel
	for _, c := range m.channels {
		if c.UserID == userID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) GetChannel(userID, id string) (domain.Channel, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[id]
	if !ok || c.UserID != userID {
		return domain.Channel{}, false, nil
	}
	return c, true, nil
}

func (m *MemoryStore) GetChannelByExternalID(userID, channelID string) (domain.Channel, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.channels {
		if c.UserID == userID && c.ChannelID == channelID {
			return c, true, nil
		}
	}
	return domain.Channel{}, false, nil
}

func (m *MemoryStore) DeleteChannel(userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[id]
	if !ok || c.UserID != userID {
		return nil
	}
	for _, r := range m.rules {
		if r.UserID == userID && (r.SourceChannelID == c.ChannelID || r.TargetChannelID == c.ChannelID) {
			return ErrChannelInUse
		}
	}
	delete(m.channels, id)
	return nil
}

// SaveRule stores or updates a rule, enforcing pair uniqueness.
func (m *MemoryStore) SaveRule(r domain.ForwardingRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.rules {
		if other.ID != r.ID && other.UserID == r.UserID &&
			other.SourceChannelID == r.SourceChannelID && other.TargetChannelID == r.TargetChannelID {
			return ErrDuplicate
		}
	}
	m.rules[r.ID] = r
	return nil
}

func (m *MemoryStore) ListRules(userID string, activeOnly bool) ([]domain.ForwardingRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.ForwardingRule
	for _, r := range m.rules {
		if r.UserID != userID {
			continue
		}
		if activeOnly && !r.IsActive {
			continue
		}
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) GetRule(userID, id string) (domain.ForwardingRule, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok || r.UserID != userID {
		return domain.ForwardingRule{}, false, nil
	}
	return r, true, nil
}

func (m *MemoryStore) DeleteRule(userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if ok && r.UserID == userID {
		delete(m.rules, id)
	}
	return nil
}

func (m *MemoryStore) CountRules(userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rules {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountActiveRules(userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.rules {
		if r.UserID == userID && r.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) HasRulePair(userID, sourceChannelID, targetChannelID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rules {
		if r.UserID == userID && r.SourceChannelID == sourceChannelID && r.TargetChannelID == targetChannelID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) AppendLog(l domain.ForwardingLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return nil
}

func (m *MemoryStore) ListLogs(userID string, f LogFilter) ([]domain.ForwardingLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.ForwardingLog
	for _, l := range m.logs {
		if l.UserID != userID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.RuleID != "" && l.RuleID != f.RuleID {
			continue
		}
		if !f.Since.IsZero() && l.CreatedAt.Before(f.Since) {
			continue
		}
		res = append(res, l)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(res) {
			return nil, nil
		}
		res = res[f.Offset:]
	}
	if f.Limit > 0 && len(res) > f.Limit {
		res = res[:f.Limit]
	}
	return res, nil
}

func (m *MemoryStore) ListLogsBefore(userID string, cutoff time.Time) ([]domain.ForwardingLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.ForwardingLog
	for _, l := range m.logs {
		if l.UserID == userID && l.CreatedAt.Before(cutoff) {
			res = append(res, l)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (m *MemoryStore) DeleteLogsBefore(userID string, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.logs[:0]
	var deleted int64
	for _, l := range m.logs {
		if l.UserID == userID && l.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return deleted, nil
}

func (m *MemoryStore) CountLogsByStatusSince(userID string, since time.Time) (map[domain.ForwardStatus]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.ForwardStatus]int64)
	for _, l := range m.logs {
		if l.UserID == userID && !l.CreatedAt.Before(since) {
			out[l.Status]++
		}
	}
	return out, nil
}

func (m *MemoryStore) DailyStats(userID string, since time.Time) ([]domain.DailyStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []logEntry
	for _, l := range m.logs {
		if l.UserID == userID && !l.CreatedAt.Before(since) {
			entries = append(entries, logEntry{Status: l.Status, CreatedAt: l.CreatedAt})
		}
	}
	return rollupDaily(entries), nil
}

func (m *MemoryStore) TopRules(userID string, limit int) ([]domain.RulePerformance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.RulePerformance
	for _, r := range m.rules {
		if r.UserID != userID {
			continue
		}
		res = append(res, domain.RulePerformance{
			RuleID:            r.ID,
			SourceChannelID:   r.SourceChannelID,
			TargetChannelID:   r.TargetChannelID,
			MessagesForwarded: r.MessagesForwarded,
		})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].MessagesForwarded > res[j].MessagesForwarded })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) TopErrors(userID string, since time.Time, limit int) ([]domain.ErrorFrequency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int64)
	for _, l := range m.logs {
		if l.UserID != userID || l.Status != domain.ForwardFailed || l.ErrorMessage == "" {
			continue
		}
		if l.CreatedAt.Before(since) {
			continue
		}
		counts[l.ErrorMessage]++
	}
	res := make([]domain.ErrorFrequency, 0, len(counts))
	for msg, n := range counts {
		res = append(res, domain.ErrorFrequency{Error: msg, Count: n})
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		return res[i].Error < res[j].Error
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) SumMessagesForwarded(userID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, r := range m.rules {
		if r.UserID == userID {
			total += r.MessagesForwarded
		}
	}
	return total, nil
}

func (m *MemoryStore) GetBotSession(userID string) (domain.BotSession, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.botSessions[userID]
	return s, ok, nil
}

func (m *MemoryStore) SaveBotSession(s domain.BotSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botSessions[s.UserID] = s
	return nil
}

func (m *MemoryStore) SaveSubscription(s domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.subscriptions {
		if other.ID != s.ID && other.ExternalSubscriptionID == s.ExternalSubscriptionID {
			return ErrDuplicate
		}
	}
	m.subscriptions[s.ID] = s
	return nil
}

func (m *MemoryStore) LatestSubscription(userID string) (domain.Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newestSubscription(func(s domain.Subscription) bool { return s.UserID == userID })
}

func (m *MemoryStore) GetSubscriptionByExternalID(externalID string) (domain.Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subscriptions {
		if s.ExternalSubscriptionID == externalID {
			return s, true, nil
		}
	}
	return domain.Subscription{}, false, nil
}

func (m *MemoryStore) FindSubscriptionByStatus(userID string, statuses ...domain.SubscriptionStatus) (domain.Subscription, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newestSubscription(func(s domain.Subscription) bool {
		if s.UserID != userID {
			return false
		}
		for _, st := range statuses {
			if s.Status == st {
				return true
			}
		}
		return false
	})
}

func (m *MemoryStore) newestSubscription(match func(domain.Subscription) bool) (domain.Subscription, bool, error) {
	var best domain.Subscription
	found := false
	for _, s := range m.subscriptions {
		if !match(s) {
			continue
		}
		if !found || s.CreatedAt.After(best.CreatedAt) {
			best = s
			found = true
		}
	}
	return best, found, nil
}
