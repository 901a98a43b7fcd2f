package app

import (
	"context"
	"errors"
	"strings"

	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

// freeTierMaxRules is the rule quota for users without an active
// subscription.
const freeTierMaxRules = 3

// RuleInput is the create payload for a forwarding rule.
type RuleInput struct {
	SourceChannelID string
	TargetChannelID string
	FilterKeywords  []string
	ExcludeKeywords []string
}

// RulePatch carries the optional fields of a rule update; nil means "leave
// unchanged".
type RulePatch struct {
	SourceChannelID *string
	TargetChannelID *string
	FilterKeywords  *[]string
	ExcludeKeywords *[]string
	IsActive        *bool
}

// cleanKeywords trims entries and drops empties. Commas are rejected because
// the storage layer joins keyword lists on them.
func cleanKeywords(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(kw, ",") {
			return nil, invalid("Keywords must not contain commas")
		}
		out = append(out, kw)
	}
	return out, nil
}

// ListRules returns the user's rules, optionally only the active ones.
func (a *App) ListRules(ctx context.Context, user domain.User, activeOnly bool) ([]domain.ForwardingRule, error) {
	_ = ctx
	rules, err := a.store.ListRules(user.ID, activeOnly)
	if err != nil {
		return nil, internal("failed to list forwarding rules", err)
	}
	return rules, nil
}

// GetRule returns one rule by id.
func (a *App) GetRule(ctx context.Context, user domain.User, id string) (domain.ForwardingRule, error) {
	_ = ctx
	rule, ok, err := a.store.GetRule(user.ID, id)
	if err != nil {
		return domain.ForwardingRule{}, internal("failed to fetch forwarding rule", err)
	}
	if !ok {
		return domain.ForwardingRule{}, notFound("Forwarding rule not found")
	}
	return rule, nil
}

// CreateRule validates quota, channel ownership, and pair uniqueness, in
// that order, then stores the rule as active.
func (a *App) CreateRule(ctx context.Context, user domain.User, in RuleInput) (domain.ForwardingRule, error) {
	_ = ctx
	in.SourceChannelID = strings.TrimSpace(in.SourceChannelID)
	in.TargetChannelID = strings.TrimSpace(in.TargetChannelID)
	if in.SourceChannelID == "" || in.TargetChannelID == "" {
		return domain.ForwardingRule{}, invalid("source_channel_id and target_channel_id are required")
	}
	if in.SourceChannelID == in.TargetChannelID {
		return domain.ForwardingRule{}, invalid("Source and target channels must differ")
	}

	if !a.hasActiveSubscription(user) {
		count, err := a.store.CountRules(user.ID)
		if err != nil {
			return domain.ForwardingRule{}, internal("failed to create forwarding rule", err)
		}
		if count >= freeTierMaxRules {
			return domain.ForwardingRule{}, forbidden("Free tier allows maximum 3 forwarding rules. Upgrade to premium for unlimited rules.")
		}
	}

	if err := a.requireUsableChannel(user.ID, in.SourceChannelID, "Source channel not found or not accessible"); err != nil {
		return domain.ForwardingRule{}, err
	}
	if err := a.requireUsableChannel(user.ID, in.TargetChannelID, "Target channel not found or not accessible"); err != nil {
		return domain.ForwardingRule{}, err
	}

	dup, err := a.store.HasRulePair(user.ID, in.SourceChannelID, in.TargetChannelID)
	if err != nil {
		return domain.ForwardingRule{}, internal("failed to create forwarding rule", err)
	}
	if dup {
		return domain.ForwardingRule{}, invalid("Forwarding rule between these channels already exists")
	}

	filter, err := cleanKeywords(in.FilterKeywords)
	if err != nil {
		return domain.ForwardingRule{}, err
	}
	exclude, err := cleanKeywords(in.ExcludeKeywords)
	if err != nil {
		return domain.ForwardingRule{}, err
	}

	ts := now()
	rule := domain.ForwardingRule{
		ID:              store.NewID(),
		UserID:          user.ID,
		SourceChannelID: in.SourceChannelID,
		TargetChannelID: in.TargetChannelID,
		FilterKeywords:  filter,
		ExcludeKeywords: exclude,
		IsActive:        true,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if err := a.store.SaveRule(rule); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ForwardingRule{}, invalid("Forwarding rule between these channels already exists")
		}
		return domain.ForwardingRule{}, internal("failed to create forwarding rule", err)
	}
	return rule, nil
}

// UpdateRule applies a partial patch. Re-pointing the rule at different
// channels revalidates ownership and pair uniqueness.
func (a *App) UpdateRule(ctx context.Context, user domain.User, id string, patch RulePatch) (domain.ForwardingRule, error) {
	_ = ctx
	rule, ok, err := a.store.GetRule(user.ID, id)
	if err != nil {
		return domain.ForwardingRule{}, internal("failed to update forwarding rule", err)
	}
	if !ok {
		return domain.ForwardingRule{}, notFound("Forwarding rule not found")
	}

	source, target := rule.SourceChannelID, rule.TargetChannelID
	if patch.SourceChannelID != nil {
		source = strings.TrimSpace(*patch.SourceChannelID)
	}
	if patch.TargetChannelID != nil {
		target = strings.TrimSpace(*patch.TargetChannelID)
	}
	if source == "" || target == "" {
		return domain.ForwardingRule{}, invalid("source_channel_id and target_channel_id are required")
	}
	if source == target {
		return domain.ForwardingRule{}, invalid("Source and target channels must differ")
	}
	if source != rule.SourceChannelID || target != rule.TargetChannelID {
		if source != rule.SourceChannelID {
			if err := a.requireUsableChannel(user.ID, source, "Source channel not found or not accessible"); err != nil {
				return domain.ForwardingRule{}, err
			}
		}
		if target != rule.TargetChannelID {
			if err := a.requireUsableChannel(user.ID, target, "Target channel not found or not accessible"); err != nil {
				return domain.ForwardingRule{}, err
			}
		}
		dup, err := a.store.HasRulePair(user.ID, source, target)
		if err != nil {
			return domain.ForwardingRule{}, internal("failed to update forwarding rule", err)
		}
		if dup {
			return domain.ForwardingRule{}, invalid("Forwarding rule between these channels already exists")
		}
	}

	rule.SourceChannelID = source
	rule.TargetChannelID = target
	if patch.FilterKeywords != nil {
		if rule.FilterKeywords, err = cleanKeywords(*patch.FilterKeywords); err != nil {
			return domain.ForwardingRule{}, err
		}
	}
	if patch.ExcludeKeywords != nil {
		if rule.ExcludeKeywords, err = cleanKeywords(*patch.ExcludeKeywords); err != nil {
			return domain.ForwardingRule{}, err
		}
	}
	if patch.IsActive != nil {
		rule.IsActive = *patch.IsActive
	}
	rule.UpdatedAt = now()

	if err := a.store.SaveRule(rule); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.ForwardingRule{}, invalid("Forwarding rule between these channels already exists")
		}
		return domain.ForwardingRule{}, internal("failed to update forwarding rule", err)
	}
	return rule, nil
}

// DeleteRule removes a rule.
func (a *App) DeleteRule(ctx context.Context, user domain.User, id string) error {
	_ = ctx
	if _, ok, err := a.store.GetRule(user.ID, id); err != nil {
		return internal("failed to delete forwarding rule", err)
	} else if !ok {
		return notFound("Forwarding rule not found")
	}
	if err := a.store.DeleteRule(user.ID, id); err != nil {
		return internal("failed to delete forwarding rule", err)
	}
	return nil
}

// requireUsableChannel checks the channel is registered to the user and
// active.
func (a *App) requireUsableChannel(userID, channelID, msg string) error {
	ch, ok, err := a.store.GetChannelByExternalID(userID, channelID)
	if err != nil {
		return internal("channel lookup failed", err)
	}
	if !ok || !ch.IsActive {
		return invalid(msg)
	}
	return nil
}
