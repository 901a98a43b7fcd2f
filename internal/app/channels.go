package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

// ChannelInput is the create/update payload for a channel.
type ChannelInput struct {
	ChannelID string
	Name      string
	Type      domain.ChannelType
}

func (in *ChannelInput) normalize() error {
	in.ChannelID = strings.TrimSpace(in.ChannelID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ChannelID == "" {
		return invalid("channel_id is required")
	}
	if in.Name == "" {
		return invalid("channel_name is required")
	}
	switch in.Type {
	case domain.ChannelPublic, domain.ChannelPrivate:
	case "":
		in.Type = domain.ChannelPublic
	default:
		return invalid("channel_type must be public or private")
	}
	return nil
}

// ListChannels returns the user's registered channels, newest first.
func (a *App) ListChannels(ctx context.Context, user domain.User) ([]domain.Channel, error) {
	_ = ctx
	channels, err := a.store.ListChannels(user.ID)
	if err != nil {
		return nil, internal("failed to list channels", err)
	}
	return channels, nil
}

// AddChannel registers a channel for the user. Private channels require an
// active subscription. External access verification is optimistic: only a
// definitive denial from the relay blocks the add, transport errors do not.
func (a *App) AddChannel(ctx context.Context, user domain.User, in ChannelInput) (domain.Channel, error) {
	if err := in.normalize(); err != nil {
		return domain.Channel{}, err
	}
	if in.Type == domain.ChannelPrivate && !a.hasActiveSubscription(user) {
		return domain.Channel{}, forbidden("Premium subscription required for private channels")
	}

	if _, exists, err := a.store.GetChannelByExternalID(user.ID, in.ChannelID); err != nil {
		return domain.Channel{}, internal("failed to add channel", err)
	} else if exists {
		return domain.Channel{}, conflict("Channel already added")
	}

	hasAccess, err := a.messaging.VerifyChannelAccess(ctx, user.ID, in.ChannelID)
	if err != nil {
		slog.Warn("channel access verification unavailable, proceeding",
			"user_id", user.ID, "channel_id", in.ChannelID, "err", err)
	} else if !hasAccess {
		return domain.Channel{}, forbidden("You don't have access to this channel or channel doesn't exist")
	}

	ch := domain.Channel{
		ID:        store.NewID(),
		UserID:    user.ID,
		ChannelID: in.ChannelID,
		Name:      in.Name,
		Type:      in.Type,
		IsActive:  true,
		CreatedAt: now(),
	}
	if err := a.store.SaveChannel(ch); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return domain.Channel{}, conflict("Channel already added")
		}
		return domain.Channel{}, internal("failed to add channel", err)
	}
	return ch, nil
}

// UpdateChannel patches name and type. Switching to private is gated the
// same way as adding a private channel.
func (a *App) UpdateChannel(ctx context.Context, user domain.User, id string, name *string, chType *domain.ChannelType) (domain.Channel, error) {
	_ = ctx
	ch, ok, err := a.store.GetChannel(user.ID, id)
	if err != nil {
		return domain.Channel{}, internal("failed to update channel", err)
	}
	if !ok {
		return domain.Channel{}, notFound("Channel not found")
	}
	if name != nil {
		n := strings.TrimSpace(*name)
		if n == "" {
			return domain.Channel{}, invalid("channel_name cannot be empty")
		}
		ch.Name = n
	}
	if chType != nil {
		switch *chType {
		case domain.ChannelPublic:
		case domain.ChannelPrivate:
			if ch.Type != domain.ChannelPrivate && !a.hasActiveSubscription(user) {
				return domain.Channel{}, forbidden("Premium subscription required for private channels")
			}
		default:
			return domain.Channel{}, invalid("channel_type must be public or private")
		}
		ch.Type = *chType
	}
	if err := a.store.SaveChannel(ch); err != nil {
		return domain.Channel{}, internal("failed to update channel", err)
	}
	return ch, nil
}

// ToggleChannel flips the active flag and returns the new state.
func (a *App) ToggleChannel(ctx context.Context, user domain.User, id string) (domain.Channel, error) {
	_ = ctx
	ch, ok, err := a.store.GetChannel(user.ID, id)
	if err != nil {
		return domain.Channel{}, internal("failed to toggle channel", err)
	}
	if !ok {
		return domain.Channel{}, notFound("Channel not found")
	}
	ch.IsActive = !ch.IsActive
	if err := a.store.SaveChannel(ch); err != nil {
		return domain.Channel{}, internal("failed to toggle channel", err)
	}
	return ch, nil
}

// DeleteChannel removes a channel unless a forwarding rule still references
// it as source or target.
func (a *App) DeleteChannel(ctx context.Context, user domain.User, id string) error {
	_ = ctx
	if _, ok, err := a.store.GetChannel(user.ID, id); err != nil {
		return internal("failed to delete channel", err)
	} else if !ok {
		return notFound("Channel not found")
	}
	if err := a.store.DeleteChannel(user.ID, id); err != nil {
		if errors.Is(err, store.ErrChannelInUse) {
			return invalid("Cannot delete channel used in forwarding rules")
		}
		return internal("failed to delete channel", err)
	}
	return nil
}

// AvailableChannels lists the channels the user's Telegram account can see,
// as reported by the relay.
func (a *App) AvailableChannels(ctx context.Context, user domain.User) ([]domain.RelayChannel, error) {
	channels, err := a.messaging.GetUserChannels(ctx, user.ID)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Message: "Failed to fetch channels from Telegram", Err: fmt.Errorf("get user channels: %w", err)}
	}
	return channels, nil
}

// hasActiveSubscription reports whether the user currently holds an ACTIVE
// subscription. The cached user flag is checked first; storage is the
// authority when the flag is stale.
func (a *App) hasActiveSubscription(user domain.User) bool {
	if user.SubscriptionActive {
		return true
	}
	_, ok, err := a.store.FindSubscriptionByStatus(user.ID, domain.SubscriptionActive)
	if err != nil {
		slog.Warn("subscription lookup failed", "user_id", user.ID, "err", err)
		return false
	}
	return ok
}
