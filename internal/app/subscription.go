package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

const (
	premiumPlanPrice    = 9.99
	premiumPlanCurrency = "USD"
)

// PremiumPlan is the single purchasable tier.
var PremiumPlan = domain.Plan{
	ID:          "premium_monthly",
	Name:        "Premium Monthly",
	Description: "Unlimited forwarding rules and private channel support",
	Price:       premiumPlanPrice,
	Currency:    premiumPlanCurrency,
	Interval:    "month",
	Features: []string{
		"Unlimited forwarding rules",
		"Private channel forwarding",
		"Priority support",
	},
}

// CreateSubscriptionResult carries the provider handle and the URL the user
// must visit to approve the subscription.
type CreateSubscriptionResult struct {
	SubscriptionID string `json:"subscriptionId"`
	ApprovalURL    string `json:"approvalUrl"`
	Status         string `json:"status"`
}

// CreateSubscription starts the purchase flow: one pending or active
// subscription per user, stored locally as PENDING until the webhook
// activates it.
func (a *App) CreateSubscription(ctx context.Context, user domain.User) (CreateSubscriptionResult, error) {
	_, exists, err := a.store.FindSubscriptionByStatus(user.ID, domain.SubscriptionActive, domain.SubscriptionPending)
	if err != nil {
		return CreateSubscriptionResult{}, internal("failed to create subscription", err)
	}
	if exists {
		return CreateSubscriptionResult{}, conflict("An active or pending subscription already exists")
	}

	created, err := a.payments.CreateSubscription(ctx, user.ID)
	if err != nil {
		return CreateSubscriptionResult{}, &Error{Kind: KindUnavailable, Message: "Failed to create subscription with payment provider", Err: err}
	}

	sub := domain.Subscription{
		ID:                     store.NewID(),
		UserID:                 user.ID,
		ExternalSubscriptionID: created.ID,
		Status:                 domain.SubscriptionPending,
		Amount:                 premiumPlanPrice,
		Currency:               premiumPlanCurrency,
		CreatedAt:              now(),
	}
	if err := a.store.SaveSubscription(sub); err != nil {
		return CreateSubscriptionResult{}, internal("failed to create subscription", err)
	}
	return CreateSubscriptionResult{
		SubscriptionID: created.ID,
		ApprovalURL:    created.ApprovalURL,
		Status:         created.Status,
	}, nil
}

// CancelSubscription cancels the user's active subscription with the
// provider first; local state only changes after the provider confirms.
func (a *App) CancelSubscription(ctx context.Context, user domain.User) error {
	sub, ok, err := a.store.FindSubscriptionByStatus(user.ID, domain.SubscriptionActive)
	if err != nil {
		return internal("failed to cancel subscription", err)
	}
	if !ok {
		return notFound("No active subscription found")
	}

	if err := a.payments.CancelSubscription(ctx, sub.ExternalSubscriptionID, "Cancelled by user"); err != nil {
		return internal("Failed to cancel subscription with payment provider", err)
	}

	sub.Status = domain.SubscriptionCancelled
	if err := a.store.SaveSubscription(sub); err != nil {
		return internal("failed to cancel subscription", err)
	}
	if err := a.setUserSubscriptionFlag(user.ID, false); err != nil {
		return err
	}
	return nil
}

// SubscriptionStatus returns the user's latest subscription.
func (a *App) SubscriptionStatus(ctx context.Context, user domain.User) (domain.Subscription, error) {
	_ = ctx
	sub, ok, err := a.store.LatestSubscription(user.ID)
	if err != nil {
		return domain.Subscription{}, internal("failed to fetch subscription", err)
	}
	if !ok {
		return domain.Subscription{}, notFound("No subscription found")
	}
	return sub, nil
}

// RetryPaymentResult tells the user how to resolve a failed payment.
type RetryPaymentResult struct {
	SubscriptionID string `json:"subscriptionId"`
	ProviderStatus string `json:"providerStatus"`
	Guidance       string `json:"guidance"`
}

// RetryPayment looks up a suspended or pending subscription with the
// provider and returns resolution guidance.
func (a *App) RetryPayment(ctx context.Context, user domain.User) (RetryPaymentResult, error) {
	sub, ok, err := a.store.FindSubscriptionByStatus(user.ID, domain.SubscriptionSuspended, domain.SubscriptionPending)
	if err != nil {
		return RetryPaymentResult{}, internal("failed to retry payment", err)
	}
	if !ok {
		return RetryPaymentResult{}, notFound("No subscription with pending payment found")
	}

	details, err := a.payments.GetSubscriptionDetails(ctx, sub.ExternalSubscriptionID)
	if err != nil {
		return RetryPaymentResult{}, &Error{Kind: KindUnavailable, Message: "Failed to fetch subscription from payment provider", Err: err}
	}
	return RetryPaymentResult{
		SubscriptionID: sub.ExternalSubscriptionID,
		ProviderStatus: details.Status,
		Guidance:       "Update your payment method with the payment provider; the subscription reactivates automatically on the next successful charge.",
	}, nil
}

// WebhookEvent is the decoded provider notification.
type WebhookEvent struct {
	EventType      string
	SubscriptionID string

	// NextBillingTime accompanies activation events.
	NextBillingTime *time.Time
}

// HandleWebhook applies one provider event to the subscription state
// machine. Events for unknown subscriptions and unknown event types are
// acknowledged without effect.
func (a *App) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	_ = ctx
	if ev.SubscriptionID == "" {
		return nil
	}
	sub, ok, err := a.store.GetSubscriptionByExternalID(ev.SubscriptionID)
	if err != nil {
		return internal("webhook processing failed", err)
	}
	if !ok {
		slog.Info("webhook for unknown subscription ignored",
			"event_type", ev.EventType, "subscription_id", ev.SubscriptionID)
		return nil
	}

	switch ev.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		if ev.NextBillingTime != nil {
			sub.NextBillingTime = ev.NextBillingTime
		}
		return a.transition(sub, domain.SubscriptionActive, true)
	case "BILLING.SUBSCRIPTION.CANCELLED":
		return a.transition(sub, domain.SubscriptionCancelled, false)
	case "BILLING.SUBSCRIPTION.SUSPENDED":
		return a.transition(sub, domain.SubscriptionSuspended, false)
	case "BILLING.SUBSCRIPTION.PAYMENT.FAILED":
		slog.Warn("subscription payment failed",
			"subscription_id", ev.SubscriptionID, "user_id", sub.UserID)
		return nil
	case "PAYMENT.SALE.COMPLETED":
		// A completed sale means the provider charged successfully; force
		// the subscription active if the ACTIVATED event was missed.
		if sub.Status == domain.SubscriptionActive {
			return nil
		}
		return a.transition(sub, domain.SubscriptionActive, true)
	default:
		slog.Info("unhandled webhook event type", "event_type", ev.EventType)
		return nil
	}
}

func (a *App) transition(sub domain.Subscription, to domain.SubscriptionStatus, active bool) error {
	sub.Status = to
	if err := a.store.SaveSubscription(sub); err != nil {
		return internal("webhook processing failed", fmt.Errorf("save subscription: %w", err))
	}
	return a.setUserSubscriptionFlag(sub.UserID, active)
}

func (a *App) setUserSubscriptionFlag(userID string, active bool) error {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return internal("failed to update user subscription state", err)
	}
	if !ok {
		return nil
	}
	if user.SubscriptionActive == active {
		return nil
	}
	user.SubscriptionActive = active
	user.UpdatedAt = now()
	if err := a.store.SaveUser(user); err != nil {
		return internal("failed to update user subscription state", err)
	}
	return nil
}
