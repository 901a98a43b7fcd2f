package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"telefwd/pkg/domain"
)

func TestCreateSubscriptionStoresPendingRow(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	res, err := ta.app.CreateSubscription(ctx, user)
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if res.SubscriptionID != "I-TEST" || res.ApprovalURL == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	sub, ok, _ := ta.store.LatestSubscription(user.ID)
	if !ok {
		t.Fatal("subscription row not stored")
	}
	if sub.Status != domain.SubscriptionPending {
		t.Fatalf("expected PENDING, got %s", sub.Status)
	}
	if sub.Amount != 9.99 || sub.Currency != "USD" {
		t.Fatalf("unexpected pricing: %v %s", sub.Amount, sub.Currency)
	}

	// A second create while one is pending conflicts.
	_, err = ta.app.CreateSubscription(ctx, user)
	wantKind(t, err, KindConflict)
}

func TestWebhookActivatesPendingSubscription(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	if _, err := ta.app.CreateSubscription(ctx, user); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	nextBilling := time.Date(2026, 9, 28, 0, 0, 0, 0, time.UTC)
	if err := ta.app.HandleWebhook(ctx, WebhookEvent{
		EventType:       "BILLING.SUBSCRIPTION.ACTIVATED",
		SubscriptionID:  "I-TEST",
		NextBillingTime: &nextBilling,
	}); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	sub, _, _ := ta.store.LatestSubscription(user.ID)
	if sub.Status != domain.SubscriptionActive {
		t.Fatalf("expected ACTIVE, got %s", sub.Status)
	}
	if sub.NextBillingTime == nil || !sub.NextBillingTime.Equal(nextBilling) {
		t.Fatalf("next billing time not persisted: %v", sub.NextBillingTime)
	}
	got, _, _ := ta.store.GetUserByID(user.ID)
	if !got.SubscriptionActive {
		t.Fatal("user subscription flag not set")
	}
}

func TestWebhookUnknownSubscriptionAndEventAreNoOps(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	if err := ta.app.HandleWebhook(ctx, WebhookEvent{
		EventType: "BILLING.SUBSCRIPTION.ACTIVATED", SubscriptionID: "I-UNKNOWN",
	}); err != nil {
		t.Fatalf("unknown subscription must be a silent no-op: %v", err)
	}

	user := ta.registerUser(t, "a@example.com", "alice")
	if _, err := ta.app.CreateSubscription(ctx, user); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := ta.app.HandleWebhook(ctx, WebhookEvent{
		EventType: "BILLING.SUBSCRIPTION.SOMETHING.NEW", SubscriptionID: "I-TEST",
	}); err != nil {
		t.Fatalf("unknown event type must be a no-op: %v", err)
	}
	sub, _, _ := ta.store.LatestSubscription(user.ID)
	if sub.Status != domain.SubscriptionPending {
		t.Fatalf("unknown event must not change state, got %s", sub.Status)
	}
}

func TestWebhookSaleCompletedForcesActive(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	if _, err := ta.app.CreateSubscription(ctx, user); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	if err := ta.app.HandleWebhook(ctx, WebhookEvent{
		EventType: "PAYMENT.SALE.COMPLETED", SubscriptionID: "I-TEST",
	}); err != nil {
		t.Fatalf("handle sale completed: %v", err)
	}
	sub, _, _ := ta.store.LatestSubscription(user.ID)
	if sub.Status != domain.SubscriptionActive {
		t.Fatalf("sale completed should activate, got %s", sub.Status)
	}
}

func TestWebhookSuspendAndPaymentFailed(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()
	sub := ta.activateSubscription(t, user)

	// PAYMENT.FAILED is log-only.
	if err := ta.app.HandleWebhook(ctx, WebhookEvent{
		EventType: "BILLING.SUBSCRIPTION.PAYMENT.FAILED", SubscriptionID: sub.ExternalSubscriptionID,
	}); err != nil {
		t.Fatalf("payment failed event: %v", err)
	}
	got, _, _ := ta.store.LatestSubscription(user.ID)
	if got.Status != domain.SubscriptionActive {
		t.Fatalf("payment failed must not change state, got %s", got.Status)
	}

	if err := ta.app.HandleWebhook(ctx, WebhookEvent{
		EventType: "BILLING.SUBSCRIPTION.SUSPENDED", SubscriptionID: sub.ExternalSubscriptionID,
	}); err != nil {
		t.Fatalf("suspend event: %v", err)
	}
	got, _, _ = ta.store.LatestSubscription(user.ID)
	if got.Status != domain.SubscriptionSuspended {
		t.Fatalf("expected SUSPENDED, got %s", got.Status)
	}
}

func TestCancelSubscriptionMutatesOnlyAfterProviderConfirms(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()
	ta.activateSubscription(t, user)

	ta.payments.cancelErr = errors.New("provider 500")
	err := ta.app.CancelSubscription(ctx, user)
	wantKind(t, err, KindInternal)
	sub, _, _ := ta.store.LatestSubscription(user.ID)
	if sub.Status != domain.SubscriptionActive {
		t.Fatalf("failed provider cancel must not mutate, got %s", sub.Status)
	}

	ta.payments.cancelErr = nil
	if err := ta.app.CancelSubscription(ctx, user); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	sub, _, _ = ta.store.LatestSubscription(user.ID)
	if sub.Status != domain.SubscriptionCancelled {
		t.Fatalf("expected CANCELLED, got %s", sub.Status)
	}

	// No active subscription left to cancel.
	err = ta.app.CancelSubscription(ctx, user)
	wantKind(t, err, KindNotFound)
}

func TestRetryPaymentRequiresSuspendedOrPending(t *testing.T) {
	ta := newTestApp(t)
	user := ta.registerUser(t, "a@example.com", "alice")
	ctx := context.Background()

	_, err := ta.app.RetryPayment(ctx, user)
	wantKind(t, err, KindNotFound)

	sub := ta.activateSubscription(t, user)
	sub.Status = domain.SubscriptionSuspended
	if err := ta.store.SaveSubscription(sub); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	ta.payments.details.Status = "SUSPENDED"

	res, err := ta.app.RetryPayment(ctx, user)
	if err != nil {
		t.Fatalf("retry payment: %v", err)
	}
	if res.SubscriptionID != sub.ExternalSubscriptionID || res.ProviderStatus != "SUSPENDED" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
