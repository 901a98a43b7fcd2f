package app

import (
	"context"
	"log/slog"
	"time"

	"telefwd/internal/paypal"
	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

// MessagingClient is the relay service contract this backend consumes. The
// relay owns the Telegram sessions and the forwarding loop.
type MessagingClient interface {
	VerifyChannelAccess(ctx context.Context, userID, channelID string) (bool, error)
	GetUserChannels(ctx context.Context, userID string) ([]domain.RelayChannel, error)
	StartForwarding(ctx context.Context, userID string) error
	StopForwarding(ctx context.Context, userID string) error
	CreateClient(ctx context.Context, userID, phoneNumber string) error
}

// PaymentClient is the payment provider contract.
type PaymentClient interface {
	CreateSubscription(ctx context.Context, userID string) (paypal.CreatedSubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
	GetSubscriptionDetails(ctx context.Context, subscriptionID string) (paypal.SubscriptionDetails, error)
}

// WebhookVerifier checks inbound webhook signatures.
type WebhookVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// StartDispatcher sends fire-and-forget start commands to the relay.
type StartDispatcher interface {
	DispatchStart(ctx context.Context, userID string) error
}

// LogArchiver stores purged forwarding logs before deletion.
type LogArchiver interface {
	ArchiveLogs(ctx context.Context, userID string, logs []domain.ForwardingLog) (string, error)
}

// Config holds dependencies for the core application.
type Config struct {
	Store           store.Store
	Sessions        store.SessionStore
	Messaging       MessagingClient
	Payments        PaymentClient
	WebhookVerifier WebhookVerifier

	// Dispatcher is optional; when nil, bot start falls back to an async
	// call through the messaging client.
	Dispatcher StartDispatcher
	// Archiver is optional; when nil, log cleanup deletes without archiving.
	Archiver LogArchiver
}

// App is the core application wiring storage, sessions, and collaborators.
type App struct {
	store           store.Store
	sessions        store.SessionStore
	messaging       MessagingClient
	payments        PaymentClient
	webhookVerifier WebhookVerifier
	dispatcher      StartDispatcher
	archiver        LogArchiver
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, internal("store is required", nil)
	}
	if cfg.Sessions == nil {
		return nil, internal("session store is required", nil)
	}
	if cfg.Messaging == nil {
		return nil, internal("messaging client is required", nil)
	}
	if cfg.Payments == nil {
		return nil, internal("payment client is required", nil)
	}
	return &App{
		store:           cfg.Store,
		sessions:        cfg.Sessions,
		messaging:       cfg.Messaging,
		payments:        cfg.Payments,
		webhookVerifier: cfg.WebhookVerifier,
		dispatcher:      cfg.Dispatcher,
		archiver:        cfg.Archiver,
	}, nil
}

// VerifyWebhook checks the payment provider's webhook signature over the
// raw body. Without a configured verifier every webhook is rejected.
func (a *App) VerifyWebhook(body []byte, signature string) bool {
	if a.webhookVerifier == nil {
		return false
	}
	return a.webhookVerifier.VerifyWebhookSignature(body, signature)
}

// dispatchStart sends the start command without waiting for the relay. With
// an AMQP dispatcher the publish itself is the fire-and-forget boundary;
// otherwise the HTTP call runs detached from the request.
func (a *App) dispatchStart(ctx context.Context, userID string) error {
	if a.dispatcher != nil {
		return a.dispatcher.DispatchStart(ctx, userID)
	}
	go func() {
		callCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.messaging.StartForwarding(callCtx, userID); err != nil {
			slog.Warn("async start forwarding failed", "user_id", userID, "err", err)
		}
	}()
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
