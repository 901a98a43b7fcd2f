package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"telefwd/internal/paypal"
	"telefwd/internal/store"
	"telefwd/pkg/domain"
)

type fakeMessaging struct {
	verifyAccess bool
	verifyErr    error
	channels     []domain.RelayChannel
	channelsErr  error

	startCalls  int
	startErr    error
	stopCalls   int
	stopErr     error
	createCalls int
	createErr   error
}

func (f *fakeMessaging) VerifyChannelAccess(ctx context.Context, userID, channelID string) (bool, error) {
	return f.verifyAccess, f.verifyErr
}

func (f *fakeMessaging) GetUserChannels(ctx context.Context, userID string) ([]domain.RelayChannel, error) {
	return f.channels, f.channelsErr
}

func (f *fakeMessaging) StartForwarding(ctx context.Context, userID string) error {
	f.startCalls++
	return f.startErr
}

func (f *fakeMessaging) StopForwarding(ctx context.Context, userID string) error {
	f.stopCalls++
	return f.stopErr
}

func (f *fakeMessaging) CreateClient(ctx context.Context, userID, phoneNumber string) error {
	f.createCalls++
	return f.createErr
}

type fakePayments struct {
	created    paypal.CreatedSubscription
	createErr  error
	cancelErr  error
	details    paypal.SubscriptionDetails
	detailsErr error

	cancelCalls int
}

func (f *fakePayments) CreateSubscription(ctx context.Context, userID string) (paypal.CreatedSubscription, error) {
	return f.created, f.createErr
}

func (f *fakePayments) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakePayments) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (paypal.SubscriptionDetails, error) {
	return f.details, f.detailsErr
}

type fakeDispatcher struct {
	calls int
	err   error
}

func (f *fakeDispatcher) DispatchStart(ctx context.Context, userID string) error {
	f.calls++
	return f.err
}

type fakeArchiver struct {
	key   string
	err   error
	calls int
	last  []domain.ForwardingLog
}

func (f *fakeArchiver) ArchiveLogs(ctx context.Context, userID string, logs []domain.ForwardingLog) (string, error) {
	f.calls++
	f.last = logs
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyWebhookSignature(body []byte, signature string) bool { return true }

type testApp struct {
	app       *App
	store     *store.MemoryStore
	messaging *fakeMessaging
	payments  *fakePayments
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	mem := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker(), store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	messaging := &fakeMessaging{verifyAccess: true}
	payments := &fakePayments{
		created: paypal.CreatedSubscription{ID: "I-TEST", Status: "APPROVAL_PENDING", ApprovalURL: "https://pay.example/approve"},
	}
	a, err := New(Config{
		Store:           mem,
		Sessions:        sessions,
		Messaging:       messaging,
		Payments:        payments,
		WebhookVerifier: acceptAllVerifier{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &testApp{app: a, store: mem, messaging: messaging, payments: payments}
}

func (ta *testApp) registerUser(t *testing.T, email, username string) domain.User {
	t.Helper()
	user, _, err := ta.app.Register(context.Background(), RegisterInput{Email: email, Username: username, TelegramUserID: 42})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func (ta *testApp) addChannel(t *testing.T, user domain.User, channelID string) domain.Channel {
	t.Helper()
	ch, err := ta.app.AddChannel(context.Background(), user, ChannelInput{
		ChannelID: channelID, Name: "chan " + channelID, Type: domain.ChannelPublic,
	})
	if err != nil {
		t.Fatalf("add channel %s: %v", channelID, err)
	}
	return ch
}

func (ta *testApp) activateSubscription(t *testing.T, user domain.User) domain.Subscription {
	t.Helper()
	sub := domain.Subscription{
		ID:                     store.NewID(),
		UserID:                 user.ID,
		ExternalSubscriptionID: "I-" + user.ID,
		Status:                 domain.SubscriptionActive,
		Amount:                 9.99,
		Currency:               "USD",
		CreatedAt:              time.Now().UTC(),
	}
	if err := ta.store.SaveSubscription(sub); err != nil {
		t.Fatalf("save subscription: %v", err)
	}
	return sub
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *app.Error, got %T: %v", err, err)
	}
	if appErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, appErr.Kind, err)
	}
}
