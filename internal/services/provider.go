package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"visitly/internal/models/db_models"
)

// CheckoutSession is the provider-side handle handed back to the caller. No
// ledger row exists yet; the subscription is written only once the provider
// confirms via webhook or explicit activation.
type CheckoutSession struct {
	RedirectURL string
	ExternalRef string
}

type WebhookEventKind string

const (
	EventSubscriptionActivated WebhookEventKind = "subscription.activated"
	EventSubscriptionUpdated   WebhookEventKind = "subscription.updated"
	EventSubscriptionCanceled  WebhookEventKind = "subscription.canceled"
	EventPaymentSucceeded      WebhookEventKind = "payment.succeeded"
	EventPaymentFailed         WebhookEventKind = "payment.failed"
	EventPaymentRefunded       WebhookEventKind = "payment.refunded"
)

// SubscriptionEvent is the normalized view of a provider subscription, parsed
// and validated at the adapter boundary. RawStatus stays in the provider's
// vocabulary; the reconciliation service runs it through the normalizer.
type SubscriptionEvent struct {
	ProviderSubID string
	RawStatus     string
	PlanCode      string // internal plan code resolved from the provider price/plan id
	AccountRef    string // internal account id echoed back by the provider
	PeriodStart   int64
	PeriodEnd     int64
	AmountMinor   int64
	Currency      string
}

// PaymentEvent is the normalized view of a provider charge, failure or
// refund. For refunds ProviderTxnID names the original charge and
// ProviderRefundID carries the provider's id for the refund itself.
type PaymentEvent struct {
	ProviderTxnID    string
	ProviderRefundID string
	ProviderSubID    string
	AmountMinor      int64
	Currency         string
	RawStatus        string
	ReceiptURL       string
	PaymentMethodRef string
	FailureReason    string
}

// WebhookEvent is the tagged union crossing from an adapter into the engine.
// Exactly one of Subscription/Payment is set, matching Kind.
type WebhookEvent struct {
	Provider     db_models.PaymentProvider
	Kind         WebhookEventKind
	OccurredAt   int64 // provider event timestamp, unix seconds
	Subscription *SubscriptionEvent
	Payment      *PaymentEvent
}

// ProviderAdapter abstracts one external payment provider. Adapters translate
// between the provider's API/webhook vocabulary and the internal model; they
// never write the ledger themselves.
type ProviderAdapter interface {
	Name() db_models.PaymentProvider

	// CreateCheckout initiates provider-side subscription creation. It must
	// not touch the ledger: abandoned checkouts must leave no phantom rows.
	CreateCheckout(ctx context.Context, account *db_models.Account, plan *db_models.Plan) (*CheckoutSession, error)

	// VerifyWebhook authenticates the raw payload and parses it into a typed
	// event. It fails closed: an unverifiable payload returns
	// utils.ErrAuthenticityFailure and is never applied. Events the engine
	// does not consume return (nil, nil).
	VerifyWebhook(ctx context.Context, r *http.Request, body []byte) (*WebhookEvent, error)

	// GetSubscription fetches the provider's current view of a subscription.
	GetSubscription(ctx context.Context, providerSubID string) (*SubscriptionEvent, error)

	// CancelSubscription cancels on the provider side. Callers only mutate
	// the ledger after this returns nil.
	CancelSubscription(ctx context.Context, providerSubID, reason string) error
}

// ---------- Mock implementation ----------

// MockProviderAdapter is a test double that records calls and returns
// configurable results.
type MockProviderAdapter struct {
	mu sync.Mutex

	ProviderName db_models.PaymentProvider

	// Subscriptions maps providerSubID -> the event GetSubscription returns.
	Subscriptions map[string]*SubscriptionEvent
	// Canceled collects providerSubIDs passed to CancelSubscription.
	Canceled []string
	// CheckoutCalls counts CreateCheckout invocations.
	CheckoutCalls int

	CreateCheckoutErr     error
	CancelSubscriptionErr error
	GetSubscriptionErr    error

	// VerifyResult is returned as-is from VerifyWebhook.
	VerifyResult *WebhookEvent
	VerifyErr    error

	nextRefSeq int
}

func NewMockProviderAdapter(name db_models.PaymentProvider) *MockProviderAdapter {
	return &MockProviderAdapter{
		ProviderName:  name,
		Subscriptions: make(map[string]*SubscriptionEvent),
	}
}

func (m *MockProviderAdapter) Name() db_models.PaymentProvider {
	return m.ProviderName
}

func (m *MockProviderAdapter) CreateCheckout(_ context.Context, _ *db_models.Account, _ *db_models.Plan) (*CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateCheckoutErr != nil {
		return nil, m.CreateCheckoutErr
	}

	m.CheckoutCalls++
	m.nextRefSeq++
	ref := fmt.Sprintf("%s_mock_%d", m.ProviderName, m.nextRefSeq)
	return &CheckoutSession{
		RedirectURL: fmt.Sprintf("https://checkout.example/%s", ref),
		ExternalRef: ref,
	}, nil
}

func (m *MockProviderAdapter) VerifyWebhook(_ context.Context, _ *http.Request, _ []byte) (*WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.VerifyErr != nil {
		return nil, m.VerifyErr
	}
	return m.VerifyResult, nil
}

func (m *MockProviderAdapter) GetSubscription(_ context.Context, providerSubID string) (*SubscriptionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetSubscriptionErr != nil {
		return nil, m.GetSubscriptionErr
	}

	ev, ok := m.Subscriptions[providerSubID]
	if !ok {
		return nil, fmt.Errorf("mock: unknown subscription %s", providerSubID)
	}
	return ev, nil
}

func (m *MockProviderAdapter) CancelSubscription(_ context.Context, providerSubID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CancelSubscriptionErr != nil {
		return m.CancelSubscriptionErr
	}

	m.Canceled = append(m.Canceled, providerSubID)
	return nil
}
