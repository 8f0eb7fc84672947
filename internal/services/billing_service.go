package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"visitly/internal/models/db_models"
	"visitly/internal/repositories"
	"visitly/pkg/keylock"
	"visitly/pkg/utils"
)

// ProviderRegistry resolves the adapter for the provider recorded on the row
// being processed.
type ProviderRegistry map[db_models.PaymentProvider]ProviderAdapter

func NewProviderRegistry(adapters ...ProviderAdapter) ProviderRegistry {
	reg := make(ProviderRegistry, len(adapters))
	for _, a := range adapters {
		reg[a.Name()] = a
	}
	return reg
}

func (r ProviderRegistry) Get(provider db_models.PaymentProvider) (ProviderAdapter, error) {
	adapter, ok := r[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for provider %q", utils.ErrProviderError, provider)
	}
	return adapter, nil
}

type BillingService interface {
	CreateCheckout(ctx context.Context, accountID uuid.UUID, planCode string, provider db_models.PaymentProvider) (*CheckoutSession, error)
	ActivateSubscription(ctx context.Context, accountID uuid.UUID, externalSubscriptionID string, provider db_models.PaymentProvider) (*db_models.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID uuid.UUID, reason string) (*db_models.Subscription, error)
	// ApplyWebhookEvent applies one verified provider event to the ledger.
	// Handlers are idempotent and serialized per provider record id; stale
	// events (older than the last applied one) are dropped as duplicates.
	ApplyWebhookEvent(ctx context.Context, ev *WebhookEvent) error
	GetAccountSubscriptions(ctx context.Context, accountID uuid.UUID) ([]db_models.Subscription, error)
	ListPlans(ctx context.Context) ([]db_models.Plan, error)
}

type billingService struct {
	ledger     repositories.Ledger
	registry   ProviderRegistry
	invoiceSvc InvoiceService
	locks      *keylock.KeyedMutex
}

func NewBillingService(ledger repositories.Ledger, registry ProviderRegistry, invoiceSvc InvoiceService) BillingService {
	return &billingService{
		ledger:     ledger,
		registry:   registry,
		invoiceSvc: invoiceSvc,
		locks:      keylock.NewKeyedMutex(),
	}
}

func (b *billingService) CreateCheckout(ctx context.Context, accountID uuid.UUID, planCode string, provider db_models.PaymentProvider) (*CheckoutSession, error) {
	account, err := b.ledger.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}

	plan, err := b.ledger.Plans().FindByCode(ctx, planCode)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if plan == nil {
		return nil, utils.ErrPlanNotFound
	}

	adapter, err := b.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	// No ledger write here: the subscription row is created only once the
	// provider confirms, so abandoned checkouts leave nothing behind.
	return adapter.CreateCheckout(ctx, account, plan)
}

func (b *billingService) ActivateSubscription(ctx context.Context, accountID uuid.UUID, externalSubscriptionID string, provider db_models.PaymentProvider) (*db_models.Subscription, error) {
	unlock := b.locks.Lock(string(provider) + ":" + externalSubscriptionID)
	defer unlock()

	existing, err := b.ledger.Subscriptions().FindByProviderSubID(ctx, externalSubscriptionID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if existing != nil {
		return existing, nil
	}

	adapter, err := b.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	ev, err := adapter.GetSubscription(ctx, externalSubscriptionID)
	if err != nil {
		return nil, err
	}
	if ev.AccountRef == "" {
		ev.AccountRef = accountID.String()
	}

	if err := b.upsertSubscription(ctx, provider, adapter, ev, time.Now().Unix()); err != nil {
		return nil, err
	}

	return b.ledger.Subscriptions().FindByProviderSubID(ctx, externalSubscriptionID)
}

func (b *billingService) CancelSubscription(ctx context.Context, subscriptionID uuid.UUID, reason string) (*db_models.Subscription, error) {
	sub, err := b.ledger.Subscriptions().FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if sub == nil {
		return nil, utils.ErrSubscriptionNotFound
	}
	if sub.Status == db_models.SubStatusCanceled {
		return sub, nil
	}

	adapter, err := b.registry.Get(sub.Provider)
	if err != nil {
		return nil, err
	}

	// Provider first. If the provider call fails the ledger stays untouched;
	// no split-brain where we think it is canceled but the provider keeps
	// billing.
	if err := adapter.CancelSubscription(ctx, sub.ProviderSubID, reason); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	sub.Status = db_models.SubStatusCanceled
	sub.CanceledAt = &now
	sub.AutoRenew = false
	if err := b.ledger.Subscriptions().Save(ctx, sub); err != nil {
		return nil, utils.ErrDatabaseError
	}

	return sub, nil
}

func (b *billingService) GetAccountSubscriptions(ctx context.Context, accountID uuid.UUID) ([]db_models.Subscription, error) {
	subs, err := b.ledger.Subscriptions().ListByAccount(ctx, accountID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	return subs, nil
}

func (b *billingService) ListPlans(ctx context.Context) ([]db_models.Plan, error) {
	plans, err := b.ledger.Plans().GetAllPlans(ctx)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	return plans, nil
}

func (b *billingService) ApplyWebhookEvent(ctx context.Context, ev *WebhookEvent) error {
	if ev == nil {
		return nil
	}

	adapter, err := b.registry.Get(ev.Provider)
	if err != nil {
		return err
	}

	switch ev.Kind {
	case EventSubscriptionActivated, EventSubscriptionUpdated, EventSubscriptionCanceled:
		if ev.Subscription == nil {
			return fmt.Errorf("event %s without subscription payload", ev.Kind)
		}
		unlock := b.locks.Lock(string(ev.Provider) + ":" + ev.Subscription.ProviderSubID)
		defer unlock()
		return b.applySubscriptionEvent(ctx, adapter, ev)

	case EventPaymentSucceeded, EventPaymentFailed, EventPaymentRefunded:
		if ev.Payment == nil {
			return fmt.Errorf("event %s without payment payload", ev.Kind)
		}
		unlock := b.locks.Lock(string(ev.Provider) + ":" + ev.Payment.ProviderTxnID)
		defer unlock()
		return b.applyPaymentEvent(ctx, ev)

	default:
		return fmt.Errorf("unknown webhook event kind %q", ev.Kind)
	}
}

func (b *billingService) applySubscriptionEvent(ctx context.Context, adapter ProviderAdapter, ev *WebhookEvent) error {
	sub, err := b.ledger.Subscriptions().FindByProviderSubID(ctx, ev.Subscription.ProviderSubID)
	if err != nil {
		return utils.ErrDatabaseError
	}

	if sub == nil {
		if ev.Kind == EventSubscriptionCanceled {
			// cancellation for a subscription we never recorded; nothing to do
			return nil
		}
		return b.upsertSubscription(ctx, ev.Provider, adapter, ev.Subscription, ev.OccurredAt)
	}

	// Ordering guard: webhooks can be redelivered and reordered. An event no
	// newer than the last applied one must not overwrite newer state.
	if ev.OccurredAt <= sub.LastEventAt {
		log.Printf("billing: dropping stale %s event for %s (event ts %d <= applied ts %d)",
			ev.Kind, sub.ProviderSubID, ev.OccurredAt, sub.LastEventAt)
		return nil
	}

	switch ev.Kind {
	case EventSubscriptionCanceled:
		if sub.Status != db_models.SubStatusCanceled {
			sub.Status = db_models.SubStatusCanceled
			canceledAt := ev.OccurredAt
			sub.CanceledAt = &canceledAt
			sub.AutoRenew = false
		}
	default:
		status := MapProviderSubscriptionStatus(ev.Provider, ev.Subscription.RawStatus)
		sub.Status = status
		if status == db_models.SubStatusCanceled && sub.CanceledAt == nil {
			canceledAt := ev.OccurredAt
			sub.CanceledAt = &canceledAt
			sub.AutoRenew = false
		}
		if ev.Subscription.PeriodStart > 0 {
			sub.StartsAt = ev.Subscription.PeriodStart
		}
		if ev.Subscription.PeriodEnd > 0 {
			sub.EndsAt = ev.Subscription.PeriodEnd
		}
	}

	sub.LastEventAt = ev.OccurredAt
	if err := b.ledger.Subscriptions().Save(ctx, sub); err != nil {
		return utils.ErrDatabaseError
	}
	return nil
}

// upsertSubscription creates the ledger row for a subscription first seen
// through a provider event or explicit activation. Sparse events (Stripe's
// checkout.session.completed carries little more than ids) are enriched by
// asking the provider for the full subscription.
func (b *billingService) upsertSubscription(ctx context.Context, provider db_models.PaymentProvider, adapter ProviderAdapter, ev *SubscriptionEvent, occurredAt int64) error {
	if ev.PlanCode == "" || ev.AccountRef == "" {
		full, err := adapter.GetSubscription(ctx, ev.ProviderSubID)
		if err != nil {
			return err
		}
		if ev.PlanCode == "" {
			ev.PlanCode = full.PlanCode
		}
		if ev.AccountRef == "" {
			ev.AccountRef = full.AccountRef
		}
		if ev.RawStatus == "" {
			ev.RawStatus = full.RawStatus
		}
		if ev.PeriodStart == 0 {
			ev.PeriodStart = full.PeriodStart
		}
		if ev.PeriodEnd == 0 {
			ev.PeriodEnd = full.PeriodEnd
		}
		if ev.AmountMinor == 0 {
			ev.AmountMinor = full.AmountMinor
		}
		if ev.Currency == "" {
			ev.Currency = full.Currency
		}
	}

	accountID, err := uuid.Parse(ev.AccountRef)
	if err != nil {
		return fmt.Errorf("%w: subscription %s carries no resolvable account reference", utils.ErrAccountNotFound, ev.ProviderSubID)
	}
	account, err := b.ledger.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if account == nil {
		return utils.ErrAccountNotFound
	}

	plan, err := b.ledger.Plans().FindByCode(ctx, ev.PlanCode)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if plan == nil {
		return utils.ErrPlanNotFound
	}

	startsAt := ev.PeriodStart
	if startsAt == 0 {
		startsAt = occurredAt
	}
	endsAt := ev.PeriodEnd
	if endsAt == 0 {
		start := time.Unix(startsAt, 0).UTC()
		switch plan.Period {
		case db_models.PeriodYear:
			endsAt = start.AddDate(1, 0, 0).Unix()
		default:
			endsAt = start.AddDate(0, 1, 0).Unix()
		}
	}

	amount := ev.AmountMinor
	if amount == 0 {
		amount = plan.PriceMinor
	}
	currency := ev.Currency
	if currency == "" {
		currency = plan.Currency
	}

	sub := &db_models.Subscription{
		AccountID:     account.ID,
		PlanID:        plan.ID,
		Status:        MapProviderSubscriptionStatus(provider, ev.RawStatus),
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		AutoRenew:     true,
		Provider:      provider,
		ProviderSubID: ev.ProviderSubID,
		LastEventAt:   occurredAt,
		AmountMinor:   amount,
		Currency:      currency,
	}

	if err := b.ledger.Subscriptions().Insert(ctx, sub); err != nil {
		return utils.ErrDatabaseError
	}
	return nil
}

func (b *billingService) applyPaymentEvent(ctx context.Context, ev *WebhookEvent) error {
	pe := ev.Payment

	existing, err := b.ledger.Payments().FindByProviderTxnID(ctx, pe.ProviderTxnID)
	if err != nil {
		return utils.ErrDatabaseError
	}

	targetStatus := MapProviderPaymentStatus(ev.Provider, pe.RawStatus)

	if existing != nil {
		if ev.Kind == EventPaymentRefunded {
			return b.applyRefund(ctx, existing, ev)
		}
		if existing.Status == targetStatus || ev.OccurredAt <= existing.LastEventAt {
			// Redelivery. A completed charge whose invoice never landed (crash
			// or error after the payment row was written) is finished here
			// instead of being dropped forever.
			if existing.Status == db_models.PayStatusCompleted && !paymentAllocated(existing) {
				return b.invoiceCharge(ctx, existing, pe.ProviderSubID)
			}
			return nil
		}
		existing.Status = targetStatus
		existing.LastEventAt = ev.OccurredAt
		if targetStatus == db_models.PayStatusCompleted && existing.PaidAt == nil {
			paidAt := ev.OccurredAt
			existing.PaidAt = &paidAt
		}
		if pe.FailureReason != "" {
			reason := pe.FailureReason
			existing.FailureReason = &reason
		}
		if err := b.ledger.Payments().Save(ctx, existing); err != nil {
			return utils.ErrDatabaseError
		}
		return nil
	}

	if ev.Kind == EventPaymentRefunded {
		return fmt.Errorf("%w: refund %s references unknown payment %s", utils.ErrPaymentNotFound, pe.ProviderRefundID, pe.ProviderTxnID)
	}

	sub, err := b.ledger.Subscriptions().FindByProviderSubID(ctx, pe.ProviderSubID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if sub == nil {
		return fmt.Errorf("%w: payment %s references unknown subscription %s", utils.ErrSubscriptionNotFound, pe.ProviderTxnID, pe.ProviderSubID)
	}

	payment := &db_models.Payment{
		AccountID:        sub.AccountID,
		SubscriptionID:   &sub.ID,
		AmountMinor:      pe.AmountMinor,
		Currency:         pe.Currency,
		Status:           targetStatus,
		Type:             db_models.PayTypeSubscription,
		Provider:         ev.Provider,
		ProviderTxnID:    pe.ProviderTxnID,
		LastEventAt:      ev.OccurredAt,
		PaymentMethodRef: pe.PaymentMethodRef,
		ReceiptURL:       pe.ReceiptURL,
	}

	switch ev.Kind {
	case EventPaymentSucceeded:
		paidAt := ev.OccurredAt
		payment.PaidAt = &paidAt
		// The payment row, the period invoice and the allocation pass land in
		// one transaction inside RecordSubscriptionCharge; a crash between
		// them cannot strand a completed payment with no invoice.
		return b.invoiceSvc.RecordSubscriptionCharge(ctx, sub, payment)

	case EventPaymentFailed:
		if pe.FailureReason != "" {
			reason := pe.FailureReason
			payment.FailureReason = &reason
		}
		if err := b.ledger.Payments().Insert(ctx, payment); err != nil {
			return utils.ErrDatabaseError
		}
		log.Printf("billing: recorded failed payment %s for subscription %s", pe.ProviderTxnID, sub.ProviderSubID)
		return nil
	}

	return nil
}

// invoiceCharge runs the invoicing step for an already-persisted completed
// payment that has no allocation yet.
func (b *billingService) invoiceCharge(ctx context.Context, payment *db_models.Payment, providerSubID string) error {
	allocated, err := b.ledger.Invoices().HasAllocationForPayment(ctx, payment.ID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if allocated {
		return nil
	}

	sub, err := b.ledger.Subscriptions().FindByProviderSubID(ctx, providerSubID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if sub == nil {
		return fmt.Errorf("%w: payment %s references unknown subscription %s", utils.ErrSubscriptionNotFound, payment.ProviderTxnID, providerSubID)
	}

	log.Printf("billing: invoicing previously uninvoiced payment %s", payment.ProviderTxnID)
	return b.invoiceSvc.RecordSubscriptionCharge(ctx, sub, payment)
}

// applyRefund moves the original payment to refunded and records the refund
// as its own row pointing back at the original via metadata.
func (b *billingService) applyRefund(ctx context.Context, original *db_models.Payment, ev *WebhookEvent) error {
	pe := ev.Payment

	if original.Status == db_models.PayStatusRefunded || ev.OccurredAt <= original.LastEventAt {
		// redelivery, already applied
		return nil
	}

	refundedAt := ev.OccurredAt
	original.Status = db_models.PayStatusRefunded
	original.RefundedAt = &refundedAt
	original.LastEventAt = ev.OccurredAt

	amount := pe.AmountMinor
	if amount == 0 {
		amount = original.AmountMinor
	}
	currency := pe.Currency
	if currency == "" {
		currency = original.Currency
	}

	meta, err := json.Marshal(map[string]interface{}{"refund_of": original.ProviderTxnID})
	if err != nil {
		return err
	}

	return b.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		if err := tx.Payments().Save(ctx, original); err != nil {
			return utils.ErrDatabaseError
		}
		if pe.ProviderRefundID == "" {
			return nil
		}

		dup, err := tx.Payments().FindByProviderTxnID(ctx, pe.ProviderRefundID)
		if err != nil {
			return utils.ErrDatabaseError
		}
		if dup != nil {
			return nil
		}

		refund := &db_models.Payment{
			AccountID:      original.AccountID,
			SubscriptionID: original.SubscriptionID,
			AmountMinor:    amount,
			Currency:       currency,
			Status:         db_models.PayStatusCompleted,
			Type:           db_models.PayTypeRefund,
			Provider:       ev.Provider,
			ProviderTxnID:  pe.ProviderRefundID,
			LastEventAt:    ev.OccurredAt,
			PaidAt:         &refundedAt,
			Metadata:       datatypes.JSON(meta),
		}
		if err := tx.Payments().Insert(ctx, refund); err != nil {
			return utils.ErrDatabaseError
		}
		return nil
	})
}
