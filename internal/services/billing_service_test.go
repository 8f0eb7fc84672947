package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"visitly/internal/models/db_models"
	"visitly/internal/repositories"
	"visitly/pkg/utils"
)

func newBillingFixture(t *testing.T) (*repositories.MemoryLedger, *MockProviderAdapter, BillingService) {
	t.Helper()
	ledger := repositories.NewMemoryLedger()
	adapter := NewMockProviderAdapter(db_models.ProviderStripe)
	invoiceSvc := NewInvoiceService(ledger, &stubNotifier{})
	svc := NewBillingService(ledger, NewProviderRegistry(adapter), invoiceSvc)
	return ledger, adapter, svc
}

func seedPlan(ledger *repositories.MemoryLedger) *db_models.Plan {
	plan := &db_models.Plan{
		Code:       "premium_monthly",
		Name:       "Premium",
		Tier:       db_models.TierPremium,
		Period:     db_models.PeriodMonth,
		PriceMinor: 2900,
		Currency:   "USD",
		IsActive:   true,
	}
	ledger.SeedPlan(plan)
	return plan
}

func subscriptionEvent(accountRef string, occurredAt int64) *WebhookEvent {
	return &WebhookEvent{
		Provider:   db_models.ProviderStripe,
		Kind:       EventSubscriptionActivated,
		OccurredAt: occurredAt,
		Subscription: &SubscriptionEvent{
			ProviderSubID: "sub_123",
			RawStatus:     "active",
			PlanCode:      "premium_monthly",
			AccountRef:    accountRef,
			PeriodStart:   occurredAt,
			PeriodEnd:     occurredAt + 30*86400,
			AmountMinor:   2900,
			Currency:      "USD",
		},
	}
}

func TestWebhookActivationCreatesSubscription(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	plan := seedPlan(ledger)

	now := time.Now().Unix()
	if err := svc.ApplyWebhookEvent(context.Background(), subscriptionEvent(account.ID.String(), now)); err != nil {
		t.Fatalf("ApplyWebhookEvent: %v", err)
	}

	sub, err := ledger.Subscriptions().FindByProviderSubID(context.Background(), "sub_123")
	if err != nil || sub == nil {
		t.Fatalf("subscription not created: %v", err)
	}
	if sub.Status != db_models.SubStatusActive {
		t.Errorf("status = %s, want active", sub.Status)
	}
	if sub.AccountID != account.ID || sub.PlanID != plan.ID {
		t.Error("subscription not linked to account and plan")
	}
	if sub.LastEventAt != now {
		t.Errorf("last event at = %d, want %d", sub.LastEventAt, now)
	}
}

func TestWebhookActivationIsIdempotent(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	ev := subscriptionEvent(account.ID.String(), time.Now().Unix())
	if err := svc.ApplyWebhookEvent(context.Background(), ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// exact redelivery has the same OccurredAt and must be a no-op
	if err := svc.ApplyWebhookEvent(context.Background(), ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	subs, _ := ledger.Subscriptions().ListByAccount(context.Background(), account.ID)
	if len(subs) != 1 {
		t.Fatalf("subscription count = %d, want 1", len(subs))
	}
}

func TestWebhookStaleEventIsDropped(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	now := time.Now().Unix()
	if err := svc.ApplyWebhookEvent(context.Background(), subscriptionEvent(account.ID.String(), now)); err != nil {
		t.Fatalf("activation: %v", err)
	}

	// a cancellation that happened before the activation arrives late
	stale := &WebhookEvent{
		Provider:   db_models.ProviderStripe,
		Kind:       EventSubscriptionCanceled,
		OccurredAt: now - 60,
		Subscription: &SubscriptionEvent{
			ProviderSubID: "sub_123",
			RawStatus:     "canceled",
		},
	}
	if err := svc.ApplyWebhookEvent(context.Background(), stale); err != nil {
		t.Fatalf("stale delivery: %v", err)
	}

	sub, _ := ledger.Subscriptions().FindByProviderSubID(context.Background(), "sub_123")
	if sub.Status != db_models.SubStatusActive {
		t.Errorf("status = %s, stale cancellation must not overwrite newer state", sub.Status)
	}
}

func TestWebhookCancellationAppliesInOrder(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	now := time.Now().Unix()
	if err := svc.ApplyWebhookEvent(context.Background(), subscriptionEvent(account.ID.String(), now)); err != nil {
		t.Fatalf("activation: %v", err)
	}

	cancel := &WebhookEvent{
		Provider:   db_models.ProviderStripe,
		Kind:       EventSubscriptionCanceled,
		OccurredAt: now + 60,
		Subscription: &SubscriptionEvent{
			ProviderSubID: "sub_123",
			RawStatus:     "canceled",
		},
	}
	if err := svc.ApplyWebhookEvent(context.Background(), cancel); err != nil {
		t.Fatalf("cancellation: %v", err)
	}

	sub, _ := ledger.Subscriptions().FindByProviderSubID(context.Background(), "sub_123")
	if sub.Status != db_models.SubStatusCanceled {
		t.Errorf("status = %s, want canceled", sub.Status)
	}
	if sub.CanceledAt == nil || sub.AutoRenew {
		t.Error("cancellation fields not set")
	}
}

func TestWebhookUnknownStatusMapsToPending(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	ev := subscriptionEvent(account.ID.String(), time.Now().Unix())
	ev.Subscription.RawStatus = "brand_new_provider_state"

	if err := svc.ApplyWebhookEvent(context.Background(), ev); err != nil {
		t.Fatalf("ApplyWebhookEvent: %v", err)
	}

	sub, _ := ledger.Subscriptions().FindByProviderSubID(context.Background(), "sub_123")
	if sub.Status != db_models.SubStatusPending {
		t.Errorf("status = %s, unknown raw status must map to pending", sub.Status)
	}
}

func paymentEvent(txnID string, occurredAt int64) *WebhookEvent {
	return &WebhookEvent{
		Provider:   db_models.ProviderStripe,
		Kind:       EventPaymentSucceeded,
		OccurredAt: occurredAt,
		Payment: &PaymentEvent{
			ProviderTxnID: txnID,
			ProviderSubID: "sub_123",
			AmountMinor:   2900,
			Currency:      "USD",
			RawStatus:     "paid",
		},
	}
}

func TestWebhookPaymentSettlesCharge(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	ctx := context.Background()
	now := time.Now().Unix()
	if err := svc.ApplyWebhookEvent(ctx, subscriptionEvent(account.ID.String(), now)); err != nil {
		t.Fatalf("activation: %v", err)
	}
	if err := svc.ApplyWebhookEvent(ctx, paymentEvent("txn_1", now+10)); err != nil {
		t.Fatalf("payment: %v", err)
	}

	payment, _ := ledger.Payments().FindByProviderTxnID(ctx, "txn_1")
	if payment == nil || payment.Status != db_models.PayStatusCompleted {
		t.Fatalf("payment not recorded as completed: %+v", payment)
	}
	if payment.PaidAt == nil {
		t.Error("paid_at not set")
	}

	// the renewal produced its period invoice and the charge settled it
	invoices, _ := ledger.Invoices().ListByAccount(ctx, account.ID, nil, 0, 0)
	if len(invoices) != 1 {
		t.Fatalf("invoice count = %d, want 1", len(invoices))
	}
	if invoices[0].Status != db_models.InvStatusPaid {
		t.Errorf("invoice status = %s, want paid", invoices[0].Status)
	}
	if invoices[0].AmountPaid != 2900 || invoices[0].AmountDue != 0 {
		t.Errorf("invoice amounts = paid %d / due %d", invoices[0].AmountPaid, invoices[0].AmountDue)
	}

	acc, _ := ledger.Accounts().FindByID(ctx, account.ID)
	if acc.PendingBalanceMinor != 0 {
		t.Errorf("pending balance = %d, want 0", acc.PendingBalanceMinor)
	}
}

func TestWebhookPaymentRedeliveryIsDeduplicated(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	ctx := context.Background()
	now := time.Now().Unix()
	if err := svc.ApplyWebhookEvent(ctx, subscriptionEvent(account.ID.String(), now)); err != nil {
		t.Fatalf("activation: %v", err)
	}

	ev := paymentEvent("txn_1", now+10)
	if err := svc.ApplyWebhookEvent(ctx, ev); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.ApplyWebhookEvent(ctx, ev); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	payments, _ := ledger.Payments().ListByAccount(ctx, account.ID)
	if len(payments) != 1 {
		t.Fatalf("payment count = %d, want 1", len(payments))
	}
	invoices, _ := ledger.Invoices().ListByAccount(ctx, account.ID, nil, 0, 0)
	if len(invoices) != 1 {
		t.Fatalf("invoice count = %d, want 1; redelivery must not double-bill", len(invoices))
	}
}

func TestWebhookRedeliveryInvoicesStrandedPayment(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	ctx := context.Background()
	now := time.Now().Unix()
	if err := svc.ApplyWebhookEvent(ctx, subscriptionEvent(account.ID.String(), now)); err != nil {
		t.Fatalf("activation: %v", err)
	}
	sub, _ := ledger.Subscriptions().FindByProviderSubID(ctx, "sub_123")

	// a completed payment row with no invoice behind it, as left by a process
	// that died between writing the payment and invoicing the charge
	paidAt := now + 10
	stranded := &db_models.Payment{
		AccountID:      account.ID,
		SubscriptionID: &sub.ID,
		AmountMinor:    2900,
		Currency:       "USD",
		Status:         db_models.PayStatusCompleted,
		Type:           db_models.PayTypeSubscription,
		Provider:       db_models.ProviderStripe,
		ProviderTxnID:  "txn_1",
		LastEventAt:    paidAt,
		PaidAt:         &paidAt,
	}
	if err := ledger.Payments().Insert(ctx, stranded); err != nil {
		t.Fatalf("seed payment: %v", err)
	}

	// the provider redelivers the same event; it must finish the invoicing
	// instead of treating the row as fully applied
	if err := svc.ApplyWebhookEvent(ctx, paymentEvent("txn_1", paidAt)); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	invoices, _ := ledger.Invoices().ListByAccount(ctx, account.ID, nil, 0, 0)
	if len(invoices) != 1 {
		t.Fatalf("invoice count after redelivery = %d, want 1", len(invoices))
	}
	if invoices[0].Status != db_models.InvStatusPaid {
		t.Errorf("invoice status = %s, want paid", invoices[0].Status)
	}

	acc, _ := ledger.Accounts().FindByID(ctx, account.ID)
	if acc.PendingBalanceMinor != 0 {
		t.Errorf("pending balance = %d, want 0", acc.PendingBalanceMinor)
	}

	// a further redelivery sees the allocation and stays a no-op
	if err := svc.ApplyWebhookEvent(ctx, paymentEvent("txn_1", paidAt)); err != nil {
		t.Fatalf("second redelivery: %v", err)
	}
	invoices, _ = ledger.Invoices().ListByAccount(ctx, account.ID, nil, 0, 0)
	if len(invoices) != 1 {
		t.Fatalf("invoice count after second redelivery = %d, want 1", len(invoices))
	}
	payments, _ := ledger.Payments().ListByAccount(ctx, account.ID)
	if len(payments) != 1 {
		t.Fatalf("payment count = %d, want 1", len(payments))
	}
}

func TestWebhookPaymentFailureRecordsNoInvoice(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	ctx := context.Background()
	now := time.Now().Unix()
	if err := svc.ApplyWebhookEvent(ctx, subscriptionEvent(account.ID.String(), now)); err != nil {
		t.Fatalf("activation: %v", err)
	}

	ev := &WebhookEvent{
		Provider:   db_models.ProviderStripe,
		Kind:       EventPaymentFailed,
		OccurredAt: now + 10,
		Payment: &PaymentEvent{
			ProviderTxnID: "txn_fail",
			ProviderSubID: "sub_123",
			AmountMinor:   2900,
			Currency:      "USD",
			RawStatus:     "failed",
			FailureReason: "card_declined",
		},
	}
	if err := svc.ApplyWebhookEvent(ctx, ev); err != nil {
		t.Fatalf("failure event: %v", err)
	}

	payment, _ := ledger.Payments().FindByProviderTxnID(ctx, "txn_fail")
	if payment == nil || payment.Status != db_models.PayStatusFailed {
		t.Fatalf("failed payment not recorded: %+v", payment)
	}
	if payment.FailureReason == nil || *payment.FailureReason != "card_declined" {
		t.Error("failure reason not kept")
	}

	invoices, _ := ledger.Invoices().ListByAccount(ctx, account.ID, nil, 0, 0)
	if len(invoices) != 0 {
		t.Errorf("invoice count = %d, failed charge must not invoice", len(invoices))
	}
}

func refundEvent(txnID, refundID string, amountMinor, occurredAt int64) *WebhookEvent {
	return &WebhookEvent{
		Provider:   db_models.ProviderStripe,
		Kind:       EventPaymentRefunded,
		OccurredAt: occurredAt,
		Payment: &PaymentEvent{
			ProviderTxnID:    txnID,
			ProviderRefundID: refundID,
			AmountMinor:      amountMinor,
			Currency:         "USD",
			RawStatus:        "refunded",
		},
	}
}

func TestWebhookRefundMarksPaymentRefunded(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	ctx := context.Background()
	now := time.Now().Unix()
	if err := svc.ApplyWebhookEvent(ctx, subscriptionEvent(account.ID.String(), now)); err != nil {
		t.Fatalf("activation: %v", err)
	}
	if err := svc.ApplyWebhookEvent(ctx, paymentEvent("txn_1", now+10)); err != nil {
		t.Fatalf("payment: %v", err)
	}

	if err := svc.ApplyWebhookEvent(ctx, refundEvent("txn_1", "re_1", 2900, now+20)); err != nil {
		t.Fatalf("refund: %v", err)
	}

	original, _ := ledger.Payments().FindByProviderTxnID(ctx, "txn_1")
	if original.Status != db_models.PayStatusRefunded {
		t.Errorf("original status = %s, want refunded", original.Status)
	}
	if original.RefundedAt == nil {
		t.Error("refunded_at not set on the original payment")
	}

	refund, _ := ledger.Payments().FindByProviderTxnID(ctx, "re_1")
	if refund == nil {
		t.Fatal("refund row not recorded")
	}
	if refund.Type != db_models.PayTypeRefund || refund.AmountMinor != 2900 {
		t.Errorf("refund row = type %s amount %d", refund.Type, refund.AmountMinor)
	}
	if !strings.Contains(string(refund.Metadata), "txn_1") {
		t.Errorf("refund metadata %s does not reference the original payment", refund.Metadata)
	}

	// redelivery stays a no-op
	if err := svc.ApplyWebhookEvent(ctx, refundEvent("txn_1", "re_1", 2900, now+20)); err != nil {
		t.Fatalf("refund redelivery: %v", err)
	}
	payments, _ := ledger.Payments().ListByAccount(ctx, account.ID)
	if len(payments) != 2 {
		t.Fatalf("payment count = %d, want original plus one refund row", len(payments))
	}
}

func TestWebhookRefundForUnknownPayment(t *testing.T) {
	_, _, svc := newBillingFixture(t)

	err := svc.ApplyWebhookEvent(context.Background(), refundEvent("txn_ghost", "re_1", 2900, time.Now().Unix()))
	if !errors.Is(err, utils.ErrPaymentNotFound) {
		t.Fatalf("err = %v, want ErrPaymentNotFound", err)
	}
}

func TestWebhookPaymentForUnknownSubscription(t *testing.T) {
	_, _, svc := newBillingFixture(t)

	err := svc.ApplyWebhookEvent(context.Background(), paymentEvent("txn_1", time.Now().Unix()))
	if !errors.Is(err, utils.ErrSubscriptionNotFound) {
		t.Fatalf("err = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestCreateCheckoutUnknownPlan(t *testing.T) {
	ledger, _, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)

	_, err := svc.CreateCheckout(context.Background(), account.ID, "nonexistent", db_models.ProviderStripe)
	if !errors.Is(err, utils.ErrPlanNotFound) {
		t.Fatalf("err = %v, want ErrPlanNotFound", err)
	}
}

func TestCreateCheckoutWritesNothing(t *testing.T) {
	ledger, adapter, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	session, err := svc.CreateCheckout(context.Background(), account.ID, "premium_monthly", db_models.ProviderStripe)
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if session.RedirectURL == "" || session.ExternalRef == "" {
		t.Error("checkout session incomplete")
	}
	if adapter.CheckoutCalls != 1 {
		t.Errorf("checkout calls = %d, want 1", adapter.CheckoutCalls)
	}

	subs, _ := ledger.Subscriptions().ListByAccount(context.Background(), account.ID)
	if len(subs) != 0 {
		t.Errorf("subscription count = %d, checkout must not write the ledger", len(subs))
	}
}

func TestActivateSubscriptionFetchesFromProvider(t *testing.T) {
	ledger, adapter, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	seedPlan(ledger)

	now := time.Now().Unix()
	adapter.Subscriptions["sub_ext"] = &SubscriptionEvent{
		ProviderSubID: "sub_ext",
		RawStatus:     "active",
		PlanCode:      "premium_monthly",
		PeriodStart:   now,
		PeriodEnd:     now + 30*86400,
		AmountMinor:   2900,
		Currency:      "USD",
	}

	sub, err := svc.ActivateSubscription(context.Background(), account.ID, "sub_ext", db_models.ProviderStripe)
	if err != nil {
		t.Fatalf("ActivateSubscription: %v", err)
	}
	if sub.Status != db_models.SubStatusActive {
		t.Errorf("status = %s, want active", sub.Status)
	}
	if sub.AccountID != account.ID {
		t.Error("subscription not attributed to the activating account")
	}

	// second activation returns the existing row
	again, err := svc.ActivateSubscription(context.Background(), account.ID, "sub_ext", db_models.ProviderStripe)
	if err != nil {
		t.Fatalf("second ActivateSubscription: %v", err)
	}
	if again.ID != sub.ID {
		t.Error("activation is not idempotent")
	}
}

func TestCancelSubscriptionProviderFirst(t *testing.T) {
	ledger, adapter, svc := newBillingFixture(t)
	account := seedAccount(t, ledger)
	sub := seedActiveSubscription(t, ledger, account.ID, db_models.SubStatusActive)

	adapter.CancelSubscriptionErr = errors.New("provider down")

	_, err := svc.CancelSubscription(context.Background(), sub.ID, "too expensive")
	if err == nil {
		t.Fatal("expected error when provider cancel fails")
	}

	// ledger untouched: the provider still bills, so we must still show active
	got, _ := ledger.Subscriptions().FindByID(context.Background(), sub.ID)
	if got.Status != db_models.SubStatusActive {
		t.Errorf("status = %s, want active after provider failure", got.Status)
	}

	adapter.CancelSubscriptionErr = nil
	canceled, err := svc.CancelSubscription(context.Background(), sub.ID, "too expensive")
	if err != nil {
		t.Fatalf("CancelSubscription: %v", err)
	}
	if canceled.Status != db_models.SubStatusCanceled || canceled.CanceledAt == nil || canceled.AutoRenew {
		t.Errorf("cancellation state not recorded: %+v", canceled)
	}
}
