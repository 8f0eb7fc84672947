package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"visitly/internal/models/db_models"
	"visitly/internal/repositories"
	"visitly/pkg/utils"
)

func newEscalationFixture(t *testing.T) (*repositories.MemoryLedger, *MockProviderAdapter, EscalationService) {
	t.Helper()
	ledger := repositories.NewMemoryLedger()
	adapter := NewMockProviderAdapter(db_models.ProviderStripe)
	svc := NewEscalationService(ledger, &stubNotifier{}, NewProviderRegistry(adapter))
	return ledger, adapter, svc
}

func seedActiveSubscription(t *testing.T, ledger *repositories.MemoryLedger, accountID uuid.UUID, status db_models.SubscriptionStatus) *db_models.Subscription {
	t.Helper()
	sub := &db_models.Subscription{
		AccountID:     accountID,
		PlanID:        uuid.New(),
		Status:        status,
		StartsAt:      time.Now().Add(-30 * 24 * time.Hour).Unix(),
		EndsAt:        time.Now().Add(335 * 24 * time.Hour).Unix(),
		AutoRenew:     true,
		Provider:      db_models.ProviderStripe,
		ProviderSubID: "sub_" + uuid.NewString(),
	}
	if err := ledger.Subscriptions().Insert(context.Background(), sub); err != nil {
		t.Fatalf("seeding subscription: %v", err)
	}
	return sub
}

func daysAgo(n int) int64 {
	return time.Now().AddDate(0, 0, -n).Unix()
}

func TestEscalationSweepThresholds(t *testing.T) {
	tests := []struct {
		name        string
		daysOverdue int
		want        db_models.AccountStatus
	}{
		{"2 days stays active", 2, db_models.AccountActive},
		{"3 days warns", 3, db_models.AccountPendingPayment},
		{"6 days still warning", 6, db_models.AccountPendingPayment},
		{"7 days suspends", 7, db_models.AccountSuspended},
		{"10 days suspends", 10, db_models.AccountSuspended},
		{"30 days blocks", 30, db_models.AccountBlocked},
		{"90 days blocks", 90, db_models.AccountBlocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, _, svc := newEscalationFixture(t)
			account := seedAccount(t, ledger)
			seedOpenInvoice(t, ledger, account.ID, 1000, daysAgo(tt.daysOverdue))

			if _, err := svc.RunEscalationSweep(context.Background()); err != nil {
				t.Fatalf("RunEscalationSweep: %v", err)
			}

			got, _ := ledger.Accounts().FindByID(context.Background(), account.ID)
			if got.AccountStatus != tt.want {
				t.Errorf("status = %s, want %s", got.AccountStatus, tt.want)
			}
		})
	}
}

func TestEscalationSweepCancelsSubscriptionsOnSuspend(t *testing.T) {
	ledger, adapter, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)
	active := seedActiveSubscription(t, ledger, account.ID, db_models.SubStatusActive)
	trialing := seedActiveSubscription(t, ledger, account.ID, db_models.SubStatusTrialing)
	seedOpenInvoice(t, ledger, account.ID, 1000, daysAgo(10))

	if _, err := svc.RunEscalationSweep(context.Background()); err != nil {
		t.Fatalf("RunEscalationSweep: %v", err)
	}

	ctx := context.Background()
	gotActive, _ := ledger.Subscriptions().FindByID(ctx, active.ID)
	if gotActive.Status != db_models.SubStatusCanceled {
		t.Errorf("active sub status = %s, want canceled", gotActive.Status)
	}
	if gotActive.AutoRenew {
		t.Error("canceled sub still has auto-renew")
	}

	// suspension only takes the active ones; trials survive until block
	gotTrialing, _ := ledger.Subscriptions().FindByID(ctx, trialing.ID)
	if gotTrialing.Status != db_models.SubStatusTrialing {
		t.Errorf("trialing sub status = %s, want trialing", gotTrialing.Status)
	}

	if len(adapter.Canceled) != 1 || adapter.Canceled[0] != active.ProviderSubID {
		t.Errorf("provider cancellations = %v, want [%s]", adapter.Canceled, active.ProviderSubID)
	}

	got, _ := ledger.Accounts().FindByID(ctx, account.ID)
	if got.SuspendedAt == nil || got.SuspensionReason == nil {
		t.Error("suspension fields not set")
	}
}

func TestEscalationSweepBlocksTrialsToo(t *testing.T) {
	ledger, _, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)
	trialing := seedActiveSubscription(t, ledger, account.ID, db_models.SubStatusTrialing)
	seedOpenInvoice(t, ledger, account.ID, 1000, daysAgo(45))

	if _, err := svc.RunEscalationSweep(context.Background()); err != nil {
		t.Fatalf("RunEscalationSweep: %v", err)
	}

	got, _ := ledger.Subscriptions().FindByID(context.Background(), trialing.ID)
	if got.Status != db_models.SubStatusCanceled {
		t.Errorf("trialing sub status = %s, want canceled", got.Status)
	}
}

func TestEscalationSweepNeverLowersSeverity(t *testing.T) {
	ledger, _, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)
	account.AccountStatus = db_models.AccountSuspended
	if err := ledger.Accounts().Save(context.Background(), account); err != nil {
		t.Fatal(err)
	}
	// debt only 4 days old, which on its own would mean pending_payment
	seedOpenInvoice(t, ledger, account.ID, 1000, daysAgo(4))

	escalated, err := svc.RunEscalationSweep(context.Background())
	if err != nil {
		t.Fatalf("RunEscalationSweep: %v", err)
	}
	if escalated != 0 {
		t.Errorf("escalated = %d, want 0", escalated)
	}

	got, _ := ledger.Accounts().FindByID(context.Background(), account.ID)
	if got.AccountStatus != db_models.AccountSuspended {
		t.Errorf("status = %s, suspended account must not be downgraded by the sweep", got.AccountStatus)
	}
}

func TestEscalationSweepIsIdempotent(t *testing.T) {
	ledger, adapter, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)
	seedActiveSubscription(t, ledger, account.ID, db_models.SubStatusActive)
	seedOpenInvoice(t, ledger, account.ID, 1000, daysAgo(10))

	first, err := svc.RunEscalationSweep(context.Background())
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first != 1 {
		t.Errorf("first sweep escalated %d, want 1", first)
	}

	second, err := svc.RunEscalationSweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second != 0 {
		t.Errorf("second sweep escalated %d, want 0", second)
	}
	if len(adapter.Canceled) != 1 {
		t.Errorf("provider cancel called %d times, want 1", len(adapter.Canceled))
	}
}

func TestReactivateAccountRequiresZeroBalance(t *testing.T) {
	ledger, _, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)
	account.AccountStatus = db_models.AccountSuspended
	account.PendingBalanceMinor = 500
	if err := ledger.Accounts().Save(context.Background(), account); err != nil {
		t.Fatal(err)
	}

	_, err := svc.ReactivateAccount(context.Background(), account.ID)
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}

	got, _ := ledger.Accounts().FindByID(context.Background(), account.ID)
	if got.AccountStatus != db_models.AccountSuspended {
		t.Errorf("status = %s, want suspended", got.AccountStatus)
	}
}

func TestReactivateAccountClearsSuspension(t *testing.T) {
	ledger, _, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)
	suspendedAt := daysAgo(5)
	reason := "overdue"
	due := daysAgo(12)
	account.AccountStatus = db_models.AccountBlocked
	account.SuspendedAt = &suspendedAt
	account.SuspensionReason = &reason
	account.PaymentDueDate = &due
	if err := ledger.Accounts().Save(context.Background(), account); err != nil {
		t.Fatal(err)
	}

	got, err := svc.ReactivateAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("ReactivateAccount: %v", err)
	}
	if got.AccountStatus != db_models.AccountActive {
		t.Errorf("status = %s, want active", got.AccountStatus)
	}
	if got.SuspendedAt != nil || got.SuspensionReason != nil || got.PaymentDueDate != nil {
		t.Error("suspension fields not cleared")
	}
}

func TestReactivateUnknownAccount(t *testing.T) {
	_, _, svc := newEscalationFixture(t)

	_, err := svc.ReactivateAccount(context.Background(), uuid.New())
	if !errors.Is(err, utils.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestSuspendAccountRejectsBlocked(t *testing.T) {
	ledger, _, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)
	account.AccountStatus = db_models.AccountBlocked
	if err := ledger.Accounts().Save(context.Background(), account); err != nil {
		t.Fatal(err)
	}

	_, err := svc.SuspendAccount(context.Background(), account.ID, "manual")
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestChangeBillingDayRejectedWithDebt(t *testing.T) {
	ledger, _, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)
	account.PendingBalanceMinor = 1000
	if err := ledger.Accounts().Save(context.Background(), account); err != nil {
		t.Fatal(err)
	}

	_, _, err := svc.ChangeBillingDay(context.Background(), account.ID, 15)
	if !errors.Is(err, utils.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestChangeBillingDayReturnsNextDate(t *testing.T) {
	ledger, _, svc := newEscalationFixture(t)
	account := seedAccount(t, ledger)

	got, next, err := svc.ChangeBillingDay(context.Background(), account.ID, 15)
	if err != nil {
		t.Fatalf("ChangeBillingDay: %v", err)
	}
	if got.CustomBillingDate != 15 {
		t.Errorf("billing day = %d, want 15", got.CustomBillingDate)
	}
	if !next.After(time.Now()) {
		t.Errorf("next billing date %v is not in the future", next)
	}
	if next.Day() != 15 && next.Day() != utils.NextBillingDate(time.Now(), 15).Day() {
		t.Errorf("next billing date lands on day %d", next.Day())
	}
}
