package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"visitly/internal/models/db_models"
	"visitly/internal/repositories"
	"visitly/pkg/keylock"
	"visitly/pkg/utils"
)

// Escalation thresholds in calendar days past the oldest open due date.
const (
	warnAfterDays    = 3
	suspendAfterDays = 7
	blockAfterDays   = 30
)

type EscalationService interface {
	// RunEscalationSweep walks every account with open debt and moves it to
	// the severity its oldest overdue invoice warrants. Severity only ever
	// goes up here; lowering it is the allocation engine's or an operator's
	// job. Returns how many accounts changed state.
	RunEscalationSweep(ctx context.Context) (int, error)
	ReactivateAccount(ctx context.Context, accountID uuid.UUID) (*db_models.Account, error)
	SuspendAccount(ctx context.Context, accountID uuid.UUID, reason string) (*db_models.Account, error)
	BlockAccount(ctx context.Context, accountID uuid.UUID) (*db_models.Account, error)
	// ChangeBillingDay moves the account's anchor day of month and returns the
	// next billing date it produces. Rejected while the account carries debt.
	ChangeBillingDay(ctx context.Context, accountID uuid.UUID, day int) (*db_models.Account, time.Time, error)
}

type escalationService struct {
	ledger    repositories.Ledger
	notifier  Notifier
	registry  ProviderRegistry
	sweepLock *keylock.RunLock
}

func NewEscalationService(ledger repositories.Ledger, notifier Notifier, registry ProviderRegistry) EscalationService {
	return &escalationService{
		ledger:    ledger,
		notifier:  notifier,
		registry:  registry,
		sweepLock: &keylock.RunLock{},
	}
}

func (s *escalationService) RunEscalationSweep(ctx context.Context) (int, error) {
	release, ok := s.sweepLock.TryAcquire()
	if !ok {
		log.Println("escalation: sweep already running, skipping")
		return 0, nil
	}
	defer release()

	debts, err := s.ledger.Invoices().OldestOpenPerAccount(ctx)
	if err != nil {
		return 0, utils.ErrDatabaseError
	}

	now := time.Now()
	escalated := 0
	for _, debt := range debts {
		target := targetStatus(utils.DaysSince(debt.OldestDueDate, now))
		if target == db_models.AccountActive {
			continue
		}

		account, err := s.ledger.Accounts().FindByID(ctx, debt.AccountID)
		if err != nil {
			return escalated, utils.ErrDatabaseError
		}
		if account == nil {
			continue
		}
		if target.Severity() <= account.AccountStatus.Severity() {
			continue
		}

		if err := s.escalateTo(ctx, account, target, debt); err != nil {
			// one bad account must not stall the rest of the sweep
			log.Printf("escalation: account %s to %s failed: %v", account.ID, target, err)
			continue
		}
		escalated++
	}

	if escalated > 0 {
		log.Printf("escalation: sweep escalated %d accounts", escalated)
	}
	return escalated, nil
}

func targetStatus(daysOverdue int) db_models.AccountStatus {
	switch {
	case daysOverdue >= blockAfterDays:
		return db_models.AccountBlocked
	case daysOverdue >= suspendAfterDays:
		return db_models.AccountSuspended
	case daysOverdue >= warnAfterDays:
		return db_models.AccountPendingPayment
	default:
		return db_models.AccountActive
	}
}

func (s *escalationService) escalateTo(ctx context.Context, account *db_models.Account, target db_models.AccountStatus, debt repositories.AccountDebt) error {
	now := time.Now().Unix()
	reason := fmt.Sprintf("invoice overdue since %s", utils.FormatRFC3339(utils.FromUnixSeconds(debt.OldestDueDate)))

	err := s.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		account.AccountStatus = target

		switch target {
		case db_models.AccountSuspended:
			account.SuspendedAt = &now
			account.SuspensionReason = &reason
			if err := s.cancelSubscriptions(ctx, tx, account.ID, reason, db_models.SubStatusActive); err != nil {
				return err
			}
		case db_models.AccountBlocked:
			if account.SuspendedAt == nil {
				account.SuspendedAt = &now
			}
			account.SuspensionReason = &reason
			if err := s.cancelSubscriptions(ctx, tx, account.ID, reason, db_models.SubStatusActive, db_models.SubStatusTrialing); err != nil {
				return err
			}
		}

		return tx.Accounts().Save(ctx, account)
	})
	if err != nil {
		return err
	}

	// notify exactly once, on entry into the new state
	go s.notifyEscalation(*account, target, debt, reason)
	return nil
}

func (s *escalationService) notifyEscalation(account db_models.Account, target db_models.AccountStatus, debt repositories.AccountDebt, reason string) {
	ctx := context.Background()
	var err error
	switch target {
	case db_models.AccountPendingPayment:
		err = s.notifier.NotifyPaymentWarning(ctx, &account, debt.TotalDueMinor, debt.OldestDueDate)
	case db_models.AccountSuspended:
		err = s.notifier.NotifyAccountSuspended(ctx, &account, reason)
	case db_models.AccountBlocked:
		err = s.notifier.NotifyAccountBlocked(ctx, &account)
	}
	if err != nil {
		log.Printf("escalation: %s notice for account %s failed: %v", target, account.ID, err)
	}
}

// cancelSubscriptions force-cancels the account's subscriptions in the given
// states. The ledger is authoritative: provider-side cancellation is attempted
// but a provider failure does not keep the subscription alive here.
func (s *escalationService) cancelSubscriptions(ctx context.Context, tx repositories.Ledger, accountID uuid.UUID, reason string, states ...db_models.SubscriptionStatus) error {
	subs, err := tx.Subscriptions().ListByAccount(ctx, accountID, states...)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	for i := range subs {
		sub := &subs[i]

		if adapter, err := s.registry.Get(sub.Provider); err == nil {
			if err := adapter.CancelSubscription(ctx, sub.ProviderSubID, reason); err != nil {
				log.Printf("escalation: provider cancel of %s failed: %v", sub.ProviderSubID, err)
			}
		}

		sub.Status = db_models.SubStatusCanceled
		sub.CanceledAt = &now
		sub.AutoRenew = false
		if err := tx.Subscriptions().Save(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

func (s *escalationService) ReactivateAccount(ctx context.Context, accountID uuid.UUID) (*db_models.Account, error) {
	account, err := s.ledger.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}

	if account.AccountStatus == db_models.AccountActive {
		return account, nil
	}
	if account.PendingBalanceMinor > 0 {
		return nil, fmt.Errorf("%w: account still owes %d", utils.ErrInvalidState, account.PendingBalanceMinor)
	}

	account.AccountStatus = db_models.AccountActive
	account.SuspendedAt = nil
	account.SuspensionReason = nil
	account.PaymentDueDate = nil
	if err := s.ledger.Accounts().Save(ctx, account); err != nil {
		return nil, utils.ErrDatabaseError
	}
	return account, nil
}

func (s *escalationService) SuspendAccount(ctx context.Context, accountID uuid.UUID, reason string) (*db_models.Account, error) {
	account, err := s.ledger.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}

	if account.AccountStatus == db_models.AccountBlocked {
		return nil, fmt.Errorf("%w: blocked account cannot be suspended", utils.ErrInvalidState)
	}
	if account.AccountStatus == db_models.AccountSuspended {
		return account, nil
	}
	if reason == "" {
		reason = "suspended by operator"
	}

	err = s.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		now := time.Now().Unix()
		account.AccountStatus = db_models.AccountSuspended
		account.SuspendedAt = &now
		account.SuspensionReason = &reason
		if err := s.cancelSubscriptions(ctx, tx, account.ID, reason, db_models.SubStatusActive); err != nil {
			return err
		}
		return tx.Accounts().Save(ctx, account)
	})
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	go func(acc db_models.Account) {
		if err := s.notifier.NotifyAccountSuspended(context.Background(), &acc, reason); err != nil {
			log.Printf("escalation: suspension notice for account %s failed: %v", acc.ID, err)
		}
	}(*account)

	return account, nil
}

func (s *escalationService) BlockAccount(ctx context.Context, accountID uuid.UUID) (*db_models.Account, error) {
	account, err := s.ledger.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}
	if account.AccountStatus == db_models.AccountBlocked {
		return account, nil
	}

	reason := "blocked by operator"
	err = s.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		now := time.Now().Unix()
		account.AccountStatus = db_models.AccountBlocked
		if account.SuspendedAt == nil {
			account.SuspendedAt = &now
		}
		account.SuspensionReason = &reason
		if err := s.cancelSubscriptions(ctx, tx, account.ID, reason, db_models.SubStatusActive, db_models.SubStatusTrialing); err != nil {
			return err
		}
		return tx.Accounts().Save(ctx, account)
	})
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	go func(acc db_models.Account) {
		if err := s.notifier.NotifyAccountBlocked(context.Background(), &acc); err != nil {
			log.Printf("escalation: block notice for account %s failed: %v", acc.ID, err)
		}
	}(*account)

	return account, nil
}

func (s *escalationService) ChangeBillingDay(ctx context.Context, accountID uuid.UUID, day int) (*db_models.Account, time.Time, error) {
	account, err := s.ledger.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, time.Time{}, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, time.Time{}, utils.ErrAccountNotFound
	}

	if account.PendingBalanceMinor > 0 {
		return nil, time.Time{}, fmt.Errorf("%w: billing day cannot change while balance is outstanding", utils.ErrInvalidState)
	}

	account.CustomBillingDate = day
	if err := s.ledger.Accounts().Save(ctx, account); err != nil {
		return nil, time.Time{}, utils.ErrDatabaseError
	}

	return account, utils.NextBillingDate(time.Now(), day), nil
}
