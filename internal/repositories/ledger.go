package repositories

import (
	"context"
	"gorm.io/gorm"
)

// Ledger bundles the per-aggregate stores so the allocation and escalation
// logic can run against them without knowing about gorm. Transaction hands the
// callback a Ledger bound to the database transaction; either every write in
// the callback commits or none do.
type Ledger interface {
	Accounts() AccountRepository
	Plans() PlanRepository
	Subscriptions() SubscriptionRepository
	Payments() PaymentRepository
	Invoices() InvoiceRepository
	Transaction(ctx context.Context, fn func(tx Ledger) error) error
}

type gormLedger struct {
	db            *gorm.DB
	accounts      AccountRepository
	plans         PlanRepository
	subscriptions SubscriptionRepository
	payments      PaymentRepository
	invoices      InvoiceRepository
}

func NewLedger(db *gorm.DB) Ledger {
	return &gormLedger{
		db:            db,
		accounts:      NewAccountRepository(db),
		plans:         NewPlanRepository(db),
		subscriptions: NewSubscriptionRepository(db),
		payments:      NewPaymentRepository(db),
		invoices:      NewInvoiceRepository(db),
	}
}

func (l *gormLedger) Accounts() AccountRepository           { return l.accounts }
func (l *gormLedger) Plans() PlanRepository                 { return l.plans }
func (l *gormLedger) Subscriptions() SubscriptionRepository { return l.subscriptions }
func (l *gormLedger) Payments() PaymentRepository           { return l.payments }
func (l *gormLedger) Invoices() InvoiceRepository           { return l.invoices }

func (l *gormLedger) Transaction(ctx context.Context, fn func(tx Ledger) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewLedger(tx))
	})
}
