package services

import (
	"context"

	"visitly/internal/models/db_models"
)

// Notifier delivers billing lifecycle mail. Callers treat delivery as
// best-effort: a failed send is logged, never propagated into the ledger
// transaction that triggered it.
type Notifier interface {
	NotifyInvoiceIssued(ctx context.Context, account *db_models.Account, invoice *db_models.Invoice) error
	NotifyPaymentWarning(ctx context.Context, account *db_models.Account, dueMinor int64, dueDate int64) error
	NotifyAccountSuspended(ctx context.Context, account *db_models.Account, reason string) error
	NotifyAccountBlocked(ctx context.Context, account *db_models.Account) error
}
