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
	"visitly/internal/models/request_models"
	"visitly/internal/repositories"
	"visitly/pkg/keylock"
	"visitly/pkg/utils"
)

// AllocationResult reports what one payment did to the account's open
// invoices. UnappliedMinor is any remainder that exceeded the open debt; it
// is surfaced here and on the payment's metadata rather than silently kept.
type AllocationResult struct {
	PaymentID      uuid.UUID `json:"payment_id"`
	AppliedMinor   int64     `json:"applied_minor"`
	UnappliedMinor int64     `json:"unapplied_minor"`
	InvoicesClosed []string  `json:"invoices_closed"`
	Reactivated    bool      `json:"reactivated"`
}

type InvoiceService interface {
	CreateInvoice(ctx context.Context, req *request_models.CreateInvoiceRequest) (*db_models.Invoice, error)
	// RecordSubscriptionCharge writes the period invoice for a completed
	// renewal charge and runs the allocation pass in the same transaction.
	// An unsaved payment is inserted inside that transaction too, so a crash
	// can never leave a completed payment behind without its invoice.
	RecordSubscriptionCharge(ctx context.Context, sub *db_models.Subscription, payment *db_models.Payment) error
	// ApplyPayment allocates a completed payment across the account's open
	// invoices, oldest due date first. Replays of an already-allocated payment
	// return ErrDuplicateApplication; callers treat that as success.
	ApplyPayment(ctx context.Context, payment *db_models.Payment) (*AllocationResult, error)
	MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, req *request_models.MarkInvoicePaidRequest) (*db_models.Invoice, error)
	CancelInvoice(ctx context.Context, invoiceID uuid.UUID) (*db_models.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*db_models.Invoice, error)
	GetAccountInvoices(ctx context.Context, accountID uuid.UUID, status *db_models.InvoiceStatus, page, pageSize int) ([]db_models.Invoice, error)
	// RunOverdueSweep flips pending invoices past due to overdue. Safe to run
	// on a timer; overlapping runs are skipped.
	RunOverdueSweep(ctx context.Context) (int64, error)
}

type invoiceService struct {
	ledger    repositories.Ledger
	notifier  Notifier
	locks     *keylock.KeyedMutex
	sweepLock *keylock.RunLock
}

func NewInvoiceService(ledger repositories.Ledger, notifier Notifier) InvoiceService {
	return &invoiceService{
		ledger:    ledger,
		notifier:  notifier,
		locks:     keylock.NewKeyedMutex(),
		sweepLock: &keylock.RunLock{},
	}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, req *request_models.CreateInvoiceRequest) (*db_models.Invoice, error) {
	account, err := s.ledger.Accounts().FindByID(ctx, req.AccountID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}

	items := make([]db_models.InvoiceItem, 0, len(req.Items))
	var subtotal int64
	for _, it := range req.Items {
		line := it.Quantity * it.UnitPrice
		subtotal += line
		items = append(items, db_models.InvoiceItem{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  line,
		})
	}

	total := subtotal + req.TaxMinor - req.DiscountMinor
	if total < 0 {
		return nil, fmt.Errorf("%w: discount exceeds invoice total", utils.ErrInvalidState)
	}

	unlock := s.locks.Lock(req.AccountID.String())
	defer unlock()

	var invoice *db_models.Invoice
	err = s.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		now := time.Now().Unix()
		invoice = &db_models.Invoice{
			AccountID:      req.AccountID,
			SubscriptionID: req.SubscriptionID,
			IssueDate:      now,
			DueDate:        req.DueDate,
			SubtotalMinor:  subtotal,
			TaxMinor:       req.TaxMinor,
			DiscountMinor:  req.DiscountMinor,
			TotalMinor:     total,
			AmountPaid:     0,
			AmountDue:      total,
			Status:         db_models.InvStatusPending,
			Items:          items,
		}
		if err := s.insertNumbered(ctx, tx, invoice); err != nil {
			return err
		}
		return s.refreshAccountDebt(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}

	go func(acc db_models.Account, inv db_models.Invoice) {
		if err := s.notifier.NotifyInvoiceIssued(context.Background(), &acc, &inv); err != nil {
			log.Printf("invoice: issued notice for %s failed: %v", inv.Number, err)
		}
	}(*account, *invoice)

	return invoice, nil
}

func (s *invoiceService) RecordSubscriptionCharge(ctx context.Context, sub *db_models.Subscription, payment *db_models.Payment) error {
	account, err := s.ledger.Accounts().FindByID(ctx, sub.AccountID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if account == nil {
		return utils.ErrAccountNotFound
	}

	plan, err := s.ledger.Plans().FindByID(ctx, sub.PlanID)
	if err != nil {
		return utils.ErrDatabaseError
	}

	description := "Subscription renewal"
	if plan != nil {
		description = fmt.Sprintf("%s plan, %s to %s",
			plan.Code,
			utils.FormatRFC3339(utils.FromUnixSeconds(sub.StartsAt)),
			utils.FormatRFC3339(utils.FromUnixSeconds(sub.EndsAt)))
	}

	unlock := s.locks.Lock(sub.AccountID.String())
	defer unlock()

	return s.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		if payment.ID == uuid.Nil {
			if err := tx.Payments().Insert(ctx, payment); err != nil {
				return utils.ErrDatabaseError
			}
		}

		now := time.Now().Unix()
		invoice := &db_models.Invoice{
			AccountID:      sub.AccountID,
			SubscriptionID: &sub.ID,
			IssueDate:      now,
			DueDate:        now,
			SubtotalMinor:  payment.AmountMinor,
			TotalMinor:     payment.AmountMinor,
			AmountDue:      payment.AmountMinor,
			Status:         db_models.InvStatusPending,
			Items: []db_models.InvoiceItem{{
				Description: description,
				Quantity:    1,
				UnitPrice:   payment.AmountMinor,
				TotalPrice:  payment.AmountMinor,
			}},
		}
		if err := s.insertNumbered(ctx, tx, invoice); err != nil {
			return err
		}
		_, err := s.allocate(ctx, tx, account, payment)
		return err
	})
}

func (s *invoiceService) ApplyPayment(ctx context.Context, payment *db_models.Payment) (*AllocationResult, error) {
	if payment.Status != db_models.PayStatusCompleted {
		return nil, fmt.Errorf("%w: only completed payments can be allocated", utils.ErrInvalidState)
	}

	account, err := s.ledger.Accounts().FindByID(ctx, payment.AccountID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}

	unlock := s.locks.Lock(payment.AccountID.String())
	defer unlock()

	var result *AllocationResult
	err = s.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		result, err = s.allocate(ctx, tx, account, payment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// allocate runs the oldest-first allocation pass inside the caller's
// transaction and refreshes the account aggregates afterwards.
func (s *invoiceService) allocate(ctx context.Context, tx repositories.Ledger, account *db_models.Account, payment *db_models.Payment) (*AllocationResult, error) {
	if paymentAllocated(payment) {
		return nil, utils.ErrDuplicateApplication
	}
	if payment.ID != uuid.Nil {
		allocated, err := tx.Invoices().HasAllocationForPayment(ctx, payment.ID)
		if err != nil {
			return nil, utils.ErrDatabaseError
		}
		if allocated {
			return nil, utils.ErrDuplicateApplication
		}
	}

	open, err := tx.Invoices().OpenByAccount(ctx, account.ID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	result := &AllocationResult{PaymentID: payment.ID}
	remaining := payment.AmountMinor
	now := time.Now().Unix()

	for i := range open {
		if remaining <= 0 {
			break
		}
		inv := &open[i]
		prevDue := inv.AmountDue

		applied := remaining
		if applied > prevDue {
			applied = prevDue
		}
		inv.AmountPaid += applied
		inv.AmountDue -= applied
		inv.PaymentID = &payment.ID
		if inv.AmountDue == 0 {
			inv.Status = db_models.InvStatusPaid
			paidDate := now
			inv.PaidDate = &paidDate
			result.InvoicesClosed = append(result.InvoicesClosed, inv.Number)
		}

		ok, err := tx.Invoices().ApplyAmounts(ctx, inv, prevDue)
		if err != nil {
			return nil, utils.ErrDatabaseError
		}
		if !ok {
			// another writer touched the invoice despite the account lock;
			// abort and let the webhook redelivery retry
			return nil, fmt.Errorf("%w: invoice %s changed during allocation", utils.ErrDatabaseError, inv.Number)
		}

		remaining -= applied
		result.AppliedMinor += applied
	}

	result.UnappliedMinor = remaining
	if err := s.stampAllocation(ctx, tx, payment, remaining); err != nil {
		return nil, err
	}

	if err := s.refreshAccountDebt(ctx, tx, account); err != nil {
		return nil, err
	}

	// Debt cleared: pending_payment and suspended accounts come back on their
	// own. Blocked accounts need an explicit reactivation by an operator.
	if account.PendingBalanceMinor == 0 &&
		(account.AccountStatus == db_models.AccountPendingPayment || account.AccountStatus == db_models.AccountSuspended) {
		account.AccountStatus = db_models.AccountActive
		account.SuspendedAt = nil
		account.SuspensionReason = nil
		if err := tx.Accounts().Save(ctx, account); err != nil {
			return nil, utils.ErrDatabaseError
		}
		result.Reactivated = true
	}

	return result, nil
}

func (s *invoiceService) insertNumbered(ctx context.Context, tx repositories.Ledger, invoice *db_models.Invoice) error {
	year := time.Unix(invoice.IssueDate, 0).UTC().Year()
	seq, err := tx.Invoices().NextInvoiceNumber(ctx, year)
	if err != nil {
		return utils.ErrDatabaseError
	}
	invoice.Number = db_models.FormatInvoiceNumber(year, seq)

	if err := tx.Invoices().Insert(ctx, invoice); err != nil {
		return utils.ErrDatabaseError
	}
	return nil
}

// refreshAccountDebt recomputes the account's open-debt aggregates from the
// invoices table, the single source of truth.
func (s *invoiceService) refreshAccountDebt(ctx context.Context, tx repositories.Ledger, account *db_models.Account) error {
	open, err := tx.Invoices().OpenByAccount(ctx, account.ID)
	if err != nil {
		return utils.ErrDatabaseError
	}

	var pending int64
	var oldest *int64
	for i := range open {
		pending += open[i].AmountDue
		if oldest == nil || open[i].DueDate < *oldest {
			due := open[i].DueDate
			oldest = &due
		}
	}

	account.PendingBalanceMinor = pending
	account.PaymentDueDate = oldest
	if err := tx.Accounts().Save(ctx, account); err != nil {
		return utils.ErrDatabaseError
	}
	return nil
}

func (s *invoiceService) stampAllocation(ctx context.Context, tx repositories.Ledger, payment *db_models.Payment, unapplied int64) error {
	meta := map[string]interface{}{}
	if len(payment.Metadata) > 0 {
		_ = json.Unmarshal(payment.Metadata, &meta)
	}
	meta["allocated"] = true
	meta["unapplied_minor"] = unapplied

	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	payment.Metadata = datatypes.JSON(raw)

	if payment.ID == uuid.Nil {
		return nil
	}
	if err := tx.Payments().Save(ctx, payment); err != nil {
		return utils.ErrDatabaseError
	}
	return nil
}

func paymentAllocated(payment *db_models.Payment) bool {
	if len(payment.Metadata) == 0 {
		return false
	}
	var meta struct {
		Allocated bool `json:"allocated"`
	}
	if err := json.Unmarshal(payment.Metadata, &meta); err != nil {
		return false
	}
	return meta.Allocated
}

func (s *invoiceService) MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID, req *request_models.MarkInvoicePaidRequest) (*db_models.Invoice, error) {
	invoice, err := s.ledger.Invoices().FindByID(ctx, invoiceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if invoice == nil {
		return nil, utils.ErrInvoiceNotFound
	}

	if invoice.Status == db_models.InvStatusPaid {
		return invoice, nil
	}
	if !invoice.Status.Open() {
		return nil, fmt.Errorf("%w: invoice %s is %s", utils.ErrInvalidState, invoice.Number, invoice.Status)
	}

	unlock := s.locks.Lock(invoice.AccountID.String())
	defer unlock()

	err = s.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		prevDue := invoice.AmountDue
		now := time.Now().Unix()

		invoice.AmountPaid = invoice.TotalMinor
		invoice.AmountDue = 0
		invoice.Status = db_models.InvStatusPaid
		invoice.PaidDate = &now
		if req != nil && req.PaymentID != nil {
			invoice.PaymentID = req.PaymentID
		}

		ok, err := tx.Invoices().ApplyAmounts(ctx, invoice, prevDue)
		if err != nil {
			return utils.ErrDatabaseError
		}
		if !ok {
			return fmt.Errorf("%w: invoice %s changed concurrently", utils.ErrDatabaseError, invoice.Number)
		}

		account, err := tx.Accounts().FindByID(ctx, invoice.AccountID)
		if err != nil || account == nil {
			return utils.ErrDatabaseError
		}
		return s.refreshAccountDebt(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) CancelInvoice(ctx context.Context, invoiceID uuid.UUID) (*db_models.Invoice, error) {
	invoice, err := s.ledger.Invoices().FindByID(ctx, invoiceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if invoice == nil {
		return nil, utils.ErrInvoiceNotFound
	}

	if invoice.Status == db_models.InvStatusCanceled {
		return invoice, nil
	}
	if invoice.Status == db_models.InvStatusPaid || invoice.Status == db_models.InvStatusRefunded {
		return nil, fmt.Errorf("%w: %s invoice cannot be canceled", utils.ErrInvalidState, invoice.Status)
	}

	unlock := s.locks.Lock(invoice.AccountID.String())
	defer unlock()

	err = s.ledger.Transaction(ctx, func(tx repositories.Ledger) error {
		invoice.Status = db_models.InvStatusCanceled
		if err := tx.Invoices().Save(ctx, invoice); err != nil {
			return utils.ErrDatabaseError
		}

		account, err := tx.Accounts().FindByID(ctx, invoice.AccountID)
		if err != nil || account == nil {
			return utils.ErrDatabaseError
		}
		return s.refreshAccountDebt(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*db_models.Invoice, error) {
	invoice, err := s.ledger.Invoices().FindByID(ctx, invoiceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if invoice == nil {
		return nil, utils.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *invoiceService) GetAccountInvoices(ctx context.Context, accountID uuid.UUID, status *db_models.InvoiceStatus, page, pageSize int) ([]db_models.Invoice, error) {
	if page < 1 {
		return nil, utils.ErrInvalidPage
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, utils.ErrInvalidPageSize
	}

	invoices, err := s.ledger.Invoices().ListByAccount(ctx, accountID, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	return invoices, nil
}

func (s *invoiceService) RunOverdueSweep(ctx context.Context) (int64, error) {
	release, ok := s.sweepLock.TryAcquire()
	if !ok {
		log.Println("invoice: overdue sweep already running, skipping")
		return 0, nil
	}
	defer release()

	flipped, err := s.ledger.Invoices().MarkOverdueDue(ctx, time.Now().Unix())
	if err != nil {
		return 0, utils.ErrDatabaseError
	}
	if flipped > 0 {
		log.Printf("invoice: marked %d invoices overdue", flipped)
	}
	return flipped, nil
}
