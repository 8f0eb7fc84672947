package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"visitly/internal/models/db_models"
)

// AccountDebt is one row of the overdue aggregation feeding the escalation
// sweep: the oldest open due date and the summed open debt per account.
type AccountDebt struct {
	AccountID     uuid.UUID
	OldestDueDate int64
	TotalDueMinor int64
}

var openInvoiceStatuses = []db_models.InvoiceStatus{
	db_models.InvStatusPending,
	db_models.InvStatusOverdue,
}

type InvoiceRepository interface {
	Insert(ctx context.Context, invoice *db_models.Invoice) error
	Save(ctx context.Context, invoice *db_models.Invoice) error
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.Invoice, error)
	// OpenByAccount returns pending and overdue invoices ordered by due date
	// ascending: oldest debt first, the allocation order.
	OpenByAccount(ctx context.Context, accountID uuid.UUID) ([]db_models.Invoice, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, status *db_models.InvoiceStatus, offset, limit int) ([]db_models.Invoice, error)
	// ApplyAmounts persists an allocation step. The update is conditional on
	// the invoice still being open with the amount_due the caller computed
	// from; a concurrent writer makes it a no-op and the caller must reload.
	ApplyAmounts(ctx context.Context, invoice *db_models.Invoice, prevAmountDue int64) (bool, error)
	// MarkOverdueDue flips pending invoices past their due date to overdue and
	// returns how many rows changed. Running it again is a no-op.
	MarkOverdueDue(ctx context.Context, now int64) (int64, error)
	HasAllocationForPayment(ctx context.Context, paymentID uuid.UUID) (bool, error)
	OldestOpenPerAccount(ctx context.Context) ([]AccountDebt, error)
	// NextInvoiceNumber bumps and returns the per-year sequence. Callers must
	// run it inside a transaction so the row lock covers the invoice insert.
	NextInvoiceNumber(ctx context.Context, year int) (int64, error)
}

type invoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

func (r *invoiceRepository) Insert(ctx context.Context, invoice *db_models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *invoiceRepository) Save(ctx context.Context, invoice *db_models.Invoice) error {
	return r.db.WithContext(ctx).Save(invoice).Error
}

func (r *invoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.Invoice, error) {
	var invoice db_models.Invoice
	err := r.db.WithContext(ctx).Preload("Items").First(&invoice, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &invoice, nil
}

func (r *invoiceRepository) OpenByAccount(ctx context.Context, accountID uuid.UUID) ([]db_models.Invoice, error) {
	var invoices []db_models.Invoice
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status IN ?", accountID, openInvoiceStatuses).
		Order("due_date ASC").
		Find(&invoices).Error

	if err != nil {
		return nil, err
	}

	return invoices, nil
}

func (r *invoiceRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, status *db_models.InvoiceStatus, offset, limit int) ([]db_models.Invoice, error) {
	q := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}

	var invoices []db_models.Invoice
	err := q.Preload("Items").
		Order("issue_date DESC").
		Offset(offset).
		Limit(limit).
		Find(&invoices).Error

	if err != nil {
		return nil, err
	}

	return invoices, nil
}

func (r *invoiceRepository) ApplyAmounts(ctx context.Context, invoice *db_models.Invoice, prevAmountDue int64) (bool, error) {
	updates := map[string]interface{}{
		"amount_paid": invoice.AmountPaid,
		"amount_due":  invoice.AmountDue,
		"status":      invoice.Status,
		"payment_id":  invoice.PaymentID,
		"paid_date":   invoice.PaidDate,
	}

	res := r.db.WithContext(ctx).Model(&db_models.Invoice{}).
		Where("id = ? AND amount_due = ? AND status IN ?", invoice.ID, prevAmountDue, openInvoiceStatuses).
		Updates(updates)

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *invoiceRepository) MarkOverdueDue(ctx context.Context, now int64) (int64, error) {
	res := r.db.WithContext(ctx).Model(&db_models.Invoice{}).
		Where("status = ? AND due_date < ?", db_models.InvStatusPending, now).
		Update("status", db_models.InvStatusOverdue)

	return res.RowsAffected, res.Error
}

func (r *invoiceRepository) HasAllocationForPayment(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db_models.Invoice{}).
		Where("payment_id = ?", paymentID).
		Count(&count).Error

	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *invoiceRepository) OldestOpenPerAccount(ctx context.Context) ([]AccountDebt, error) {
	var debts []AccountDebt
	err := r.db.WithContext(ctx).Model(&db_models.Invoice{}).
		Select("account_id, MIN(due_date) AS oldest_due_date, SUM(amount_due) AS total_due_minor").
		Where("status IN ?", openInvoiceStatuses).
		Group("account_id").
		Scan(&debts).Error

	if err != nil {
		return nil, err
	}

	return debts, nil
}

func (r *invoiceRepository) NextInvoiceNumber(ctx context.Context, year int) (int64, error) {
	var seq db_models.InvoiceSequence
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&seq, "year = ?", year).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = db_models.InvoiceSequence{Year: year, LastValue: 1}
		if err := r.db.WithContext(ctx).Create(&seq).Error; err != nil {
			return 0, err
		}
		return seq.LastValue, nil
	}
	if err != nil {
		return 0, err
	}

	seq.LastValue++
	if err := r.db.WithContext(ctx).Save(&seq).Error; err != nil {
		return 0, err
	}

	return seq.LastValue, nil
}
