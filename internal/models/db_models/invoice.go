package db_models

import (
	"fmt"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvStatusPending  InvoiceStatus = "pending"
	InvStatusPaid     InvoiceStatus = "paid"
	InvStatusOverdue  InvoiceStatus = "overdue"
	InvStatusCanceled InvoiceStatus = "canceled"
	InvStatusRefunded InvoiceStatus = "refunded"
)

// Open reports whether the invoice still carries collectible debt.
func (s InvoiceStatus) Open() bool {
	return s == InvStatusPending || s == InvStatusOverdue
}

type Invoice struct {
	BaseModel
	Number         string     `gorm:"uniqueIndex"` // INV-{year}-{sequence}
	AccountID      uuid.UUID  `gorm:"index"`
	SubscriptionID *uuid.UUID `gorm:"index"`
	PaymentID      *uuid.UUID `gorm:"index"` // last payment applied

	IssueDate int64 `gorm:"not null"`
	DueDate   int64 `gorm:"not null;index"`
	PaidDate  *int64

	// All amounts in minor units. TotalMinor = Subtotal + Tax - Discount and
	// AmountPaid + AmountDue = TotalMinor hold at all times.
	SubtotalMinor int64
	TaxMinor      int64
	DiscountMinor int64
	TotalMinor    int64
	AmountPaid    int64
	AmountDue     int64

	Status InvoiceStatus `gorm:"type:invoice_status;index"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID"`

	Account Account `gorm:"foreignKey:AccountID"`
}

type InvoiceItem struct {
	BaseModel
	InvoiceID   uuid.UUID `gorm:"index"`
	Description string
	Quantity    int64
	UnitPrice   int64 // minor units
	TotalPrice  int64 // Quantity * UnitPrice
}

// InvoiceSequence holds the per-calendar-year invoice counter backing Number
// generation. One row per year, bumped under a row lock.
type InvoiceSequence struct {
	Year      int   `gorm:"primaryKey"`
	LastValue int64 `gorm:"not null"`
}

// FormatInvoiceNumber renders INV-{year}-{sequence}, sequence zero-padded to
// six digits.
func FormatInvoiceNumber(year int, seq int64) string {
	return fmt.Sprintf("INV-%d-%06d", year, seq)
}
