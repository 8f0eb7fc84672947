package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentStatus string

const (
	PayStatusPending   PaymentStatus = "pending"
	PayStatusCompleted PaymentStatus = "completed"
	PayStatusFailed    PaymentStatus = "failed"
	PayStatusRefunded  PaymentStatus = "refunded"
	PayStatusCanceled  PaymentStatus = "canceled"
)

type PaymentType string

const (
	PayTypeSubscription PaymentType = "subscription"
	PayTypeOneTime      PaymentType = "one_time"
	PayTypeRefund       PaymentType = "refund"
)

// Payment is one financial transaction. Rows are immutable except for status
// transitions; a refund is a new row referencing the original via metadata.
type Payment struct {
	BaseModel
	AccountID      uuid.UUID  `gorm:"index"`
	SubscriptionID *uuid.UUID `gorm:"index"` // nullable for one-off charges

	AmountMinor int64
	Currency    string        `gorm:"size:3"`
	Status      PaymentStatus `gorm:"type:payment_status;index"`
	Type        PaymentType   `gorm:"type:payment_type"`

	Provider      PaymentProvider `gorm:"type:payment_provider;index"`
	ProviderTxnID string          `gorm:"uniqueIndex"` // idempotency across webhooks

	// LastEventAt mirrors Subscription.LastEventAt for ordering of redelivered
	// provider events against this row.
	LastEventAt int64

	PaymentMethodRef string // last4 / token ref (no PCI data)
	ReceiptURL       string
	FailureReason    *string

	AuthorizedAt *int64
	PaidAt       *int64
	RefundedAt   *int64

	Metadata datatypes.JSON `gorm:"type:jsonb;default:'{}'"`

	Account      Account       `gorm:"foreignKey:AccountID"`
	Subscription *Subscription `gorm:"foreignKey:SubscriptionID"`
}
