package db_models

import "gorm.io/datatypes"

type AccountStatus string

const (
	AccountActive         AccountStatus = "active"
	AccountPendingPayment AccountStatus = "pending_payment"
	AccountSuspended      AccountStatus = "suspended"
	AccountBlocked        AccountStatus = "blocked"
)

// Severity orders account statuses for the escalation sweep; the sweep only
// ever moves an account to a strictly higher severity.
func (s AccountStatus) Severity() int {
	switch s {
	case AccountActive:
		return 0
	case AccountPendingPayment:
		return 1
	case AccountSuspended:
		return 2
	case AccountBlocked:
		return 3
	default:
		return 0
	}
}

type Account struct {
	BaseModel
	Name         string
	Email        string `gorm:"unique"`
	PasswordHash string
	Role         string `gorm:"default:user"`

	// Billing state, maintained by the allocation engine and the escalation
	// sweep. PendingBalanceMinor is the sum of amount_due across open invoices;
	// it is recomputed after every allocation, not on every invoice write.
	AccountStatus       AccountStatus `gorm:"type:account_status;default:active;index"`
	PendingBalanceMinor int64         `gorm:"default:0"`
	PaymentDueDate      *int64        // earliest open invoice due date (unix seconds)
	SuspendedAt         *int64
	SuspensionReason    *string
	CustomBillingDate   int `gorm:"default:1"` // day of month, 1-31

	Metadata datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
}
