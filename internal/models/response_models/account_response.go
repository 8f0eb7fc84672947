package response_models

import "github.com/google/uuid"

type AccountLoginResponse struct {
	Token string `json:"token"`
}

type AccountBillingResponse struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	AccountStatus       string    `json:"account_status"`
	PendingBalanceMinor int64     `json:"pending_balance_minor"`
	PaymentDueDate      *int64    `json:"payment_due_date,omitempty"`
	SuspendedAt         *int64    `json:"suspended_at,omitempty"`
	SuspensionReason    *string   `json:"suspension_reason,omitempty"`
	CustomBillingDate   int       `json:"custom_billing_date"`
}
