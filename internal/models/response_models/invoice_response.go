package response_models

import "github.com/google/uuid"

type InvoiceItemResponse struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	TotalPrice  int64  `json:"total_price"`
}

type InvoiceResponse struct {
	ID             uuid.UUID             `json:"id"`
	Number         string                `json:"number"`
	AccountID      uuid.UUID             `json:"account_id"`
	SubscriptionID *uuid.UUID            `json:"subscription_id,omitempty"`
	IssueDate      int64                 `json:"issue_date"`
	DueDate        int64                 `json:"due_date"`
	PaidDate       *int64                `json:"paid_date,omitempty"`
	SubtotalMinor  int64                 `json:"subtotal_minor"`
	TaxMinor       int64                 `json:"tax_minor"`
	DiscountMinor  int64                 `json:"discount_minor"`
	TotalMinor     int64                 `json:"total_minor"`
	AmountPaid     int64                 `json:"amount_paid"`
	AmountDue      int64                 `json:"amount_due"`
	Status         string                `json:"status"`
	Items          []InvoiceItemResponse `json:"items,omitempty"`
}
