package request_models

import "github.com/google/uuid"

type InvoiceItemRequest struct {
	Description string `json:"description" binding:"required"`
	Quantity    int64  `json:"quantity" binding:"required,min=1"`
	UnitPrice   int64  `json:"unit_price" binding:"required,min=0"` // minor units
}

type CreateInvoiceRequest struct {
	AccountID      uuid.UUID            `json:"account_id" binding:"required"`
	SubscriptionID *uuid.UUID           `json:"subscription_id"`
	Items          []InvoiceItemRequest `json:"items" binding:"required,min=1,dive"`
	DueDate        int64                `json:"due_date" binding:"required"` // unix seconds
	TaxMinor       int64                `json:"tax_minor" binding:"min=0"`
	DiscountMinor  int64                `json:"discount_minor" binding:"min=0"`
}

type MarkInvoicePaidRequest struct {
	PaymentID *uuid.UUID `json:"payment_id"`
}
