package request_models

import "github.com/google/uuid"

type CreateCheckoutRequest struct {
	PlanCode string `json:"plan_code" binding:"required"`
	Provider string `json:"provider" binding:"required,oneof=stripe paypal"`
}

type ActivateSubscriptionRequest struct {
	AccountID              uuid.UUID `json:"account_id" binding:"required"`
	ExternalSubscriptionID string    `json:"external_subscription_id" binding:"required"`
	Provider               string    `json:"provider" binding:"required,oneof=stripe paypal"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

type ChangeBillingDayRequest struct {
	Day int `json:"day" binding:"required,min=1,max=31"`
}

type SuspendAccountRequest struct {
	Reason string `json:"reason" binding:"required"`
}
