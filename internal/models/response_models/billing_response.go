package response_models

import "github.com/google/uuid"

type CreateCheckoutResponse struct {
	RedirectURL string `json:"redirect_url"`
	ExternalRef string `json:"external_ref"`
	Provider    string `json:"provider"`
}

type SubscriptionResponse struct {
	ID            uuid.UUID `json:"id"`
	AccountID     uuid.UUID `json:"account_id"`
	PlanCode      string    `json:"plan_code,omitempty"`
	Status        string    `json:"status"`
	Provider      string    `json:"provider"`
	ProviderSubID string    `json:"provider_subscription_id"`
	StartsAt      int64     `json:"starts_at"`
	EndsAt        int64     `json:"ends_at"`
	CanceledAt    *int64    `json:"canceled_at,omitempty"`
	AutoRenew     bool      `json:"auto_renew"`
	AmountMinor   int64     `json:"amount_minor"`
	Currency      string    `json:"currency"`
}

type PlanResponse struct {
	ID          uuid.UUID `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Tier        string    `json:"tier"`
	Period      string    `json:"period"`
	PriceMinor  int64     `json:"price_minor"`
	Currency    string    `json:"currency"`
	TrialDays   int32     `json:"trial_days"`
}

type ChangeBillingDayResponse struct {
	NextBillingDate string `json:"next_billing_date"` // RFC3339
}
