package services

import "visitly/internal/models/db_models"

// Status normalization tables, one per provider vocabulary. Unknown raw
// statuses deliberately map to pending, never to a success-implying state.
//
// Stripe's "past_due" maps to an internally active subscription: a
// subscription mid-grace-period at the provider stays usable until the
// invoice engine independently marks the account's debt overdue.

var stripeSubscriptionStatus = map[string]db_models.SubscriptionStatus{
	"active":             db_models.SubStatusActive,
	"trialing":           db_models.SubStatusTrialing,
	"past_due":           db_models.SubStatusActive,
	"canceled":           db_models.SubStatusCanceled,
	"unpaid":             db_models.SubStatusExpired,
	"incomplete":         db_models.SubStatusPending,
	"incomplete_expired": db_models.SubStatusExpired,
	"paused":             db_models.SubStatusPending,
}

var paypalSubscriptionStatus = map[string]db_models.SubscriptionStatus{
	"ACTIVE":           db_models.SubStatusActive,
	"APPROVAL_PENDING": db_models.SubStatusPending,
	"APPROVED":         db_models.SubStatusPending,
	"SUSPENDED":        db_models.SubStatusPending,
	"CANCELLED":        db_models.SubStatusCanceled,
	"EXPIRED":          db_models.SubStatusExpired,
}

var stripePaymentStatus = map[string]db_models.PaymentStatus{
	"succeeded":               db_models.PayStatusCompleted,
	"paid":                    db_models.PayStatusCompleted,
	"processing":              db_models.PayStatusPending,
	"requires_payment_method": db_models.PayStatusPending,
	"requires_action":         db_models.PayStatusPending,
	"failed":                  db_models.PayStatusFailed,
	"canceled":                db_models.PayStatusCanceled,
	"refunded":                db_models.PayStatusRefunded,
}

var paypalPaymentStatus = map[string]db_models.PaymentStatus{
	"completed":          db_models.PayStatusCompleted,
	"pending":            db_models.PayStatusPending,
	"denied":             db_models.PayStatusFailed,
	"declined":           db_models.PayStatusFailed,
	"failed":             db_models.PayStatusFailed,
	"refunded":           db_models.PayStatusRefunded,
	"partially_refunded": db_models.PayStatusRefunded,
	"reversed":           db_models.PayStatusRefunded,
	"voided":             db_models.PayStatusCanceled,
}

// MapProviderSubscriptionStatus normalizes a provider's raw subscription
// status into the internal enum. Unknown statuses come back as pending.
func MapProviderSubscriptionStatus(provider db_models.PaymentProvider, raw string) db_models.SubscriptionStatus {
	var table map[string]db_models.SubscriptionStatus
	switch provider {
	case db_models.ProviderStripe:
		table = stripeSubscriptionStatus
	case db_models.ProviderPayPal:
		table = paypalSubscriptionStatus
	}

	if status, ok := table[raw]; ok {
		return status
	}
	return db_models.SubStatusPending
}

// MapProviderPaymentStatus normalizes a provider's raw payment status into
// the internal enum. Unknown statuses come back as pending.
func MapProviderPaymentStatus(provider db_models.PaymentProvider, raw string) db_models.PaymentStatus {
	var table map[string]db_models.PaymentStatus
	switch provider {
	case db_models.ProviderStripe:
		table = stripePaymentStatus
	case db_models.ProviderPayPal:
		table = paypalPaymentStatus
	}

	if status, ok := table[raw]; ok {
		return status
	}
	return db_models.PayStatusPending
}
