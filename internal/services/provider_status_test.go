package services

import (
	"testing"

	"visitly/internal/models/db_models"
)

func TestMapProviderSubscriptionStatus(t *testing.T) {
	tests := []struct {
		name     string
		provider db_models.PaymentProvider
		raw      string
		want     db_models.SubscriptionStatus
	}{
		{"stripe active", db_models.ProviderStripe, "active", db_models.SubStatusActive},
		{"stripe trialing", db_models.ProviderStripe, "trialing", db_models.SubStatusTrialing},
		{"stripe past_due stays active", db_models.ProviderStripe, "past_due", db_models.SubStatusActive},
		{"stripe canceled", db_models.ProviderStripe, "canceled", db_models.SubStatusCanceled},
		{"stripe unpaid", db_models.ProviderStripe, "unpaid", db_models.SubStatusExpired},
		{"stripe incomplete", db_models.ProviderStripe, "incomplete", db_models.SubStatusPending},
		{"stripe incomplete_expired", db_models.ProviderStripe, "incomplete_expired", db_models.SubStatusExpired},
		{"stripe paused", db_models.ProviderStripe, "paused", db_models.SubStatusPending},

		{"paypal ACTIVE", db_models.ProviderPayPal, "ACTIVE", db_models.SubStatusActive},
		{"paypal APPROVAL_PENDING", db_models.ProviderPayPal, "APPROVAL_PENDING", db_models.SubStatusPending},
		{"paypal APPROVED", db_models.ProviderPayPal, "APPROVED", db_models.SubStatusPending},
		{"paypal SUSPENDED", db_models.ProviderPayPal, "SUSPENDED", db_models.SubStatusPending},
		{"paypal CANCELLED", db_models.ProviderPayPal, "CANCELLED", db_models.SubStatusCanceled},
		{"paypal EXPIRED", db_models.ProviderPayPal, "EXPIRED", db_models.SubStatusExpired},

		{"stripe unknown falls back to pending", db_models.ProviderStripe, "some_future_status", db_models.SubStatusPending},
		{"paypal unknown falls back to pending", db_models.ProviderPayPal, "NEW_STATE", db_models.SubStatusPending},
		{"paypal is case sensitive", db_models.ProviderPayPal, "active", db_models.SubStatusPending},
		{"unknown provider falls back to pending", db_models.PaymentProvider("square"), "active", db_models.SubStatusPending},
		{"empty raw status", db_models.ProviderStripe, "", db_models.SubStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapProviderSubscriptionStatus(tt.provider, tt.raw)
			if got != tt.want {
				t.Errorf("MapProviderSubscriptionStatus(%q, %q) = %q, want %q", tt.provider, tt.raw, got, tt.want)
			}
		})
	}
}

func TestMapProviderPaymentStatus(t *testing.T) {
	tests := []struct {
		name     string
		provider db_models.PaymentProvider
		raw      string
		want     db_models.PaymentStatus
	}{
		{"stripe succeeded", db_models.ProviderStripe, "succeeded", db_models.PayStatusCompleted},
		{"stripe paid", db_models.ProviderStripe, "paid", db_models.PayStatusCompleted},
		{"stripe processing", db_models.ProviderStripe, "processing", db_models.PayStatusPending},
		{"stripe requires_payment_method", db_models.ProviderStripe, "requires_payment_method", db_models.PayStatusPending},
		{"stripe failed", db_models.ProviderStripe, "failed", db_models.PayStatusFailed},
		{"stripe canceled", db_models.ProviderStripe, "canceled", db_models.PayStatusCanceled},
		{"stripe refunded", db_models.ProviderStripe, "refunded", db_models.PayStatusRefunded},

		{"paypal completed", db_models.ProviderPayPal, "completed", db_models.PayStatusCompleted},
		{"paypal denied", db_models.ProviderPayPal, "denied", db_models.PayStatusFailed},
		{"paypal reversed", db_models.ProviderPayPal, "reversed", db_models.PayStatusRefunded},
		{"paypal voided", db_models.ProviderPayPal, "voided", db_models.PayStatusCanceled},

		{"unknown status never maps to completed", db_models.ProviderStripe, "mystery", db_models.PayStatusPending},
		{"unknown provider falls back to pending", db_models.PaymentProvider("square"), "succeeded", db_models.PayStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapProviderPaymentStatus(tt.provider, tt.raw)
			if got != tt.want {
				t.Errorf("MapProviderPaymentStatus(%q, %q) = %q, want %q", tt.provider, tt.raw, got, tt.want)
			}
		})
	}
}
