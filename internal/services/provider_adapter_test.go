package services

import "testing"

func TestMoneyMinor(t *testing.T) {
	tests := []struct {
		total string
		want  int64
	}{
		{"29.00", 2900},
		{"9.99", 999},
		{"0.10", 10},
		{"1234.56", 123456},
		{"-30.00", 3000},
		{"0", 0},
		{"not-a-number", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := moneyMinor(tt.total); got != tt.want {
			t.Errorf("moneyMinor(%q) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestStripePlanCodeForPrice(t *testing.T) {
	adapter := NewStripeAdapter(StripeConfig{
		PlanPriceIDs: map[string]string{
			"basic_monthly":   "price_basic",
			"premium_monthly": "price_premium",
		},
	}).(*stripeAdapter)

	if got := adapter.planCodeForPrice("price_premium"); got != "premium_monthly" {
		t.Errorf("planCodeForPrice = %q, want premium_monthly", got)
	}
	if got := adapter.planCodeForPrice("price_unknown"); got != "" {
		t.Errorf("planCodeForPrice(unknown) = %q, want empty", got)
	}
}
