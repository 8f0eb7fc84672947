package provider_fx

import (
	"log"
	"os"
	"strings"

	"github.com/plutov/paypal/v4"
	"go.uber.org/fx"
	"visitly/internal/services"
)

var Module = fx.Provide(
	provideRegistry)

func provideRegistry() services.ProviderRegistry {
	stripeAdapter := services.NewStripeAdapter(services.StripeConfig{
		APIKey:        os.Getenv("STRIPE_API_KEY"),
		WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SuccessURL:    os.Getenv("APP_BASE_URL") + "/billing/success",
		CancelURL:     os.Getenv("APP_BASE_URL") + "/billing/cancel",
		PlanPriceIDs:  parsePlanMap(os.Getenv("STRIPE_PRICE_IDS")),
	})

	apiBase := paypal.APIBaseSandBox
	if os.Getenv("PAYPAL_LIVE") == "true" {
		apiBase = paypal.APIBaseLive
	}

	paypalAdapter, err := services.NewPayPalAdapter(services.PayPalConfig{
		ClientID:  os.Getenv("PAYPAL_CLIENT_ID"),
		Secret:    os.Getenv("PAYPAL_SECRET"),
		APIBase:   apiBase,
		WebhookID: os.Getenv("PAYPAL_WEBHOOK_ID"),
		ReturnURL: os.Getenv("APP_BASE_URL") + "/billing/success",
		CancelURL: os.Getenv("APP_BASE_URL") + "/billing/cancel",
		BrandName: os.Getenv("APP_NAME"),
		PlanIDs:   parsePlanMap(os.Getenv("PAYPAL_PLAN_IDS")),
	})
	if err != nil {
		log.Fatalf("Failed to initialize PayPal adapter: %v", err)
	}

	return services.NewProviderRegistry(stripeAdapter, paypalAdapter)
}

// parsePlanMap reads "basic_monthly=price_123,premium_monthly=price_456".
func parsePlanMap(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		code, id, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || code == "" || id == "" {
			continue
		}
		out[code] = id
	}
	return out
}
