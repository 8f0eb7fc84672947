package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"visitly/internal/models/db_models"
	"visitly/pkg/utils"
)

type StripeConfig struct {
	APIKey        string
	WebhookSecret string            // signing secret for webhook endpoint
	SuccessURL    string            // e.g. https://yourapp.com/billing/success
	CancelURL     string            // e.g. https://yourapp.com/billing/cancel
	PlanPriceIDs  map[string]string // plan code -> Stripe price id
}

type stripeAdapter struct {
	cfg StripeConfig
}

func NewStripeAdapter(cfg StripeConfig) ProviderAdapter {
	stripe.Key = cfg.APIKey
	return &stripeAdapter{cfg: cfg}
}

func (a *stripeAdapter) Name() db_models.PaymentProvider {
	return db_models.ProviderStripe
}

func (a *stripeAdapter) planCodeForPrice(priceID string) string {
	for code, id := range a.cfg.PlanPriceIDs {
		if id == priceID {
			return code
		}
	}
	return ""
}

func (a *stripeAdapter) CreateCheckout(ctx context.Context, account *db_models.Account, plan *db_models.Plan) (*CheckoutSession, error) {
	priceID, ok := a.cfg.PlanPriceIDs[plan.Code]
	if !ok {
		return nil, fmt.Errorf("no stripe price id configured for plan %q", plan.Code)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(a.cfg.SuccessURL),
		CancelURL:         stripe.String(a.cfg.CancelURL),
		ClientReferenceID: stripe.String(account.ID.String()),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"account_id": account.ID.String(),
				"plan_code":  plan.Code,
			},
		},
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: create stripe checkout session: %v", utils.ErrProviderError, err)
	}

	return &CheckoutSession{
		RedirectURL: s.URL,
		ExternalRef: s.ID,
	}, nil
}

// Minimal payload shapes parsed out of event.Data.Raw. Only the fields the
// engine consumes are declared; everything else in the provider payload is
// ignored at this boundary.

type stripeSubscriptionPayload struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Customer string            `json:"customer"`
	Metadata map[string]string `json:"metadata"`
	Items    struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID         string `json:"id"`
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoicePayload struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	AmountPaid       int64  `json:"amount_paid"`
	AmountDue        int64  `json:"amount_due"`
	Currency         string `json:"currency"`
	Subscription     string `json:"subscription"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
	BillingReason    string `json:"billing_reason"`
}

type stripeChargePayload struct {
	ID             string `json:"id"`
	Invoice        string `json:"invoice"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
}

type stripeCheckoutSessionPayload struct {
	ID                string `json:"id"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
}

func (a *stripeAdapter) subscriptionEvent(p *stripeSubscriptionPayload) *SubscriptionEvent {
	ev := &SubscriptionEvent{
		ProviderSubID: p.ID,
		RawStatus:     p.Status,
		AccountRef:    p.Metadata["account_id"],
		PlanCode:      p.Metadata["plan_code"],
	}
	if len(p.Items.Data) > 0 {
		item := p.Items.Data[0]
		ev.PeriodStart = item.CurrentPeriodStart
		ev.PeriodEnd = item.CurrentPeriodEnd
		ev.AmountMinor = item.Price.UnitAmount
		ev.Currency = item.Price.Currency
		if ev.PlanCode == "" {
			ev.PlanCode = a.planCodeForPrice(item.Price.ID)
		}
	}
	return ev
}

func (a *stripeAdapter) VerifyWebhook(_ context.Context, r *http.Request, body []byte) (*WebhookEvent, error) {
	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), a.cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe signature: %v", utils.ErrAuthenticityFailure, err)
	}

	out := &WebhookEvent{
		Provider:   db_models.ProviderStripe,
		OccurredAt: event.Created,
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		var p stripeCheckoutSessionPayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("parse checkout session payload: %w", err)
		}
		if p.Subscription == "" {
			// one-time payment sessions carry no subscription; nothing to do
			return nil, nil
		}
		out.Kind = EventSubscriptionActivated
		out.Subscription = &SubscriptionEvent{
			ProviderSubID: p.Subscription,
			RawStatus:     "active",
			AccountRef:    p.ClientReferenceID,
		}

	case "customer.subscription.created":
		var p stripeSubscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("parse subscription payload: %w", err)
		}
		out.Kind = EventSubscriptionActivated
		out.Subscription = a.subscriptionEvent(&p)

	case "customer.subscription.updated":
		var p stripeSubscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("parse subscription payload: %w", err)
		}
		out.Kind = EventSubscriptionUpdated
		out.Subscription = a.subscriptionEvent(&p)

	case "customer.subscription.deleted":
		var p stripeSubscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("parse subscription payload: %w", err)
		}
		out.Kind = EventSubscriptionCanceled
		out.Subscription = a.subscriptionEvent(&p)

	case "invoice.paid":
		var p stripeInvoicePayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("parse invoice payload: %w", err)
		}
		out.Kind = EventPaymentSucceeded
		out.Payment = &PaymentEvent{
			ProviderTxnID: p.ID,
			ProviderSubID: p.Subscription,
			AmountMinor:   p.AmountPaid,
			Currency:      p.Currency,
			RawStatus:     "paid",
			ReceiptURL:    p.HostedInvoiceURL,
		}

	case "invoice.payment_failed":
		var p stripeInvoicePayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("parse invoice payload: %w", err)
		}
		out.Kind = EventPaymentFailed
		out.Payment = &PaymentEvent{
			ProviderTxnID: p.ID,
			ProviderSubID: p.Subscription,
			AmountMinor:   p.AmountDue,
			Currency:      p.Currency,
			RawStatus:     "failed",
			FailureReason: p.BillingReason,
		}

	case "charge.refunded":
		var p stripeChargePayload
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return nil, fmt.Errorf("parse charge payload: %w", err)
		}
		// subscription charges are keyed by their invoice id; fall back to
		// the charge id for one-off payments
		originalRef := p.Invoice
		if originalRef == "" {
			originalRef = p.ID
		}
		out.Kind = EventPaymentRefunded
		out.Payment = &PaymentEvent{
			ProviderTxnID:    originalRef,
			ProviderRefundID: p.ID,
			AmountMinor:      p.AmountRefunded,
			Currency:         p.Currency,
			RawStatus:        "refunded",
		}

	default:
		// event types the engine does not consume
		return nil, nil
	}

	return out, nil
}

func (a *stripeAdapter) GetSubscription(_ context.Context, providerSubID string) (*SubscriptionEvent, error) {
	sub, err := subscription.Get(providerSubID, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: get stripe subscription: %v", utils.ErrProviderError, err)
	}

	ev := &SubscriptionEvent{
		ProviderSubID: sub.ID,
		RawStatus:     string(sub.Status),
		AccountRef:    sub.Metadata["account_id"],
		PlanCode:      sub.Metadata["plan_code"],
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		ev.PeriodStart = item.CurrentPeriodStart
		ev.PeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			ev.AmountMinor = item.Price.UnitAmount
			ev.Currency = string(item.Price.Currency)
			if ev.PlanCode == "" {
				ev.PlanCode = a.planCodeForPrice(item.Price.ID)
			}
		}
	}
	return ev, nil
}

func (a *stripeAdapter) CancelSubscription(_ context.Context, providerSubID, _ string) error {
	if _, err := subscription.Cancel(providerSubID, &stripe.SubscriptionCancelParams{}); err != nil {
		return fmt.Errorf("%w: cancel stripe subscription: %v", utils.ErrProviderError, err)
	}
	return nil
}
