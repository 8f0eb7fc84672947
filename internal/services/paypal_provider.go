package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/plutov/paypal/v4"

	"visitly/internal/models/db_models"
	"visitly/pkg/utils"
)

type PayPalConfig struct {
	ClientID  string
	Secret    string
	APIBase   string            // paypal.APIBaseSandBox or paypal.APIBaseLive
	WebhookID string            // id of the webhook registered in the PayPal app
	ReturnURL string
	CancelURL string
	BrandName string
	PlanIDs   map[string]string // plan code -> PayPal billing plan id
}

type paypalAdapter struct {
	cfg    PayPalConfig
	client *paypal.Client

	authOnce sync.Once
	authErr  error
}

func NewPayPalAdapter(cfg PayPalConfig) (ProviderAdapter, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = paypal.APIBaseSandBox
	}

	client, err := paypal.NewClient(cfg.ClientID, cfg.Secret, cfg.APIBase)
	if err != nil {
		return nil, fmt.Errorf("paypal client init: %w", err)
	}

	return &paypalAdapter{cfg: cfg, client: client}, nil
}

func (a *paypalAdapter) Name() db_models.PaymentProvider {
	return db_models.ProviderPayPal
}

func (a *paypalAdapter) ensureAuth(ctx context.Context) error {
	a.authOnce.Do(func() {
		_, a.authErr = a.client.GetAccessToken(ctx)
	})
	return a.authErr
}

func (a *paypalAdapter) planCodeForPlanID(planID string) string {
	for code, id := range a.cfg.PlanIDs {
		if id == planID {
			return code
		}
	}
	return ""
}

func (a *paypalAdapter) CreateCheckout(ctx context.Context, account *db_models.Account, plan *db_models.Plan) (*CheckoutSession, error) {
	planID, ok := a.cfg.PlanIDs[plan.Code]
	if !ok {
		return nil, fmt.Errorf("no paypal plan id configured for plan %q", plan.Code)
	}

	if err := a.ensureAuth(ctx); err != nil {
		return nil, fmt.Errorf("%w: paypal auth: %v", utils.ErrProviderError, err)
	}

	sub, err := a.client.CreateSubscription(ctx, paypal.SubscriptionBase{
		PlanID:   planID,
		CustomID: account.ID.String(),
		ApplicationContext: &paypal.ApplicationContext{
			BrandName: a.cfg.BrandName,
			ReturnURL: a.cfg.ReturnURL,
			CancelURL: a.cfg.CancelURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create paypal subscription: %v", utils.ErrProviderError, err)
	}

	approveURL := ""
	for _, link := range sub.Links {
		if link.Rel == "approve" {
			approveURL = link.Href
			break
		}
	}
	if approveURL == "" {
		return nil, fmt.Errorf("%w: paypal subscription %s has no approve link", utils.ErrProviderError, sub.ID)
	}

	return &CheckoutSession{
		RedirectURL: approveURL,
		ExternalRef: sub.ID,
	}, nil
}

// PayPal webhook envelope, trimmed to the fields the engine consumes.
type paypalWebhookPayload struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	CreateTime string          `json:"create_time"`
	Resource   json.RawMessage `json:"resource"`
}

type paypalSubscriptionResource struct {
	ID       string `json:"id"`
	PlanID   string `json:"plan_id"`
	CustomID string `json:"custom_id"`
	Status   string `json:"status"`
}

type paypalSaleResource struct {
	ID                 string `json:"id"`
	State              string `json:"state"`
	BillingAgreementID string `json:"billing_agreement_id"`
	Amount             struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

type paypalRefundResource struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	SaleID string `json:"sale_id"`
	Amount struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// moneyMinor converts PayPal's decimal major-unit amount string to minor
// units. Refund amounts arrive negative; magnitude only.
func moneyMinor(total string) int64 {
	f, err := strconv.ParseFloat(total, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(math.Abs(f) * 100))
}

func (a *paypalAdapter) VerifyWebhook(ctx context.Context, r *http.Request, body []byte) (*WebhookEvent, error) {
	if err := a.ensureAuth(ctx); err != nil {
		return nil, fmt.Errorf("%w: paypal auth: %v", utils.ErrProviderError, err)
	}

	// VerifyWebhookSignature reads the request body when it posts the
	// verification payload back to PayPal, so restore what the caller
	// already consumed.
	r.Body = io.NopCloser(bytes.NewReader(body))
	verify, err := a.client.VerifyWebhookSignature(ctx, r, a.cfg.WebhookID)
	if err != nil {
		return nil, fmt.Errorf("%w: paypal verify call: %v", utils.ErrAuthenticityFailure, err)
	}
	if verify.VerificationStatus != "SUCCESS" {
		return nil, fmt.Errorf("%w: paypal verification status %s", utils.ErrAuthenticityFailure, verify.VerificationStatus)
	}

	var payload paypalWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse paypal webhook payload: %w", err)
	}

	occurredAt := time.Now().Unix()
	if t, err := time.Parse(time.RFC3339, payload.CreateTime); err == nil {
		occurredAt = t.Unix()
	}

	out := &WebhookEvent{
		Provider:   db_models.ProviderPayPal,
		OccurredAt: occurredAt,
	}

	switch payload.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED", "BILLING.SUBSCRIPTION.UPDATED",
		"BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.SUSPENDED",
		"BILLING.SUBSCRIPTION.EXPIRED":
		var res paypalSubscriptionResource
		if err := json.Unmarshal(payload.Resource, &res); err != nil {
			return nil, fmt.Errorf("parse paypal subscription resource: %w", err)
		}
		switch payload.EventType {
		case "BILLING.SUBSCRIPTION.ACTIVATED":
			out.Kind = EventSubscriptionActivated
		case "BILLING.SUBSCRIPTION.CANCELLED":
			out.Kind = EventSubscriptionCanceled
		default:
			out.Kind = EventSubscriptionUpdated
		}
		out.Subscription = &SubscriptionEvent{
			ProviderSubID: res.ID,
			RawStatus:     res.Status,
			AccountRef:    res.CustomID,
			PlanCode:      a.planCodeForPlanID(res.PlanID),
		}

	case "PAYMENT.SALE.COMPLETED", "PAYMENT.SALE.DENIED":
		var res paypalSaleResource
		if err := json.Unmarshal(payload.Resource, &res); err != nil {
			return nil, fmt.Errorf("parse paypal sale resource: %w", err)
		}
		if payload.EventType == "PAYMENT.SALE.COMPLETED" {
			out.Kind = EventPaymentSucceeded
		} else {
			out.Kind = EventPaymentFailed
		}
		out.Payment = &PaymentEvent{
			ProviderTxnID: res.ID,
			ProviderSubID: res.BillingAgreementID,
			AmountMinor:   moneyMinor(res.Amount.Total),
			Currency:      res.Amount.Currency,
			RawStatus:     res.State,
			FailureReason: "",
		}
		if out.Kind == EventPaymentFailed {
			out.Payment.FailureReason = "sale denied by provider"
		}

	case "PAYMENT.SALE.REFUNDED", "PAYMENT.SALE.REVERSED":
		var res paypalRefundResource
		if err := json.Unmarshal(payload.Resource, &res); err != nil {
			return nil, fmt.Errorf("parse paypal refund resource: %w", err)
		}
		rawStatus := "refunded"
		if payload.EventType == "PAYMENT.SALE.REVERSED" {
			rawStatus = "reversed"
		}
		// reversals carry the sale itself, so sale_id is absent there
		originalRef := res.SaleID
		if originalRef == "" {
			originalRef = res.ID
		}
		out.Kind = EventPaymentRefunded
		out.Payment = &PaymentEvent{
			ProviderTxnID:    originalRef,
			ProviderRefundID: res.ID,
			AmountMinor:      moneyMinor(res.Amount.Total),
			Currency:         res.Amount.Currency,
			RawStatus:        rawStatus,
		}

	default:
		// event types the engine does not consume
		return nil, nil
	}

	return out, nil
}

func (a *paypalAdapter) GetSubscription(ctx context.Context, providerSubID string) (*SubscriptionEvent, error) {
	if err := a.ensureAuth(ctx); err != nil {
		return nil, fmt.Errorf("%w: paypal auth: %v", utils.ErrProviderError, err)
	}

	sub, err := a.client.GetSubscriptionDetails(ctx, providerSubID)
	if err != nil {
		return nil, fmt.Errorf("%w: get paypal subscription: %v", utils.ErrProviderError, err)
	}

	return &SubscriptionEvent{
		ProviderSubID: sub.ID,
		RawStatus:     string(sub.SubscriptionStatus),
		AccountRef:    sub.CustomID,
		PlanCode:      a.planCodeForPlanID(sub.PlanID),
	}, nil
}

func (a *paypalAdapter) CancelSubscription(ctx context.Context, providerSubID, reason string) error {
	if err := a.ensureAuth(ctx); err != nil {
		return fmt.Errorf("%w: paypal auth: %v", utils.ErrProviderError, err)
	}

	if reason == "" {
		reason = "canceled by billing engine"
	}
	if err := a.client.CancelSubscription(ctx, providerSubID, reason); err != nil {
		return fmt.Errorf("%w: cancel paypal subscription: %v", utils.ErrProviderError, err)
	}
	return nil
}
