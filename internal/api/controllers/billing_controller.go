package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"visitly/internal/models/db_models"
	"visitly/internal/models/request_models"
	"visitly/internal/models/response_models"
	"visitly/internal/services"
	"visitly/pkg/utils"
)

type BillingController struct {
	billingService    services.BillingService
	escalationService services.EscalationService
}

func NewBillingController(billingService services.BillingService, escalationService services.EscalationService) *BillingController {
	return &BillingController{
		billingService:    billingService,
		escalationService: escalationService,
	}
}

// GetPlans godoc
// @Summary List subscription plans
// @Description List the active subscription plan catalog
// @Tags Billing
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /billing/plans [get]
func (b *BillingController) GetPlans(c *gin.Context) {
	plans, err := b.billingService.ListPlans(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	out := make([]response_models.PlanResponse, 0, len(plans))
	for _, p := range plans {
		if !p.IsActive {
			continue
		}
		out = append(out, response_models.PlanResponse{
			ID:          p.ID,
			Code:        p.Code,
			Name:        p.Name,
			Description: p.Description,
			Tier:        string(p.Tier),
			Period:      string(p.Period),
			PriceMinor:  p.PriceMinor,
			Currency:    p.Currency,
			TrialDays:   p.TrialDays,
		})
	}

	utils.RespondSuccess(c, out, "Plans retrieved successfully")
}

// CreateCheckout godoc
// @Summary Create a checkout session for a subscription plan
// @Description Create a provider-hosted checkout session; the subscription is recorded once the provider confirms
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body request_models.CreateCheckoutRequest true "Create Checkout Request"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/checkout [post]
func (b *BillingController) CreateCheckout(c *gin.Context) {
	var request request_models.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	session, err := b.billingService.CreateCheckout(
		c.Request.Context(), accountID, request.PlanCode, db_models.PaymentProvider(request.Provider))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, response_models.CreateCheckoutResponse{
		RedirectURL: session.RedirectURL,
		ExternalRef: session.ExternalRef,
		Provider:    request.Provider,
	}, "Checkout session created successfully")
}

// ActivateSubscription godoc
// @Summary Activate a subscription after checkout
// @Description Record the subscription for a completed checkout, fetching its state from the provider
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body request_models.ActivateSubscriptionRequest true "Activate Subscription Request"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/subscriptions/activate [post]
func (b *BillingController) ActivateSubscription(c *gin.Context) {
	var request request_models.ActivateSubscriptionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	sub, err := b.billingService.ActivateSubscription(
		c.Request.Context(), request.AccountID, request.ExternalSubscriptionID, db_models.PaymentProvider(request.Provider))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toSubscriptionResponse(sub), "Subscription activated successfully")
}

// GetMySubscriptions godoc
// @Summary List the caller's subscriptions
// @Tags Billing
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/subscriptions [get]
func (b *BillingController) GetMySubscriptions(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	subs, err := b.billingService.GetAccountSubscriptions(c.Request.Context(), accountID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	out := make([]response_models.SubscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, *toSubscriptionResponse(&subs[i]))
	}

	utils.RespondSuccess(c, out, "Subscriptions retrieved successfully")
}

// CancelSubscription godoc
// @Summary Cancel a subscription
// @Description Cancel at the provider first, then in the ledger
// @Tags Billing
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param request body request_models.CancelSubscriptionRequest false "Cancel Subscription Request"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/subscriptions/{id}/cancel [post]
func (b *BillingController) CancelSubscription(c *gin.Context) {
	subscriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid subscription id")
		return
	}

	var request request_models.CancelSubscriptionRequest
	_ = c.ShouldBindJSON(&request)

	sub, err := b.billingService.CancelSubscription(c.Request.Context(), subscriptionID, request.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toSubscriptionResponse(sub), "Subscription canceled successfully")
}

// ChangeBillingDay godoc
// @Summary Change the account's billing anchor day
// @Description Move the day of month billing anchors to; rejected while the account carries open debt
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body request_models.ChangeBillingDayRequest true "Change Billing Day Request"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /billing/billing-day [post]
func (b *BillingController) ChangeBillingDay(c *gin.Context) {
	var request request_models.ChangeBillingDayRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	_, next, err := b.escalationService.ChangeBillingDay(c.Request.Context(), accountID, request.Day)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, response_models.ChangeBillingDayResponse{
		NextBillingDate: utils.FormatRFC3339(next),
	}, "Billing day updated successfully")
}

func currentAccountID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetString("account_id")
	if raw == "" {
		utils.RespondError(c, http.StatusUnauthorized, "account_id is required")
		return uuid.Nil, false
	}
	accountID, err := uuid.Parse(raw)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, "Invalid account id")
		return uuid.Nil, false
	}
	return accountID, true
}

func toSubscriptionResponse(sub *db_models.Subscription) *response_models.SubscriptionResponse {
	resp := &response_models.SubscriptionResponse{
		ID:            sub.ID,
		AccountID:     sub.AccountID,
		Status:        string(sub.Status),
		Provider:      string(sub.Provider),
		ProviderSubID: sub.ProviderSubID,
		StartsAt:      sub.StartsAt,
		EndsAt:        sub.EndsAt,
		CanceledAt:    sub.CanceledAt,
		AutoRenew:     sub.AutoRenew,
		AmountMinor:   sub.AmountMinor,
		Currency:      sub.Currency,
	}
	if sub.Plan.Code != "" {
		resp.PlanCode = sub.Plan.Code
	}
	return resp
}
