package controllers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"visitly/internal/models/db_models"
	"visitly/internal/services"
	"visitly/pkg/utils"
)

// WebhookController is the ingress for provider webhooks. Signature
// verification happens before anything touches the ledger; an unverifiable
// payload is rejected, never partially applied.
type WebhookController struct {
	registry       services.ProviderRegistry
	billingService services.BillingService
}

func NewWebhookController(registry services.ProviderRegistry, billingService services.BillingService) *WebhookController {
	return &WebhookController{
		registry:       registry,
		billingService: billingService,
	}
}

// HandleStripe godoc
// @Summary Stripe webhook ingress
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /webhooks/stripe [post]
func (w *WebhookController) HandleStripe(c *gin.Context) {
	w.handle(c, db_models.ProviderStripe)
}

// HandlePayPal godoc
// @Summary PayPal webhook ingress
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /webhooks/paypal [post]
func (w *WebhookController) HandlePayPal(c *gin.Context) {
	w.handle(c, db_models.ProviderPayPal)
}

func (w *WebhookController) handle(c *gin.Context, provider db_models.PaymentProvider) {
	adapter, err := w.registry.Get(provider)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Unable to read request body")
		return
	}

	event, err := adapter.VerifyWebhook(c.Request.Context(), c.Request, body)
	if err != nil {
		if errors.Is(err, utils.ErrAuthenticityFailure) {
			log.Printf("webhook: rejected unverifiable %s payload: %v", provider, err)
			utils.RespondError(c, http.StatusBadRequest, "Signature verification failed")
			return
		}
		utils.HandleServiceError(c, err)
		return
	}
	if event == nil {
		// verified but not a kind we consume
		utils.RespondSuccess(c, nil, "Event ignored")
		return
	}

	if err := w.billingService.ApplyWebhookEvent(c.Request.Context(), event); err != nil {
		// Transient faults get a 5xx so the provider redelivers. Anything else
		// (unknown account, unknown plan, malformed reference) will not heal on
		// retry; ack it and keep the log line.
		if errors.Is(err, utils.ErrDatabaseError) || errors.Is(err, utils.ErrProviderError) {
			utils.HandleServiceError(c, err)
			return
		}
		log.Printf("webhook: dropped non-retryable %s event %s: %v", provider, event.Kind, err)
		utils.RespondSuccess(c, nil, "Event dropped")
		return
	}

	utils.RespondSuccess(c, nil, "Event processed")
}
