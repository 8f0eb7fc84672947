package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"visitly/internal/models/db_models"
	"visitly/internal/models/request_models"
	"visitly/internal/models/response_models"
	"visitly/internal/services"
	"visitly/pkg/utils"
)

type InvoiceController struct {
	invoiceService services.InvoiceService
}

func NewInvoiceController(invoiceService services.InvoiceService) *InvoiceController {
	return &InvoiceController{
		invoiceService: invoiceService,
	}
}

// CreateInvoice godoc
// @Summary Create an invoice
// @Description Create a manual invoice for an account
// @Tags Invoices
// @Accept json
// @Produce json
// @Param request body request_models.CreateInvoiceRequest true "Create Invoice Request"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /invoices [post]
func (i *InvoiceController) CreateInvoice(c *gin.Context) {
	var request request_models.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request payload")
		return
	}

	invoice, err := i.invoiceService.CreateInvoice(c.Request.Context(), &request)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toInvoiceResponse(invoice), "Invoice created successfully")
}

// GetInvoice godoc
// @Summary Get one invoice
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /invoices/{id} [get]
func (i *InvoiceController) GetInvoice(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	invoice, err := i.invoiceService.GetInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	// owners see their own invoices, admins see all
	if c.GetString("Role") != "admin" {
		raw := c.GetString("account_id")
		if raw == "" || raw != invoice.AccountID.String() {
			utils.RespondError(c, http.StatusForbidden, "Not your invoice")
			return
		}
	}

	utils.RespondSuccess(c, toInvoiceResponse(invoice), "Invoice retrieved successfully")
}

// ListMyInvoices godoc
// @Summary List the caller's invoices
// @Tags Invoices
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page number, 1-based"
// @Param page_size query int false "Page size, max 100"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /invoices [get]
func (i *InvoiceController) ListMyInvoices(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	var status *db_models.InvoiceStatus
	if raw := c.Query("status"); raw != "" {
		s := db_models.InvoiceStatus(raw)
		status = &s
	}

	invoices, err := i.invoiceService.GetAccountInvoices(c.Request.Context(), accountID, status, page, pageSize)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	out := make([]response_models.InvoiceResponse, 0, len(invoices))
	for idx := range invoices {
		out = append(out, *toInvoiceResponse(&invoices[idx]))
	}

	utils.RespondSuccess(c, out, "Invoices retrieved successfully")
}

// MarkInvoicePaid godoc
// @Summary Mark an invoice paid
// @Description Settle an open invoice out of band, e.g. a wire transfer
// @Tags Invoices
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param request body request_models.MarkInvoicePaidRequest false "Mark Invoice Paid Request"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /invoices/{id}/mark-paid [post]
func (i *InvoiceController) MarkInvoicePaid(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	var request request_models.MarkInvoicePaidRequest
	_ = c.ShouldBindJSON(&request)

	invoice, err := i.invoiceService.MarkInvoicePaid(c.Request.Context(), invoiceID, &request)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toInvoiceResponse(invoice), "Invoice marked paid successfully")
}

// CancelInvoice godoc
// @Summary Cancel an open invoice
// @Description Void an open invoice; paid invoices cannot be canceled
// @Tags Invoices
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /invoices/{id}/cancel [post]
func (i *InvoiceController) CancelInvoice(c *gin.Context) {
	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid invoice id")
		return
	}

	invoice, err := i.invoiceService.CancelInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toInvoiceResponse(invoice), "Invoice canceled successfully")
}

// RunOverdueSweep godoc
// @Summary Mark overdue invoices
// @Description Flip open invoices past their due date to overdue; safe to call from an external cron
// @Tags Sweeps
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /sweeps/overdue [post]
func (i *InvoiceController) RunOverdueSweep(c *gin.Context) {
	marked, err := i.invoiceService.RunOverdueSweep(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, gin.H{"marked_overdue": marked}, "Overdue sweep completed")
}

func toInvoiceResponse(invoice *db_models.Invoice) *response_models.InvoiceResponse {
	items := make([]response_models.InvoiceItemResponse, 0, len(invoice.Items))
	for _, it := range invoice.Items {
		items = append(items, response_models.InvoiceItemResponse{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		})
	}

	return &response_models.InvoiceResponse{
		ID:             invoice.ID,
		Number:         invoice.Number,
		AccountID:      invoice.AccountID,
		SubscriptionID: invoice.SubscriptionID,
		IssueDate:      invoice.IssueDate,
		DueDate:        invoice.DueDate,
		PaidDate:       invoice.PaidDate,
		SubtotalMinor:  invoice.SubtotalMinor,
		TaxMinor:       invoice.TaxMinor,
		DiscountMinor:  invoice.DiscountMinor,
		TotalMinor:     invoice.TotalMinor,
		AmountPaid:     invoice.AmountPaid,
		AmountDue:      invoice.AmountDue,
		Status:         string(invoice.Status),
		Items:          items,
	}
}
