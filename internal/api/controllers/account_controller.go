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

type AccountController struct {
	accountService    services.AccountServiceInterface
	escalationService services.EscalationService
}

func NewAccountController(accountService services.AccountServiceInterface, escalationService services.EscalationService) *AccountController {
	return &AccountController{
		accountService:    accountService,
		escalationService: escalationService,
	}
}

// Register godoc
// @Summary Register a new account
// @Description Create a new user account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body request_models.SignUpRequest true "Account registration payload"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /accounts/register [post]
func (a *AccountController) Register(c *gin.Context) {
	var req request_models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := a.accountService.CreateAccount(c.Request.Context(), req); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, nil, "Account created successfully")
}

// Login godoc
// @Summary Login to an account
// @Description Authenticate a user and return a token
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body request_models.LoginRequest true "Login payload"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Router /accounts/login [post]
func (a *AccountController) Login(c *gin.Context) {
	var req request_models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	token, err := a.accountService.Login(c.Request.Context(), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, response_models.AccountLoginResponse{Token: token}, "Login successful")
}

// GetMyBillingProfile godoc
// @Summary Get the caller's billing profile
// @Description Account status, outstanding balance and billing anchor day
// @Tags Accounts
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /accounts/me/billing [get]
func (a *AccountController) GetMyBillingProfile(c *gin.Context) {
	accountID, ok := currentAccountID(c)
	if !ok {
		return
	}

	account, err := a.accountService.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toAccountBillingResponse(account), "Account retrieved successfully")
}

// ReactivateAccount godoc
// @Summary Reactivate a settled account
// @Description Return a suspended or blocked account to active; rejected while debt remains
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /accounts/{id}/reactivate [post]
func (a *AccountController) ReactivateAccount(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid account id")
		return
	}

	account, err := a.escalationService.ReactivateAccount(c.Request.Context(), accountID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toAccountBillingResponse(account), "Account reactivated successfully")
}

// SuspendAccount godoc
// @Summary Suspend an account
// @Description Operator override; cancels the account's active subscriptions
// @Tags Accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body request_models.SuspendAccountRequest true "Suspend Account Request"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /accounts/{id}/suspend [post]
func (a *AccountController) SuspendAccount(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid account id")
		return
	}

	var req request_models.SuspendAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid request format")
		return
	}

	account, err := a.escalationService.SuspendAccount(c.Request.Context(), accountID, req.Reason)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toAccountBillingResponse(account), "Account suspended successfully")
}

// BlockAccount godoc
// @Summary Block an account
// @Description Operator override; cancels active and trialing subscriptions
// @Tags Accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /accounts/{id}/block [post]
func (a *AccountController) BlockAccount(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, "Invalid account id")
		return
	}

	account, err := a.escalationService.BlockAccount(c.Request.Context(), accountID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, toAccountBillingResponse(account), "Account blocked successfully")
}

// RunEscalationSweep godoc
// @Summary Escalate overdue accounts
// @Description Walk accounts with overdue balances and raise their status per the escalation thresholds; safe to call from an external cron
// @Tags Sweeps
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Security BearerAuth
// @Router /sweeps/escalation [post]
func (a *AccountController) RunEscalationSweep(c *gin.Context) {
	escalated, err := a.escalationService.RunEscalationSweep(c.Request.Context())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.RespondSuccess(c, gin.H{"escalated": escalated}, "Escalation sweep completed")
}

func toAccountBillingResponse(account *db_models.Account) *response_models.AccountBillingResponse {
	return &response_models.AccountBillingResponse{
		ID:                  account.ID,
		Name:                account.Name,
		Email:               account.Email,
		AccountStatus:       string(account.AccountStatus),
		PendingBalanceMinor: account.PendingBalanceMinor,
		PaymentDueDate:      account.PaymentDueDate,
		SuspendedAt:         account.SuspendedAt,
		SuspensionReason:    account.SuspensionReason,
		CustomBillingDate:   account.CustomBillingDate,
	}
}
