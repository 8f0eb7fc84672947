package services

import (
	"context"

	"github.com/google/uuid"
	"visitly/internal/models/db_models"
	"visitly/internal/models/request_models"
	"visitly/internal/repositories"
	"visitly/pkg/utils"
)

type AccountServiceInterface interface {
	Login(ctx context.Context, request request_models.LoginRequest) (string, error)
	CreateAccount(ctx context.Context, request request_models.SignUpRequest) error
	GetAccount(ctx context.Context, accountID uuid.UUID) (*db_models.Account, error)
}

type AccountService struct {
	ledger repositories.Ledger
}

func NewAccountService(ledger repositories.Ledger) AccountServiceInterface {
	return &AccountService{
		ledger: ledger,
	}
}

func (a *AccountService) Login(ctx context.Context, request request_models.LoginRequest) (string, error) {
	account, err := a.ledger.Accounts().FindByEmail(ctx, request.Email)
	if err != nil {
		return "", utils.ErrDatabaseError
	}
	if account == nil {
		return "", utils.ErrAccountNotFound
	}

	err = utils.ComparePasswords(account.PasswordHash, request.Password)
	if err != nil {
		return "", utils.ErrInvalidCredentials
	}

	token, err := utils.CreateToken(account.ID, account.Role)
	if err != nil {
		return "", utils.ErrInvalidCredentials
	}

	return token, nil
}

func (a *AccountService) CreateAccount(ctx context.Context, request request_models.SignUpRequest) error {
	existingAccount, err := a.ledger.Accounts().FindByEmail(ctx, request.Email)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if existingAccount != nil {
		return utils.ErrEmailAlreadyExists
	}

	hashedPassword, err := utils.HashPassword(request.Password)
	if err != nil {
		return utils.ErrDatabaseError
	}

	newAccount := &db_models.Account{
		Name:          request.DisplayName,
		Email:         request.Email,
		PasswordHash:  hashedPassword,
		Role:          "user", // default role
		AccountStatus: db_models.AccountActive,
	}

	if err := a.ledger.Accounts().Insert(ctx, newAccount); err != nil {
		return utils.ErrDatabaseError
	}

	return nil
}

func (a *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*db_models.Account, error) {
	account, err := a.ledger.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if account == nil {
		return nil, utils.ErrAccountNotFound
	}
	return account, nil
}
