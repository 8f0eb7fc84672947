package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"visitly/internal/models/db_models"
)

type PaymentRepository interface {
	Insert(ctx context.Context, payment *db_models.Payment) error
	Save(ctx context.Context, payment *db_models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.Payment, error)
	FindByProviderTxnID(ctx context.Context, providerTxnID string) (*db_models.Payment, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]db_models.Payment, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (p *paymentRepository) Insert(ctx context.Context, payment *db_models.Payment) error {
	return p.db.WithContext(ctx).Create(payment).Error
}

func (p *paymentRepository) Save(ctx context.Context, payment *db_models.Payment) error {
	return p.db.WithContext(ctx).Save(payment).Error
}

func (p *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.Payment, error) {
	var payment db_models.Payment
	err := p.db.WithContext(ctx).First(&payment, "id = ?", id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &payment, nil
}

func (p *paymentRepository) FindByProviderTxnID(ctx context.Context, providerTxnID string) (*db_models.Payment, error) {
	var payment db_models.Payment
	err := p.db.WithContext(ctx).First(&payment, "provider_txn_id = ?", providerTxnID).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &payment, nil
}

func (p *paymentRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]db_models.Payment, error) {
	var payments []db_models.Payment
	err := p.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&payments).Error

	if err != nil {
		return nil, err
	}

	return payments, nil
}
