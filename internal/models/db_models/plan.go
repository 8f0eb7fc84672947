package db_models

import (
	"gorm.io/datatypes"
)

type PlanTier string

const (
	TierBasic      PlanTier = "basic"
	TierPremium    PlanTier = "premium"
	TierEnterprise PlanTier = "enterprise"
)

type BillingPeriod string

const (
	PeriodMonth BillingPeriod = "month"
	PeriodYear  BillingPeriod = "year"
)

type Plan struct {
	BaseModel
	Code        string `gorm:"uniqueIndex"` // e.g., "premium_monthly"
	Name        string
	Description *string
	Tier        PlanTier      `gorm:"type:plan_tier;index"`
	Period      BillingPeriod `gorm:"type:billing_period"` // "month" | "year"
	PriceMinor  int64         // 999 = $9.99
	Currency    string        `gorm:"size:3"` // ISO 4217
	TrialDays   int32         `gorm:"default:0"`
	IsActive    bool          `gorm:"default:true"`
	// Feature flags, visitor quotas, etc.
	Features datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
}
