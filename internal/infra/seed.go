package infra

import (
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"visitly/internal/models/db_models"
)

// defaultPlans is the catalog installed on first boot. Existing rows are
// left untouched so price changes go through migrations, not restarts.
var defaultPlans = []db_models.Plan{
	{Code: "basic_monthly", Name: "Basic (monthly)", Tier: db_models.TierBasic, Period: db_models.PeriodMonth, PriceMinor: 900, Currency: "USD", TrialDays: 14},
	{Code: "basic_yearly", Name: "Basic (yearly)", Tier: db_models.TierBasic, Period: db_models.PeriodYear, PriceMinor: 9000, Currency: "USD", TrialDays: 14},
	{Code: "premium_monthly", Name: "Premium (monthly)", Tier: db_models.TierPremium, Period: db_models.PeriodMonth, PriceMinor: 2900, Currency: "USD", TrialDays: 14},
	{Code: "premium_yearly", Name: "Premium (yearly)", Tier: db_models.TierPremium, Period: db_models.PeriodYear, PriceMinor: 29000, Currency: "USD", TrialDays: 14},
	{Code: "enterprise_monthly", Name: "Enterprise (monthly)", Tier: db_models.TierEnterprise, Period: db_models.PeriodMonth, PriceMinor: 9900, Currency: "USD"},
	{Code: "enterprise_yearly", Name: "Enterprise (yearly)", Tier: db_models.TierEnterprise, Period: db_models.PeriodYear, PriceMinor: 99000, Currency: "USD"},
}

func SeedPlans(db *gorm.DB) {
	for i := range defaultPlans {
		plan := defaultPlans[i]
		plan.IsActive = true
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).Create(&plan).Error
		if err != nil {
			log.Printf("Error seeding plan %s: %v", plan.Code, err)
		}
	}
}
