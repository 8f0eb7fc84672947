package ledger_fx

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
	"visitly/internal/repositories"
)

var Module = fx.Provide(
	provideLedger)

func provideLedger(db *gorm.DB) repositories.Ledger {
	return repositories.NewLedger(db)
}
