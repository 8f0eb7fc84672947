package account_fx

import (
	"go.uber.org/fx"
	"visitly/internal/repositories"
	"visitly/internal/services"
)

var Module = fx.Provide(
	provideAccountService)

func provideAccountService(ledger repositories.Ledger) services.AccountServiceInterface {
	return services.NewAccountService(ledger)
}
