package billing_fx

import (
	"go.uber.org/fx"
	"visitly/internal/repositories"
	"visitly/internal/services"
)

var Module = fx.Provide(
	provideBillingService, provideInvoiceService, provideEscalationService)

func provideInvoiceService(ledger repositories.Ledger, notifier services.Notifier) services.InvoiceService {
	return services.NewInvoiceService(ledger, notifier)
}

func provideBillingService(ledger repositories.Ledger, registry services.ProviderRegistry, invoiceService services.InvoiceService) services.BillingService {
	return services.NewBillingService(ledger, registry, invoiceService)
}

func provideEscalationService(ledger repositories.Ledger, notifier services.Notifier, registry services.ProviderRegistry) services.EscalationService {
	return services.NewEscalationService(ledger, notifier, registry)
}
