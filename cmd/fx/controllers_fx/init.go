package controllers_fx

import (
	"go.uber.org/fx"
	"visitly/internal/api/controllers"
)

var Module = fx.Options(
	fx.Provide(controllers.NewAccountController),
	fx.Provide(controllers.NewBillingController),
	fx.Provide(controllers.NewInvoiceController),
	fx.Provide(controllers.NewWebhookController))
