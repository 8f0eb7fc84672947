package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"visitly/cmd/fx/account_fx"
	"visitly/cmd/fx/billing_fx"
	"visitly/cmd/fx/controllers_fx"
	"visitly/cmd/fx/db_fx"
	"visitly/cmd/fx/ledger_fx"
	"visitly/cmd/fx/mail_fx"
	"visitly/cmd/fx/provider_fx"
	"visitly/internal/api/controllers"
	"visitly/internal/services"
	"visitly/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	app := fx.New(
		db_fx.Module,
		ledger_fx.Module,
		mail_fx.Module,
		provider_fx.Module,
		billing_fx.Module,
		account_fx.Module,
		controllers_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
		fx.Invoke(StartSweeps),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, engine *gin.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Println("Starting HTTP server at ${PORT}")
				if err := engine.Run(":" + os.Getenv("PORT")); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("Stopping HTTP server")
			return nil
		},
	})
}

// StartSweeps runs the overdue and escalation sweeps on an hourly ticker.
// Both are idempotent, so the interval is a latency knob, not a correctness
// one.
func StartSweeps(lc fx.Lifecycle, invoiceService services.InvoiceService, escalationService services.EscalationService) {
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(time.Hour)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						sweepCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
						if _, err := invoiceService.RunOverdueSweep(sweepCtx); err != nil {
							log.Printf("Overdue sweep failed: %v", err)
						}
						if _, err := escalationService.RunEscalationSweep(sweepCtx); err != nil {
							log.Printf("Escalation sweep failed: %v", err)
						}
						cancel()
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(done)
			return nil
		},
	})
}

func ProvideRouter(
	accountController *controllers.AccountController,
	billingController *controllers.BillingController,
	invoiceController *controllers.InvoiceController,
	webhookController *controllers.WebhookController) *gin.Engine {

	r := gin.Default()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.TraceIDMiddleware())

	RegisterRoutes(r, accountController, billingController, invoiceController, webhookController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	accountController *controllers.AccountController,
	billingController *controllers.BillingController,
	invoiceController *controllers.InvoiceController,
	webhookController *controllers.WebhookController) {

	// webhooks authenticate by signature, not by bearer token
	webhooks := r.Group("/webhooks")
	webhooks.POST("/stripe", webhookController.HandleStripe)
	webhooks.POST("/paypal", webhookController.HandlePayPal)

	accounts := r.Group("/accounts")
	accounts.POST("/register", accountController.Register)
	accounts.POST("/login", accountController.Login)
	accounts.GET("/me/billing", middleware.JWTAuthMiddleware(), accountController.GetMyBillingProfile)

	adminAccounts := r.Group("/accounts", middleware.JWTAuthMiddleware(), middleware.RoleMiddleware("admin"))
	adminAccounts.POST("/:id/reactivate", accountController.ReactivateAccount)
	adminAccounts.POST("/:id/suspend", accountController.SuspendAccount)
	adminAccounts.POST("/:id/block", accountController.BlockAccount)

	billing := r.Group("/billing")
	billing.GET("/plans", billingController.GetPlans)
	billing.POST("/checkout", middleware.JWTAuthMiddleware(), billingController.CreateCheckout)
	billing.POST("/subscriptions/activate", middleware.JWTAuthMiddleware(), billingController.ActivateSubscription)
	billing.GET("/subscriptions", middleware.JWTAuthMiddleware(), billingController.GetMySubscriptions)
	billing.POST("/subscriptions/:id/cancel", middleware.JWTAuthMiddleware(), billingController.CancelSubscription)
	billing.POST("/billing-day", middleware.JWTAuthMiddleware(), billingController.ChangeBillingDay)

	invoices := r.Group("/invoices", middleware.JWTAuthMiddleware())
	invoices.GET("", invoiceController.ListMyInvoices)
	invoices.GET("/:id", invoiceController.GetInvoice)

	adminInvoices := r.Group("/invoices", middleware.JWTAuthMiddleware(), middleware.RoleMiddleware("admin"))
	adminInvoices.POST("", invoiceController.CreateInvoice)
	adminInvoices.POST("/:id/mark-paid", invoiceController.MarkInvoicePaid)
	adminInvoices.POST("/:id/cancel", invoiceController.CancelInvoice)

	// manual triggers for an external cron; the in-process ticker covers the default deployment
	sweeps := r.Group("/sweeps", middleware.JWTAuthMiddleware(), middleware.RoleMiddleware("admin"))
	sweeps.POST("/overdue", invoiceController.RunOverdueSweep)
	sweeps.POST("/escalation", accountController.RunEscalationSweep)
}
