package mail_fx

import (
	"log"
	"os"
	"strconv"

	"go.uber.org/fx"
	"visitly/internal/services"
)

var Module = fx.Provide(provideNotifier)

func provideNotifier() services.Notifier {
	port, err := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if err != nil {
		port = 587 // STARTTLS default; use 465 with SMTP_SSL=true for SMTPS
	}

	cfg := services.SMTPConfig{
		Host:       os.Getenv("SMTP_HOST"),
		Port:       port,
		Username:   os.Getenv("SMTP_USERNAME"),
		Password:   os.Getenv("SMTP_PASSWORD"),
		From:       os.Getenv("SMTP_FROM"),
		FromName:   os.Getenv("APP_NAME"),
		UseSSL:     os.Getenv("SMTP_SSL") == "true",
		RequireTLS: true,

		AppName:    os.Getenv("APP_NAME"),
		AppBaseURL: os.Getenv("APP_BASE_URL"),
	}

	notifier, err := services.NewSMTPNotifier(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize SMTP notifier: %v", err)
	}

	return notifier
}
