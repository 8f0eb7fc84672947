// services/mail_service.go
package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	"visitly/internal/models/db_models"
)

// SMTPConfig holds SMTP + branding config for billing mail.
type SMTPConfig struct {
	Host       string // e.g. "smtp.sendgrid.net"
	Port       int    // 587 (STARTTLS) or 465 (SMTPS)
	Username   string
	Password   string
	From       string // envelope from, e.g. "billing@yourapp.com"
	FromName   string // display name
	UseSSL     bool   // true for SMTPS 465, false for STARTTLS 587
	RequireTLS bool   // if true, fail when STARTTLS is not offered

	AppName    string // used in header and footer
	AppBaseURL string // e.g. "https://yourapp.com", for portal links
}

type smtpNotifier struct {
	cfg     SMTPConfig
	htmlTpl *template.Template
	textTpl *template.Template
}

func NewSMTPNotifier(cfg SMTPConfig) (Notifier, error) {
	return &smtpNotifier{
		cfg:     cfg,
		htmlTpl: template.Must(template.New("billingHTML").Parse(billingHTMLTemplate)),
		textTpl: template.Must(template.New("billingText").Parse(billingTextTemplate)),
	}, nil
}

// ------------------- Notifier -------------------

func (s *smtpNotifier) NotifyInvoiceIssued(ctx context.Context, account *db_models.Account, invoice *db_models.Invoice) error {
	subject := fmt.Sprintf("Invoice %s from %s", invoice.Number, s.cfg.AppName)
	return s.deliver(ctx, account.Email, emailData{
		Title: subject,
		Intro: fmt.Sprintf(
			"Hi %s, invoice %s for %s is ready. Payment is due by %s.",
			account.Name, invoice.Number,
			formatMinor(invoice.TotalMinor),
			time.Unix(invoice.DueDate, 0).UTC().Format("January 2, 2006")),
		ButtonURL: s.portalLink("/billing/invoices"),
		ButtonTxt: "View invoice",
	})
}

func (s *smtpNotifier) NotifyPaymentWarning(ctx context.Context, account *db_models.Account, dueMinor int64, dueDate int64) error {
	return s.deliver(ctx, account.Email, emailData{
		Title: "Payment overdue",
		Intro: fmt.Sprintf(
			"Hi %s, your account has an outstanding balance of %s, due since %s. "+
				"Please settle it to avoid service interruption.",
			account.Name, formatMinor(dueMinor),
			time.Unix(dueDate, 0).UTC().Format("January 2, 2006")),
		ButtonURL: s.portalLink("/billing"),
		ButtonTxt: "Pay now",
	})
}

func (s *smtpNotifier) NotifyAccountSuspended(ctx context.Context, account *db_models.Account, reason string) error {
	return s.deliver(ctx, account.Email, emailData{
		Title: "Your account has been suspended",
		Intro: fmt.Sprintf(
			"Hi %s, your account was suspended (%s). Active subscriptions were canceled. "+
				"Settling the outstanding balance reactivates your account.",
			account.Name, reason),
		ButtonURL: s.portalLink("/billing"),
		ButtonTxt: "Settle balance",
	})
}

func (s *smtpNotifier) NotifyAccountBlocked(ctx context.Context, account *db_models.Account) error {
	return s.deliver(ctx, account.Email, emailData{
		Title: "Your account has been blocked",
		Intro: fmt.Sprintf(
			"Hi %s, your account was blocked after an extended period of non-payment. "+
				"Please contact support to resolve this.",
			account.Name),
	})
}

func (s *smtpNotifier) portalLink(path string) string {
	return strings.TrimRight(s.cfg.AppBaseURL, "/") + path
}

// formatMinor renders minor units as a decimal amount. Currencies with
// non-cent minor units are out of scope for the catalog.
func formatMinor(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// ------------------- Rendering -------------------

type emailData struct {
	Title     string
	Intro     string
	ButtonURL string
	ButtonTxt string
	AppName   string
	Year      int
}

const billingHTMLTemplate = `<!doctype html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; padding: 0; background: #f4f5f7; color: #1f2937;
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; }
    .wrapper { width: 100%; padding: 40px 16px; box-sizing: border-box; }
    .container { max-width: 600px; margin: 0 auto; background: #ffffff;
      border-radius: 8px; overflow: hidden; border: 1px solid #e5e7eb; }
    .header { padding: 24px 32px; border-bottom: 1px solid #e5e7eb; }
    .brand { font-weight: 700; font-size: 20px; color: #1d4ed8; }
    .hero { padding: 32px; }
    h1 { margin: 0 0 16px; font-size: 24px; color: #111827; line-height: 1.3; }
    p { margin: 0 0 20px; line-height: 1.7; color: #4b5563; font-size: 15px; }
    .btn { display: inline-block; padding: 14px 28px; background: #1d4ed8;
      color: #ffffff !important; text-decoration: none; border-radius: 6px;
      font-weight: 600; font-size: 15px; }
    .footer { padding: 20px 32px; color: #6b7280; font-size: 13px;
      text-align: center; border-top: 1px solid #e5e7eb; background: #f9fafb; }
  </style>
</head>
<body>
  <div class="wrapper">
    <div class="container">
      <div class="header"><div class="brand">{{.AppName}}</div></div>
      <div class="hero">
        <h1>{{.Title}}</h1>
        <p>{{.Intro}}</p>
        {{if .ButtonURL}}
          <p><a class="btn" href="{{.ButtonURL}}">{{.ButtonTxt}}</a></p>
          <p>If the button does not work, copy this link into your browser:<br>
            <a href="{{.ButtonURL}}">{{.ButtonURL}}</a></p>
        {{end}}
      </div>
      <div class="footer">© {{.Year}} {{.AppName}}. All rights reserved.</div>
    </div>
  </div>
</body>
</html>`

const billingTextTemplate = `{{.Title}}

{{.Intro}}

{{if .ButtonURL}}Open this link:
{{.ButtonURL}}
{{end}}

-- {{.AppName}} (c) {{.Year}}
`

func (s *smtpNotifier) deliver(ctx context.Context, to string, data emailData) error {
	data.AppName = s.cfg.AppName
	data.Year = time.Now().Year()

	var hb, tb bytes.Buffer
	if err := s.htmlTpl.Execute(&hb, data); err != nil {
		return err
	}
	if err := s.textTpl.Execute(&tb, data); err != nil {
		return err
	}
	return s.send(ctx, to, data.Title, hb.String(), tb.String())
}

// ------------------- SMTP Send -------------------

func (s *smtpNotifier) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	fromHeader := s.formatFromHeader()
	date := time.Now().Format(time.RFC1123Z)
	boundary := fmt.Sprintf("mixed_%d", time.Now().UnixNano())

	var msg bytes.Buffer
	write := func(format string, a ...any) { _, _ = msg.WriteString(fmt.Sprintf(format, a...)) }

	write("From: %s\r\n", fromHeader)
	write("To: %s\r\n", to)
	write("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject))
	write("Date: %s\r\n", date)
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	write("\r\n")

	write("--%s\r\n", boundary)
	write("Content-Type: text/plain; charset=UTF-8\r\n")
	write("Content-Transfer-Encoding: 7bit\r\n\r\n")
	write("%s\r\n\r\n", textBody)

	write("--%s\r\n", boundary)
	write("Content-Type: text/html; charset=UTF-8\r\n")
	write("Content-Transfer-Encoding: 7bit\r\n\r\n")
	write("%s\r\n\r\n", htmlBody)

	write("--%s--\r\n", boundary)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	dialer := &net.Dialer{Timeout: 10 * time.Second}

	if s.cfg.UseSSL {
		// SMTPS (implicit TLS, usually port 465)
		tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
		if err != nil {
			return err
		}
		defer conn.Close()
		return s.submit(conn, auth, to, msg.Bytes(), false)
	}

	// STARTTLS path (typically port 587)
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	return s.submit(conn, auth, to, msg.Bytes(), true)
}

func (s *smtpNotifier) submit(conn net.Conn, auth smtp.Auth, to string, msg []byte, startTLS bool) error {
	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Quit()

	if startTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			tlsCfg := &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}
			if err = c.StartTLS(tlsCfg); err != nil {
				return err
			}
		} else if s.cfg.RequireTLS {
			return fmt.Errorf("server does not support STARTTLS and RequireTLS=true")
		}
	}

	if err = c.Auth(auth); err != nil {
		return err
	}
	if err = c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err = c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

func (s *smtpNotifier) formatFromHeader() string {
	name := strings.TrimSpace(s.cfg.FromName)
	if name == "" {
		return s.cfg.From
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("UTF-8", name), s.cfg.From)
}
