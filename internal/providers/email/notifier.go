package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

// ReminderData feeds the charge_reminder template.
type ReminderData struct {
	To         string
	ClientName string
	PlanName   string
	Amount     int64
	DueDate    time.Time
	PaymentKey string
	ChargeID   string
}

// WelcomeData feeds the welcome template.
type WelcomeData struct {
	To               string
	ClientName       string
	PlanName         string
	PlanPrice        int64
	Recurrence       string
	PaymentKey       string
	BillingStartDate time.Time
}

// Notifier is the notification collaborator the billing engine and client
// onboarding depend on.
type Notifier interface {
	SendChargeReminder(ctx context.Context, data ReminderData) error
	SendWelcome(ctx context.Context, data WelcomeData) error
}

// TemplateNotifier renders embedded HTML templates and sends them through a
// Provider.
type TemplateNotifier struct {
	provider  Provider
	templates *template.Template
}

func NewTemplateNotifier(provider Provider) (*TemplateNotifier, error) {
	templates, err := template.New("email").Funcs(template.FuncMap{
		"amount": FormatAmount,
		"day":    func(t time.Time) string { return t.Format("02/01/2006") },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	return &TemplateNotifier{provider: provider, templates: templates}, nil
}

func (n *TemplateNotifier) SendChargeReminder(ctx context.Context, data ReminderData) error {
	body, err := n.render("charge_reminder.html", data)
	if err != nil {
		return err
	}
	subject := "Pagamento vence HOJE!"
	if err := n.provider.Send(ctx, []string{data.To}, subject, body); err != nil {
		return fmt.Errorf("send charge reminder: %w", err)
	}
	return nil
}

func (n *TemplateNotifier) SendWelcome(ctx context.Context, data WelcomeData) error {
	body, err := n.render("welcome.html", data)
	if err != nil {
		return err
	}
	subject := "Mensagem de boas vindas!"
	if err := n.provider.Send(ctx, []string{data.To}, subject, body); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

func (n *TemplateNotifier) render(name string, data any) (string, error) {
	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", name, err)
	}
	return body.String(), nil
}

// FormatAmount renders minor units as a decimal string ("10000" -> "100.00").
func FormatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
