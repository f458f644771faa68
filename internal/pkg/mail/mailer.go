// Package mail sends the transactional mails of the storefront over SMTP.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/gofiber/fiber/v2/log"
	"gopkg.in/gomail.v2"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/internal/pkg/config"
	"github.com/kazka-books/kazka/internal/pkg/plans"
)

var (
	requestTemplate = template.Must(template.New("request").Parse(`<p>New subscription request {{.Request.ID}}</p>
<ul>
<li>Name: {{.Request.Name}}</li>
<li>Email: {{.Request.Email}}</li>
<li>Phone: {{.Request.Phone}}</li>
<li>Plan: {{.PlanTitle}}</li>
<li>Payment method: {{.Request.PaymentMethod}}</li>
{{- if .Payment}}
<li>Invoice: {{.Payment.InvoiceID}} ({{.Payment.Amount}} {{.Payment.Currency}} minor units)</li>
{{- end}}
</ul>`))

	welcomeTemplate = template.Must(template.New("welcome").Parse(`<p>Hello {{.Name}},</p>
<p>thank you for subscribing to Kazka. Your account is ready.</p>
<p>Login: {{.Email}}<br>
Temporary password: <b>{{.Password}}</b></p>
<p>Please change the password after your first login.</p>`))
)

// Sender implements billing.Notifier with gomail.
type Sender struct {
	from       string
	adminEmail string
	// send is swapped in tests
	send func(m *gomail.Message) error
}

// NewSender creates a sender for the SMTP settings. With an incomplete
// configuration mails are only logged.
func NewSender(cfg config.Mail, adminEmail string) *Sender {
	s := &Sender{
		from:       cfg.From,
		adminEmail: adminEmail,
	}
	if cfg.Enabled() {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		s.send = func(m *gomail.Message) error {
			return d.DialAndSend(m)
		}
	}
	return s
}

// NotifySubscriptionRequest mails the shop owner about a new request.
func (s *Sender) NotifySubscriptionRequest(ctx context.Context, req *models.SubscriptionRequest, payment *models.Payment) error {
	if s.adminEmail == "" {
		return nil
	}
	plan, _ := plans.Parse(req.Plan)
	body, err := render(requestTemplate, map[string]any{
		"Request":   req,
		"Payment":   payment,
		"PlanTitle": plans.Title(plan),
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, s.adminEmail, fmt.Sprintf("New subscription: %s (%s)", req.Name, req.Plan), body)
}

// NotifyAccountCreated mails the subscriber the generated credentials.
func (s *Sender) NotifyAccountCreated(ctx context.Context, user *models.User, temporaryPassword string) error {
	name := user.Email
	if user.Profile != nil && user.Profile.Name != "" {
		name = user.Profile.Name
	}
	body, err := render(welcomeTemplate, map[string]any{
		"Name":     name,
		"Email":    user.Email,
		"Password": temporaryPassword,
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, user.Email, "Your Kazka account", body)
}

func (s *Sender) deliver(ctx context.Context, to, subject, body string) error {
	if s.send == nil {
		log.Infof("[Mail] SMTP not configured, skipping %q to %s", subject, to)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.send(m); err != nil {
		log.Errorf("[Mail] send to %s failed: %v", to, err)
		return fmt.Errorf("send mail: %w", err)
	}
	log.Infof("[Mail] %q sent to %s", subject, to)
	return nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s mail: %w", t.Name(), err)
	}
	return buf.String(), nil
}
