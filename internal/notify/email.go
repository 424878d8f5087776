package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/socialeye/internal/models"
)

var ErrNoRecipients = errors.New("no recipients configured")

// EmailSender is the outbound mail collaborator.
type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

type EmailNotifier struct {
	sender    EmailSender
	defaultTo []string
}

func NewEmailNotifier(sender EmailSender, defaultTo []string) *EmailNotifier {
	return &EmailNotifier{sender: sender, defaultTo: defaultTo}
}

func (n *EmailNotifier) Kind() models.ChannelKind { return models.ChannelEmail }

func (n *EmailNotifier) Notify(ctx context.Context, alert *models.Alert, channel models.AlertChannel) error {
	to := configStrings(channel.Config, "to")
	if len(to) == 0 {
		to = n.defaultTo
	}
	if len(to) == 0 {
		return &DeliveryError{Channel: models.ChannelEmail, Err: ErrNoRecipients}
	}
	return n.sender.SendEmail(ctx, to, emailSubject(alert), emailBody(alert))
}

func emailSubject(alert *models.Alert) string {
	return fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
}

func emailBody(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rule: %s\n", alert.RuleName())
	fmt.Fprintf(&b, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&b, "Alert ID: %s\n", alert.ID)
	fmt.Fprintf(&b, "Time: %s\n", alert.Timestamp.UTC().Format(time.RFC3339))
	if alert.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", alert.Description)
	}
	return b.String()
}

// GomailSender sends plain-text mail over SMTP.
type GomailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewGomailSender(host string, port int, from, password string) *GomailSender {
	return &GomailSender{
		dialer: gomail.NewDialer(host, port, from, password),
		from:   from,
	}
}

// SendEmail gives up waiting when ctx ends; gomail itself cannot be
// cancelled, so the SMTP exchange finishes in the background.
func (s *GomailSender) SendEmail(ctx context.Context, to []string, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
