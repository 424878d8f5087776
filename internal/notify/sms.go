package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/socialeye/internal/models"
)

const maxSMSLength = 160

// SMSSender is the outbound SMS collaborator.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type SMSNotifier struct {
	sender    SMSSender
	defaultTo []string
}

func NewSMSNotifier(sender SMSSender, defaultTo []string) *SMSNotifier {
	return &SMSNotifier{sender: sender, defaultTo: defaultTo}
}

func (n *SMSNotifier) Kind() models.ChannelKind { return models.ChannelSMS }

// Notify texts every recipient; the delivery fails if any recipient fails.
func (n *SMSNotifier) Notify(ctx context.Context, alert *models.Alert, channel models.AlertChannel) error {
	to := configStrings(channel.Config, "to")
	if len(to) == 0 {
		to = n.defaultTo
	}
	if len(to) == 0 {
		return &DeliveryError{Channel: models.ChannelSMS, Err: ErrNoRecipients}
	}

	text := smsText(alert)
	var errs []error
	for _, number := range to {
		if err := n.sender.SendSMS(ctx, number, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", number, err))
		}
	}
	return errors.Join(errs...)
}

func smsText(alert *models.Alert) string {
	text := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)
	if runes := []rune(text); len(runes) > maxSMSLength {
		text = string(runes[:maxSMSLength-3]) + "..."
	}
	return text
}

// HTTPSMSSender talks to a Twilio-compatible messages endpoint: a form POST
// of To, From and Body with basic auth.
type HTTPSMSSender struct {
	client     *http.Client
	endpoint   string
	accountSID string
	authToken  string
	from       string
}

func NewHTTPSMSSender(client *http.Client, endpoint, accountSID, authToken, from string) *HTTPSMSSender {
	if client == nil {
		client = &http.Client{Timeout: DefaultDeliveryTimeout}
	}
	return &HTTPSMSSender{
		client:     client,
		endpoint:   endpoint,
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
	}
}

func (s *HTTPSMSSender) SendSMS(ctx context.Context, to, message string) error {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.accountSID != "" {
		req.SetBasicAuth(s.accountSID, s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send sms: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{Channel: models.ChannelSMS, StatusCode: resp.StatusCode}
	}
	return nil
}
