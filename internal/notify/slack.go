package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/slack-go/slack"

	"github.com/socialeye/internal/models"
)

var ErrSlackNotConfigured = errors.New("slack token or webhook url not configured")

type SlackField struct {
	Title string
	Value string
	Short bool
}

type SlackMessage struct {
	Title  string
	Text   string
	Color  string
	Fields []SlackField
	Ts     time.Time
}

// SlackSender is the outbound Slack collaborator.
type SlackSender interface {
	SendSlack(ctx context.Context, channel string, msg SlackMessage) error
}

type SlackNotifier struct {
	sender         SlackSender
	defaultChannel string
}

func NewSlackNotifier(sender SlackSender, defaultChannel string) *SlackNotifier {
	return &SlackNotifier{sender: sender, defaultChannel: defaultChannel}
}

func (n *SlackNotifier) Kind() models.ChannelKind { return models.ChannelSlack }

func (n *SlackNotifier) Notify(ctx context.Context, alert *models.Alert, channel models.AlertChannel) error {
	target := configString(channel.Config, "channel")
	if target == "" {
		target = n.defaultChannel
	}
	return n.sender.SendSlack(ctx, target, slackMessage(alert))
}

func slackMessage(alert *models.Alert) SlackMessage {
	return SlackMessage{
		Title: fmt.Sprintf("SocialEye Alert: %s", alert.Title),
		Text:  alert.Description,
		Color: severityColor(alert.Severity),
		Fields: []SlackField{
			{Title: "Rule", Value: alert.RuleName(), Short: true},
			{Title: "Severity", Value: string(alert.Severity), Short: true},
			{Title: "Alert ID", Value: alert.ID, Short: true},
			{Title: "Started", Value: alert.Timestamp.UTC().Format(time.RFC3339), Short: true},
		},
		Ts: alert.Timestamp,
	}
}

func severityColor(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "#FF0000"
	case models.SeverityHigh:
		return "#FF6600"
	case models.SeverityMedium:
		return "#FFA500"
	case models.SeverityLow:
		return "#36A64F"
	default:
		return "#808080"
	}
}

// SlackAPISender posts through chat.postMessage when it has a bot token and
// through an incoming webhook otherwise.
type SlackAPISender struct {
	client     *slack.Client
	webhookURL string
}

func NewSlackAPISender(token, webhookURL string, opts ...slack.Option) *SlackAPISender {
	s := &SlackAPISender{webhookURL: webhookURL}
	if token != "" {
		s.client = slack.New(token, opts...)
	}
	return s
}

func (s *SlackAPISender) SendSlack(ctx context.Context, channel string, msg SlackMessage) error {
	att := toAttachment(msg)

	if s.client != nil {
		_, _, err := s.client.PostMessageContext(ctx, channel, slack.MsgOptionAttachments(att))
		if err != nil {
			return fmt.Errorf("failed to post slack message: %w", err)
		}
		return nil
	}

	if s.webhookURL == "" {
		return ErrSlackNotConfigured
	}
	err := slack.PostWebhookContext(ctx, s.webhookURL, &slack.WebhookMessage{
		Channel:     channel,
		Attachments: []slack.Attachment{att},
	})
	if err != nil {
		return fmt.Errorf("failed to post slack webhook: %w", err)
	}
	return nil
}

func toAttachment(msg SlackMessage) slack.Attachment {
	fields := make([]slack.AttachmentField, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, slack.AttachmentField{Title: f.Title, Value: f.Value, Short: f.Short})
	}
	return slack.Attachment{
		Color:  msg.Color,
		Title:  msg.Title,
		Text:   msg.Text,
		Fields: fields,
		Footer: "SocialEye Alerting",
		Ts:     json.Number(strconv.FormatInt(msg.Ts.Unix(), 10)),
	}
}
