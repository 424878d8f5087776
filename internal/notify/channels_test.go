package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialeye/internal/models"
)

type recordingEmail struct {
	to      []string
	subject string
	body    string
	err     error
}

func (r *recordingEmail) SendEmail(_ context.Context, to []string, subject, body string) error {
	r.to, r.subject, r.body = to, subject, body
	return r.err
}

func TestEmailNotifier(t *testing.T) {
	sender := &recordingEmail{}
	n := NewEmailNotifier(sender, []string{"ops@example.com"})

	err := n.Notify(context.Background(), newTestAlert(), models.AlertChannel{
		Kind:   models.ChannelEmail,
		Config: map[string]any{"to": []any{"oncall@example.com"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"oncall@example.com"}, sender.to)
	assert.Equal(t, "[HIGH] API latency: response_time > 2000", sender.subject)
	assert.Contains(t, sender.body, "Rule: API latency")
	assert.Contains(t, sender.body, "Alert ID: alert-1")

	require.NoError(t, n.Notify(context.Background(), newTestAlert(), models.AlertChannel{Kind: models.ChannelEmail}))
	assert.Equal(t, []string{"ops@example.com"}, sender.to)
}

func TestEmailNotifier_NoRecipients(t *testing.T) {
	n := NewEmailNotifier(&recordingEmail{}, nil)
	err := n.Notify(context.Background(), newTestAlert(), models.AlertChannel{Kind: models.ChannelEmail})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

type recordingSlack struct {
	channel string
	msg     SlackMessage
}

func (r *recordingSlack) SendSlack(_ context.Context, channel string, msg SlackMessage) error {
	r.channel, r.msg = channel, msg
	return nil
}

func TestSlackNotifier(t *testing.T) {
	sender := &recordingSlack{}
	n := NewSlackNotifier(sender, "#alerts")

	require.NoError(t, n.Notify(context.Background(), newTestAlert(), models.AlertChannel{Kind: models.ChannelSlack}))
	assert.Equal(t, "#alerts", sender.channel)
	assert.Equal(t, "#FF6600", sender.msg.Color)
	assert.Equal(t, "SocialEye Alert: API latency: response_time > 2000", sender.msg.Title)

	require.NoError(t, n.Notify(context.Background(), newTestAlert(), models.AlertChannel{
		Kind:   models.ChannelSlack,
		Config: map[string]any{"channel": "#sre"},
	}))
	assert.Equal(t, "#sre", sender.channel)
}

func TestSlackAPISender_PostMessage(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		assert.True(t, strings.HasSuffix(r.URL.Path, "chat.postMessage"))
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"channel":"C123","ts":"1700000000.000100"}`)
	}))
	defer srv.Close()

	s := NewSlackAPISender("xoxb-test", "", slack.OptionAPIURL(srv.URL+"/"))
	require.NoError(t, s.SendSlack(context.Background(), "#alerts", slackMessage(newTestAlert())))

	assert.Equal(t, []string{"#alerts"}, form["channel"])
	require.Len(t, form["attachments"], 1)
	var atts []map[string]any
	require.NoError(t, json.Unmarshal([]byte(form["attachments"][0]), &atts))
	require.Len(t, atts, 1)
	assert.Equal(t, "SocialEye Alerting", atts[0]["footer"])
}

func TestSlackAPISender_Webhook(t *testing.T) {
	var got slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewSlackAPISender("", srv.URL)
	require.NoError(t, s.SendSlack(context.Background(), "#alerts", slackMessage(newTestAlert())))
	assert.Equal(t, "#alerts", got.Channel)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "#FF6600", got.Attachments[0].Color)
}

func TestSlackAPISender_NotConfigured(t *testing.T) {
	s := NewSlackAPISender("", "")
	assert.ErrorIs(t, s.SendSlack(context.Background(), "#x", SlackMessage{}), ErrSlackNotConfigured)
}

type recordingSMS struct {
	sent []string
	fail map[string]error
}

func (r *recordingSMS) SendSMS(_ context.Context, to, message string) error {
	if err := r.fail[to]; err != nil {
		return err
	}
	r.sent = append(r.sent, to+"|"+message)
	return nil
}

func TestSMSNotifier_PartialFailure(t *testing.T) {
	sender := &recordingSMS{fail: map[string]error{"+15550002": errors.New("carrier rejected")}}
	n := NewSMSNotifier(sender, nil)

	err := n.Notify(context.Background(), newTestAlert(), models.AlertChannel{
		Kind:   models.ChannelSMS,
		Config: map[string]any{"to": "+15550001,+15550002"},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "+15550002")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "+15550001|[HIGH] API latency: response_time > 2000", sender.sent[0])
}

func TestSMSText_Truncates(t *testing.T) {
	a := newTestAlert()
	a.Title = strings.Repeat("x", 300)
	text := smsText(a)
	assert.Len(t, text, maxSMSLength)
	assert.True(t, strings.HasSuffix(text, "..."))
}

func TestSMSText_TruncatesOnRuneBoundary(t *testing.T) {
	a := newTestAlert()
	a.Title = strings.Repeat("é", 300)
	text := smsText(a)
	assert.True(t, utf8.ValidString(text))
	assert.Equal(t, maxSMSLength, utf8.RuneCountInString(text))
	assert.True(t, strings.HasSuffix(text, "é..."))
}

func TestHTTPSMSSender(t *testing.T) {
	var (
		user, pass string
		form       map[string][]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		_ = r.ParseForm()
		form = r.PostForm
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := NewHTTPSMSSender(srv.Client(), srv.URL, "AC1", "secret", "+15550000")
	require.NoError(t, s.SendSMS(context.Background(), "+15550001", "hello"))
	assert.Equal(t, "AC1", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, []string{"+15550001"}, form["To"])
	assert.Equal(t, []string{"+15550000"}, form["From"])
	assert.Equal(t, []string{"hello"}, form["Body"])
}

func TestHTTPSMSSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewHTTPSMSSender(srv.Client(), srv.URL, "", "", "")
	err := s.SendSMS(context.Background(), "+1", "x")
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusUnauthorized, de.StatusCode)
}
