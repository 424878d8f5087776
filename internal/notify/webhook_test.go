package notify

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialeye/internal/models"
)

func TestWebhookNotifier_PostsEnvelope(t *testing.T) {
	var (
		gotBody   map[string]any
		gotCT     string
		gotTenant string
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCT = r.Header.Get("Content-Type")
		gotTenant = r.Header.Get("X-Tenant")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.Client(), "")
	err := n.Notify(context.Background(), newTestAlert(), models.AlertChannel{
		Kind:    models.ChannelWebhook,
		Enabled: true,
		Config: map[string]any{
			"url":     srv.URL,
			"headers": map[string]any{"X-Tenant": "acme"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "acme", gotTenant)

	alert, ok := gotBody["alert"].(map[string]any)
	require.True(t, ok, "body must be wrapped in an alert envelope")
	assert.Equal(t, "alert-1", alert["id"])
	assert.Equal(t, "high", alert["severity"])
	assert.Equal(t, "API latency: response_time > 2000", alert["title"])
	assert.Equal(t, "2026-03-01T12:00:00Z", alert["timestamp"])
	assert.Equal(t, map[string]any{"rule_name": "API latency"}, alert["metadata"])
}

func TestWebhookNotifier_DefaultURL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.Client(), srv.URL)
	require.NoError(t, n.Notify(context.Background(), newTestAlert(), models.AlertChannel{Kind: models.ChannelWebhook}))
	assert.Equal(t, 1, hits)
}

func TestWebhookNotifier_EmptyMetadataEncodesAsObject(t *testing.T) {
	a := newTestAlert()
	a.Metadata = nil
	raw, err := json.Marshal(newWebhookEnvelope(a))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"metadata":{}`)
}

func TestWebhookNotifier_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.Client(), srv.URL)
	err := n.Notify(context.Background(), newTestAlert(), models.AlertChannel{Kind: models.ChannelWebhook})

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, http.StatusBadGateway, de.StatusCode)
}

func TestWebhookNotifier_ConnectionRefused(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	n := NewWebhookNotifier(nil, "")
	err = n.Notify(context.Background(), newTestAlert(), models.AlertChannel{
		Kind:   models.ChannelWebhook,
		Config: map[string]any{"url": "http://" + addr + "/hook"},
	})
	var de *DeliveryError
	assert.ErrorAs(t, err, &de)
}

func TestWebhookNotifier_NoURL(t *testing.T) {
	n := NewWebhookNotifier(nil, "")
	err := n.Notify(context.Background(), newTestAlert(), models.AlertChannel{Kind: models.ChannelWebhook})
	assert.ErrorIs(t, err, ErrNoWebhookURL)
}
