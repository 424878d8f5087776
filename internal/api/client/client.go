// Package client talks to the admin API of a running socialeye daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/socialeye/internal/models"
)

var ErrNoToken = errors.New("admin API token is not set")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// CheckResult is the answer to a manual rule check.
type CheckResult struct {
	Triggered bool          `json:"triggered"`
	Alert     *models.Alert `json:"alert"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for baseURL authenticating with a bearer token.
// A nil httpClient gets a 10s timeout.
func NewClient(baseURL, token string, httpClient *http.Client) (*Client, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, token: token, httpClient: httpClient}, nil
}

func (c *Client) ListRules(ctx context.Context) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	if err := c.do(ctx, http.MethodGet, "/api/v1/rules", nil, nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (c *Client) SetRuleEnabled(ctx context.Context, id string, enabled bool) (*models.AlertRule, error) {
	action := "disable"
	if enabled {
		action = "enable"
	}
	var rule models.AlertRule
	if err := c.do(ctx, http.MethodPut, "/api/v1/rules/"+url.PathEscape(id)+"/"+action, nil, nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/rules/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) CheckRule(ctx context.Context, id string) (*CheckResult, error) {
	var res CheckResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/rules/"+url.PathEscape(id)+"/check", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	var alerts []models.Alert
	if err := c.do(ctx, http.MethodGet, "/api/v1/alerts/active", nil, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) History(ctx context.Context, limit int) ([]models.Alert, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var alerts []models.Alert
	if err := c.do(ctx, http.MethodGet, "/api/v1/alerts/history", query, nil, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// ResolveAlert resolves alertID. An empty resolvedBy lets the server record
// the token subject.
func (c *Client) ResolveAlert(ctx context.Context, alertID, resolvedBy string) error {
	var body any
	if resolvedBy != "" {
		body = map[string]string{"resolved_by": resolvedBy}
	}
	return c.do(ctx, http.MethodPut, "/api/v1/alerts/"+url.PathEscape(alertID)+"/resolve", nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, data, v any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = path.Join(u.Path, endpoint)
	u.RawQuery = query.Encode()

	var body io.Reader
	if data != nil {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
