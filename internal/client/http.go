package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apexops/dashboard/internal/domain"
	"github.com/pkg/errors"
)

// APIError is a non-2xx response from the REST API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// HTTPClient makes REST calls to the dashboard API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:5000").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) ListAgents(ctx context.Context, userID string) ([]domain.Agent, error) {
	var out []domain.Agent
	err := c.do(ctx, http.MethodGet, "/api/agents"+query("userId", userID), nil, &out)
	return out, err
}

func (c *HTTPClient) CreateAgent(ctx context.Context, in domain.AgentInput) (domain.Agent, error) {
	var out domain.Agent
	err := c.do(ctx, http.MethodPost, "/api/agents", in, &out)
	return out, err
}

func (c *HTTPClient) UpdateAgentStatus(ctx context.Context, id string, status domain.AgentStatus) (domain.Agent, error) {
	var out domain.Agent
	body := map[string]domain.AgentStatus{"status": status}
	err := c.do(ctx, http.MethodPatch, "/api/agents/"+url.PathEscape(id)+"/status", body, &out)
	return out, err
}

func (c *HTTPClient) ListGPUResources(ctx context.Context, availableOnly bool) ([]domain.GPUResource, error) {
	path := "/api/gpu-resources"
	if availableOnly {
		path += "?available=true"
	}
	var out []domain.GPUResource
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *HTTPClient) DashboardStats(ctx context.Context, userID string) (domain.DashboardStats, error) {
	var out domain.DashboardStats
	err := c.do(ctx, http.MethodGet, "/api/dashboard/stats"+query("userId", userID), nil, &out)
	return out, err
}

func (c *HTTPClient) ListAlerts(ctx context.Context, userID string) ([]domain.Alert, error) {
	var out []domain.Alert
	err := c.do(ctx, http.MethodGet, "/api/alerts"+query("userId", userID), nil, &out)
	return out, err
}

func (c *HTTPClient) MarkAlertRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/api/alerts/"+url.PathEscape(id)+"/read", nil, nil)
}

func query(key, value string) string {
	if value == "" {
		return ""
	}
	return "?" + url.Values{key: {value}}.Encode()
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s %s", method, path)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Type = body.Type
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}
