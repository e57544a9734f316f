package actionrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chainreact/chainreact/pkg/domain"
)

// Client dispatches workflow node actions to an external action runner
// service over HTTP. Concrete action implementations (send mail, post
// message, create issue) live behind that boundary; the engine only sees
// the domain.ActionExecutor contract.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type ClientOption func(*ClientConfig)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *ClientConfig) {
		c.BaseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *ClientConfig) {
		c.APIKey = apiKey
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.Timeout = timeout
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *ClientConfig) {
		c.HTTPClient = httpClient
	}
}

func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 60 * time.Second,
	}
}

func NewClient(options ...ClientOption) *Client {
	config := DefaultConfig()

	for _, option := range options {
		option(config)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}
}

type ExecuteActionRequest struct {
	WorkflowID  string         `json:"workflow_id"`
	UserID      string         `json:"user_id"`
	NodeID      string         `json:"node_id"`
	Provider    string         `json:"provider,omitempty"`
	ActionType  string         `json:"action_type"`
	Config      map[string]any `json:"config,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	AccessToken string         `json:"access_token,omitempty"`
}

type ExecuteActionResponse struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Message string         `json:"message,omitempty"`
}

// Execute forwards a node to the action runner and reports its outcome.
func (c *Client) Execute(ctx context.Context, p domain.ExecuteActionParams) (domain.ActionResult, error) {
	req := ExecuteActionRequest{
		WorkflowID: p.WorkflowID,
		UserID:     p.UserID,
		NodeID:     p.Node.ID,
		Provider:   string(p.Node.Provider),
		ActionType: p.Node.ActionType,
		Config:     p.Node.Config,
		Input:      p.Input,
	}

	if p.Credential != nil {
		req.AccessToken = p.Credential.Integration.AccessSecret
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/actions/execute", req)
	if err != nil {
		return domain.ActionResult{}, fmt.Errorf("failed to execute action for node %s: %w", p.Node.ID, err)
	}

	var result ExecuteActionResponse
	if err := c.handleResponse(resp, &result); err != nil {
		return domain.ActionResult{}, fmt.Errorf("failed to process action response for node %s: %w", p.Node.ID, err)
	}

	return domain.ActionResult{
		Success: result.Success,
		Output:  result.Output,
		Message: result.Message,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method string, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	return c.httpClient.Do(req)
}

func (c *Client) handleResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("action runner returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}

	return nil
}
