package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

const (
	defaultAPIVersion = "2023-06-01"
	DefaultBaseURL    = "https://api.anthropic.com"
)

// ErrorResponse represents the API's error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Client represents the Claude messages API client.
type Client struct {
	httpClient *http.Client
	apiKey     string
	APIVersion string
	BaseURL    string
}

// NewClient initializes and returns a new API client.
func NewClient(apiKey string, baseURL string, apiVersion ...string) *Client {
	version := defaultAPIVersion
	if len(apiVersion) > 0 {
		version = apiVersion[0]
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		BaseURL:    baseURL,
		APIVersion: version,
	}
}

// WithHTTPClient replaces the http client, mostly for tests.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	c.httpClient = httpClient
	return c
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.APIVersion)
	req.Header.Set("Content-Type", "application/json")
}

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MessageRequest is the body of a /v1/messages call.
type MessageRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

// StreamMessage posts req with streaming enabled and returns the server sent
// events as they arrive. The channel is closed when the body ends, when a
// read fails (after an ErrorType event) or when ctx is cancelled.
func (c *Client) StreamMessage(ctx context.Context, req *MessageRequest) (<-chan StreamingEvent, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		return nil, decodeError(resp)
	}

	events := make(chan StreamingEvent)
	go func() {
		defer close(events)
		streamEvents(ctx, resp, events)
	}()

	return events, nil
}

func decodeError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)
	var errorResp ErrorResponse
	if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error.Message == "" {
		return errors.Errorf("claude api returned status %d", resp.StatusCode)
	}
	return errors.Errorf("%s: %s", errorResp.Error.Type, errorResp.Error.Message)
}
