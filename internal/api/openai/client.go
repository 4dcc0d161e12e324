package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/sse"
)

const (
	defaultUserAgent = "polyglot-llm-bridge/1.0"

	// maxErrorBody bounds how much of a failed reply is read for the message.
	maxErrorBody = 64 * 1024
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// Endpoint is the backend a single call is sent to.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

func (e Endpoint) url(path string) string {
	return strings.TrimSuffix(e.BaseURL, "/") + path
}

// Client talks to any OpenAI-compatible backend. Credentials are supplied
// per call so one client serves every registry entry.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a new OpenAI-compatible API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewChatCompletionRequest builds the outbound HTTP request without sending it.
func (c *Client) NewChatCompletionRequest(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setHeaders(httpReq, ep)
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

// CreateChatCompletion sends a buffered chat completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	req.Stream = false
	req.StreamOptions = nil

	httpReq, err := c.NewChatCompletionRequest(ctx, ep, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readError(resp)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// StreamChatCompletion opens a streaming chat completion. The caller owns the
// returned stream and must Close it.
func (c *Client) StreamChatCompletion(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) (*Stream, error) {
	req.Stream = true

	httpReq, err := c.NewChatCompletionRequest(ctx, ep, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, readError(resp)
	}

	return &Stream{body: resp.Body, reader: sse.NewReader(resp.Body)}, nil
}

// Stream yields the data payload of each SSE frame, including the
// terminating [DONE] sentinel.
type Stream struct {
	body   io.ReadCloser
	reader *sse.Reader
}

func (s *Stream) Next() ([]byte, error) {
	ev, err := s.reader.Next()
	if err != nil {
		return nil, err
	}
	return ev.Data, nil
}

func (s *Stream) Close() error {
	return s.body.Close()
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return ParseErrorResponse(resp.StatusCode, body)
}

func (c *Client) setHeaders(req *http.Request, ep Endpoint) {
	req.Header.Set("Content-Type", "application/json")
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}
	req.Header.Set("User-Agent", c.userAgent)
}
