package anthropic

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
	defaultBaseURL   = "https://api.anthropic.com"
	defaultVersion   = "2023-06-01"
	defaultUserAgent = "polyglot-llm-bridge/1.0"
	maxErrorBody     = 64 * 1024
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithVersion sets the API version.
func WithVersion(version string) ClientOption {
	return func(c *Client) {
		c.version = version
	}
}

// Endpoint is the backend a single call is sent to.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// messagesURL accepts base URLs with or without the /v1 suffix.
func (e Endpoint) messagesURL() string {
	base := strings.TrimSuffix(e.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/messages"
	}
	return base + "/v1/messages"
}

// Client is an HTTP client for Anthropic Messages backends.
type Client struct {
	version    string
	httpClient *http.Client
}

// NewClient creates a new Anthropic API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		version:    defaultVersion,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMessagesRequest builds the outbound HTTP request without sending it.
func (c *Client) NewMessagesRequest(ctx context.Context, ep Endpoint, req *MessagesRequest) (*http.Request, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", c.version)
	httpReq.Header.Set("User-Agent", defaultUserAgent)
	if ep.APIKey != "" {
		httpReq.Header.Set("x-api-key", ep.APIKey)
	}
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

// CreateMessage sends a buffered messages request.
func (c *Client) CreateMessage(ctx context.Context, ep Endpoint, req *MessagesRequest) (*MessagesResponse, error) {
	req.Stream = false

	httpReq, err := c.NewMessagesRequest(ctx, ep, req)
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

	var result MessagesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// StreamMessage opens a streaming messages request. The caller owns the
// returned stream and must Close it.
func (c *Client) StreamMessage(ctx context.Context, ep Endpoint, req *MessagesRequest) (*Stream, error) {
	req.Stream = true

	httpReq, err := c.NewMessagesRequest(ctx, ep, req)
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

// Stream yields the data payload of each SSE frame. Anthropic payloads carry
// their own type discriminator so the event: line is not needed.
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
