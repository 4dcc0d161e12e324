// Package openai implements the egress adapter for OpenAI-compatible Chat
// Completions backends.
package openai

import (
	"context"
	"net/http"

	openaiapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/openai"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithIncludeUsage controls whether streams ask the backend for a trailing
// usage chunk. Some compatible servers reject stream_options.
func WithIncludeUsage(include bool) ProviderOption {
	return func(p *Provider) {
		p.includeUsage = include
	}
}

// Provider implements domain.Egress for OpenAI-compatible backends.
type Provider struct {
	client       *openaiapi.Client
	httpClient   *http.Client
	includeUsage bool
}

// New creates a new OpenAI-compatible provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{includeUsage: true}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []openaiapi.ClientOption
	if p.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(p.httpClient))
	}
	p.client = openaiapi.NewClient(clientOpts...)
	return p
}

func (p *Provider) Kind() domain.EgressKind {
	return domain.EgressOpenAICompatible
}

// BuildRequest renders the outbound HTTP request for req against route
// without sending it.
func (p *Provider) BuildRequest(ctx context.Context, req *domain.CanonicalRequest, route *domain.RouteEntry) (*http.Request, error) {
	apiReq, err := p.apiRequest(req)
	if err != nil {
		return nil, err
	}
	return p.client.NewChatCompletionRequest(ctx, endpoint(route), apiReq)
}

func (p *Provider) Complete(ctx context.Context, req *domain.CanonicalRequest, route *domain.RouteEntry) (*domain.CanonicalResponse, error) {
	apiReq, err := p.apiRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, endpoint(route), apiReq)
	if err != nil {
		return nil, err
	}

	return toCanonicalResponse(resp)
}

func (p *Provider) Stream(ctx context.Context, req *domain.CanonicalRequest, route *domain.RouteEntry) (domain.ChunkSource, domain.StreamDecoder, error) {
	apiReq, err := p.apiRequest(req)
	if err != nil {
		return nil, nil, err
	}

	stream, err := p.client.StreamChatCompletion(ctx, endpoint(route), apiReq)
	if err != nil {
		return nil, nil, err
	}

	return stream, NewStreamDecoder(), nil
}

func (p *Provider) apiRequest(req *domain.CanonicalRequest) (*openaiapi.ChatCompletionRequest, error) {
	apiReq, err := toAPIRequest(req)
	if err != nil {
		return nil, err
	}
	if req.Stream && p.includeUsage {
		apiReq.StreamOptions = &openaiapi.StreamOptions{IncludeUsage: true}
	}
	return apiReq, nil
}

func endpoint(route *domain.RouteEntry) openaiapi.Endpoint {
	return openaiapi.Endpoint{BaseURL: route.BaseURL, APIKey: route.APIKey}
}
