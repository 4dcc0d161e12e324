// Package anthropic implements the egress adapter for Anthropic Messages
// backends.
package anthropic

import (
	"context"
	"net/http"

	anthropicapi "github.com/tjfontaine/polyglot-llm-bridge/internal/api/anthropic"
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

// Provider implements domain.Egress for Anthropic Messages backends.
type Provider struct {
	client     *anthropicapi.Client
	httpClient *http.Client
}

// New creates a new Anthropic provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []anthropicapi.ClientOption
	if p.httpClient != nil {
		clientOpts = append(clientOpts, anthropicapi.WithHTTPClient(p.httpClient))
	}
	p.client = anthropicapi.NewClient(clientOpts...)
	return p
}

func (p *Provider) Kind() domain.EgressKind {
	return domain.EgressAnthropic
}

// BuildRequest renders the outbound HTTP request without sending it.
func (p *Provider) BuildRequest(ctx context.Context, req *domain.CanonicalRequest, route *domain.RouteEntry) (*http.Request, error) {
	apiReq, err := toAPIRequest(req)
	if err != nil {
		return nil, err
	}
	return p.client.NewMessagesRequest(ctx, endpoint(route), apiReq)
}

func (p *Provider) Complete(ctx context.Context, req *domain.CanonicalRequest, route *domain.RouteEntry) (*domain.CanonicalResponse, error) {
	apiReq, err := toAPIRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateMessage(ctx, endpoint(route), apiReq)
	if err != nil {
		return nil, err
	}

	return toCanonicalResponse(resp)
}

func (p *Provider) Stream(ctx context.Context, req *domain.CanonicalRequest, route *domain.RouteEntry) (domain.ChunkSource, domain.StreamDecoder, error) {
	apiReq, err := toAPIRequest(req)
	if err != nil {
		return nil, nil, err
	}

	stream, err := p.client.StreamMessage(ctx, endpoint(route), apiReq)
	if err != nil {
		return nil, nil, err
	}

	return stream, NewStreamDecoder(), nil
}

func endpoint(route *domain.RouteEntry) anthropicapi.Endpoint {
	return anthropicapi.Endpoint{BaseURL: route.BaseURL, APIKey: route.APIKey}
}
