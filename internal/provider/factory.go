// Package provider builds the closed set of egress adapters.
//
// # Adding a New Backend Family
//
// Add a domain.EgressKind constant (and its routing-table spelling in
// domain.ParseEgressKind), implement domain.Egress in a subpackage, and add a
// case to New. The registry rejects unknown kinds at startup, so there is no
// runtime lookup by name.
package provider

import (
	"fmt"
	"net/http"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/provider/anthropic"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/provider/openai"
)

// Options are shared by every egress adapter.
type Options struct {
	HTTPClient *http.Client

	// IncludeUsage asks OpenAI-compatible backends for stream usage.
	IncludeUsage bool
}

// New returns the adapter for kind.
func New(kind domain.EgressKind, opts Options) (domain.Egress, error) {
	switch kind {
	case domain.EgressOpenAICompatible:
		return openai.New(
			openai.WithHTTPClient(opts.HTTPClient),
			openai.WithIncludeUsage(opts.IncludeUsage),
		), nil
	case domain.EgressAnthropic:
		return anthropic.New(anthropic.WithHTTPClient(opts.HTTPClient)), nil
	}
	return nil, fmt.Errorf("no egress adapter for kind %q", kind)
}

// NewSet builds one adapter per supported kind.
func NewSet(opts Options) (map[domain.EgressKind]domain.Egress, error) {
	set := make(map[domain.EgressKind]domain.Egress, len(domain.EgressKinds))
	for _, kind := range domain.EgressKinds {
		e, err := New(kind, opts)
		if err != nil {
			return nil, err
		}
		set[kind] = e
	}
	return set, nil
}
