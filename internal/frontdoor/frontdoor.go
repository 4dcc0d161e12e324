// Package frontdoor selects the ingress adapter for a client protocol.
//
// # Adding a New Frontdoor
//
// Implement domain.Ingress in a subpackage and add a case to New. Routes are
// mounted by the server from the adapters returned here.
package frontdoor

import (
	"fmt"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/frontdoor/anthropic"
	"github.com/tjfontaine/polyglot-llm-bridge/internal/frontdoor/openai"
)

// New returns the ingress adapter for api.
func New(api domain.APIType) (domain.Ingress, error) {
	switch api {
	case domain.APITypeAnthropic:
		return anthropic.NewCodec(), nil
	case domain.APITypeOpenAI:
		return openai.NewCodec(), nil
	}
	return nil, fmt.Errorf("unknown frontdoor %q", api)
}
