// Package tokens estimates token counts with tiktoken encodings. Counts are
// approximations for non-OpenAI models; they back count_tokens and fill
// stream usage when a backend reports none.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/domain"
)

// Chat framing overhead, following OpenAI's published accounting.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	tokensPerTool    = 7
	tokensPerCall    = 3
	tokensPerResult  = 2
	assistantPriming = 3
)

// Counter implements domain.TokenCounter. Codecs are loaded lazily and
// cached per encoding; when an encoding cannot be loaded it falls back to
// CharsPerToken.
type Counter struct {
	CharsPerToken float64

	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec
}

func NewCounter() *Counter {
	return &Counter{
		CharsPerToken: 4.0,
		codecs:        make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

var _ domain.TokenCounter = (*Counter)(nil)

func (c *Counter) codec(model string) tokenizer.Codec {
	enc := modelToEncoding(model)

	c.mu.RLock()
	codec, ok := c.codecs[enc]
	c.mu.RUnlock()
	if ok {
		return codec
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	c.codecs[enc] = codec
	c.mu.Unlock()
	return codec
}

// modelToEncoding picks the encoding for a model name. Anything that is not a
// known older OpenAI family uses o200k_base.
func modelToEncoding(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"), strings.HasPrefix(model, "text-embedding"):
		return tokenizer.Cl100kBase
	case strings.HasPrefix(model, "text-davinci"):
		return tokenizer.P50kBase
	}
	return tokenizer.O200kBase
}

// CountText counts the tokens in text as model would see them.
func (c *Counter) CountText(model, text string) int {
	if text == "" {
		return 0
	}
	if codec := c.codec(model); codec != nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return c.estimate(text)
}

func (c *Counter) estimate(text string) int {
	n := int(float64(len(text)) / c.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return n
}

// CountRequest estimates the prompt tokens of req: every message, tool
// definition, and the framing around them.
func (c *Counter) CountRequest(req *domain.CanonicalRequest) int {
	total := 0
	for _, m := range req.Messages {
		total += tokensPerMessage + tokensPerRole
		for _, b := range m.Content {
			switch b.Type {
			case domain.ContentTypeText:
				total += c.CountText(req.Model, b.Text)
			case domain.ContentTypeToolUse:
				total += c.CountText(req.Model, b.Name)
				total += c.CountText(req.Model, string(b.Arguments))
				total += tokensPerCall
			case domain.ContentTypeToolResult:
				total += c.CountText(req.Model, b.Content)
				total += tokensPerResult
			}
		}
	}
	for _, t := range req.Tools {
		total += c.CountText(req.Model, t.Name)
		total += c.CountText(req.Model, t.Description)
		total += c.CountText(req.Model, string(t.Parameters))
		total += tokensPerTool
	}
	return total + assistantPriming
}
