package domain

import (
	"encoding/json"
	"strings"
)

// ContentType tags the variant held by a ContentBlock.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeImage      ContentType = "image"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// ContentBlock is a tagged variant. Only the fields belonging to Type are set.
type ContentBlock struct {
	Type ContentType `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// image
	Image *ImageSource `json:"image,omitempty"`
}

// ImageSource is either inline base64 data or a URL.
type ImageSource struct {
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// DataURL renders the image as a URL, inlining base64 data when needed.
func (s *ImageSource) DataURL() string {
	if s.URL != "" {
		return s.URL
	}
	return "data:" + s.MediaType + ";base64," + s.Data
}

// ParseDataURL splits a data: URL into an inline source. Other URLs are kept
// as references.
func ParseDataURL(u string) *ImageSource {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return &ImageSource{URL: u}
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return &ImageSource{URL: u}
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return &ImageSource{URL: u}
	}
	return &ImageSource{MediaType: mediaType, Data: data}
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

func ToolUseBlock(id, name string, args json.RawMessage) ContentBlock {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	return ContentBlock{Type: ContentTypeToolUse, ID: id, Name: name, Arguments: args}
}

func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: ContentTypeToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

func ImageBlock(src *ImageSource) ContentBlock {
	return ContentBlock{Type: ContentTypeImage, Image: src}
}

// JoinText concatenates the text blocks in order.
func JoinText(blocks []ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == ContentTypeText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool_use blocks in order.
func ToolUses(blocks []ContentBlock) []ContentBlock {
	var out []ContentBlock
	for _, b := range blocks {
		if b.Type == ContentTypeToolUse {
			out = append(out, b)
		}
	}
	return out
}
