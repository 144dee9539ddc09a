package models

import "encoding/json"

// ContentType discriminates the variant of a Content block.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeThinking ContentType = "thinking"
	ContentTypeToolCall ContentType = "toolCall"
)

// Content is a tagged union of the four block kinds an agent message can
// carry: plain text, an inline image, a model "thinking" block, or a tool
// call. Only the fields relevant to Type are populated; the rest are zero.
type Content struct {
	Type ContentType `json:"type"`

	// Text / Thinking
	Text string `json:"text,omitempty"`

	// Image
	ImageData     string `json:"data,omitempty"`
	ImageMimeType string `json:"mimeType,omitempty"`

	// Thinking
	ThinkingSignature string `json:"signature,omitempty"`

	// ToolCall
	ToolCallID        string          `json:"id,omitempty"`
	ToolCallName      string          `json:"name,omitempty"`
	ToolCallArguments json.RawMessage `json:"arguments,omitempty"`
}

// TextContent builds a Text content block.
func TextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// ImageContentBlock builds an Image content block. data is base64-encoded.
func ImageContentBlock(data, mimeType string) Content {
	return Content{Type: ContentTypeImage, ImageData: data, ImageMimeType: mimeType}
}

// ThinkingContent builds a Thinking content block.
func ThinkingContent(thinking, signature string) Content {
	return Content{Type: ContentTypeThinking, Text: thinking, ThinkingSignature: signature}
}

// ToolCallContent builds a ToolCall content block.
func ToolCallContent(id, name string, arguments json.RawMessage) Content {
	return Content{Type: ContentTypeToolCall, ToolCallID: id, ToolCallName: name, ToolCallArguments: arguments}
}

// TextBlocks joins every Text content block in the slice with a separator,
// ignoring non-text blocks. Used to flatten an assistant message for
// sub-agent tool results and transcript summaries.
func TextBlocks(blocks []Content) string {
	out := ""
	for _, b := range blocks {
		if b.Type != ContentTypeText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}
