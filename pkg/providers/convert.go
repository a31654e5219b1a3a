// Package providers converts composed messages into the request shapes of
// the LLM SDKs a send callback typically forwards to.
package providers

import (
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/openai/openai-go/v3"

	"github.com/askbox/askbox/pkg/compose"
	"github.com/askbox/askbox/pkg/logger"
)

// AnthropicBlocks converts a composed message into Anthropic content
// blocks. Image data URLs become base64 image blocks; an unparseable image
// part is skipped rather than failing the whole send.
func AnthropicBlocks(msg compose.Message) []anthropic.ContentBlockParamUnion {
	if msg.Plain() {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Text)}
	}

	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch part.Type {
		case compose.PartTypeText:
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		case compose.PartTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			mediaType, data, err := SplitDataURL(part.ImageURL.URL)
			if err != nil {
				logger.WarnCF("providers", "Skipping unparseable image part", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
		}
	}
	return blocks
}

// AnthropicUserMessage wraps the converted blocks into a user message param.
func AnthropicUserMessage(msg compose.Message) anthropic.MessageParam {
	return anthropic.NewUserMessage(AnthropicBlocks(msg)...)
}

// OpenAIParts converts a composed message into OpenAI chat content parts.
// Data URLs pass through untouched; the OpenAI API accepts them directly.
func OpenAIParts(msg compose.Message) []openai.ChatCompletionContentPartUnionParam {
	if msg.Plain() {
		return []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(msg.Text)}
	}

	var parts []openai.ChatCompletionContentPartUnionParam
	for _, part := range msg.Parts {
		switch part.Type {
		case compose.PartTypeText:
			parts = append(parts, openai.TextContentPart(part.Text))
		case compose.PartTypeImageURL:
			if part.ImageURL == nil {
				continue
			}
			parts = append(parts, openai.ImageContentPart(
				openai.ChatCompletionContentPartImageImageURLParam{URL: part.ImageURL.URL},
			))
		}
	}
	return parts
}

// OpenAIUserMessage wraps the composed message into a user message param,
// keeping plain messages as bare strings.
func OpenAIUserMessage(msg compose.Message) openai.ChatCompletionMessageParamUnion {
	if msg.Plain() {
		return openai.UserMessage(msg.Text)
	}
	return openai.UserMessage(OpenAIParts(msg))
}

// SplitDataURL splits "data:<media-type>;base64,<payload>" into its media
// type and base64 payload.
func SplitDataURL(url string) (mediaType, data string, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", "", fmt.Errorf("not a data URL: %.32s", url)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", fmt.Errorf("malformed data URL: %.32s", url)
	}
	mediaType, base64Marker, ok := strings.Cut(meta, ";")
	if !ok || base64Marker != "base64" {
		return "", "", fmt.Errorf("data URL is not base64-encoded: %.32s", url)
	}
	if mediaType == "" {
		return "", "", fmt.Errorf("data URL has no media type: %.32s", url)
	}
	return mediaType, payload, nil
}
