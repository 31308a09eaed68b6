package llm

import (
	"context"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/aiteam/errors"
)

const maxTokens = 4096

// AnthropicClient streams from the Anthropic Messages API.
type AnthropicClient struct {
	BaseURL string
}

func (a *AnthropicClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		options := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(req.Credential))}
		if a.BaseURL != "" {
			options = append(options, option.WithBaseURL(a.BaseURL))
		}
		client := anthropic.NewClient(options...)

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(req.Model),
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserContent)),
			},
		}
		if req.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
		}

		stream := client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				if !yield(text.Text, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", errors.Transport(errors.Wrapf(err, "failed to stream from Anthropic")))
		}
	}
}
