package llm

import (
	"context"
	"iter"
	"strings"

	"github.com/m4xw311/aiteam/errors"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient streams chat completions from any OpenAI-compatible API. The
// endpoint is resolved from the credential on every request.
type OpenAIClient struct {
	// BaseURL, when set, overrides the resolved endpoint's base URL.
	BaseURL string
}

func (o *OpenAIClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		key := strings.TrimSpace(req.Credential)
		endpoint := ResolveEndpoint(key)
		if o.BaseURL != "" {
			endpoint.BaseURL = o.BaseURL
		}

		options := []option.RequestOption{
			option.WithAPIKey(key),
			option.WithBaseURL(endpoint.BaseURL),
		}
		for name, value := range endpoint.Headers {
			options = append(options, option.WithHeader(name, value))
		}
		client := openai.NewClient(options...)

		var messages []openai.ChatCompletionMessageParamUnion
		if req.SystemPrompt != "" {
			messages = append(messages, openai.SystemMessage(req.SystemPrompt))
		}
		messages = append(messages, openai.UserMessage(req.UserContent))

		stream := client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:    openai.ChatModel(req.Model),
			Messages: messages,
		})
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				if !yield(text, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", errors.Transport(errors.Wrapf(err, "streaming from %s failed", endpoint.BaseURL)))
		}
	}
}
