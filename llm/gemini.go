package llm

import (
	"context"
	"iter"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/aiteam/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient streams from the Google Gemini API.
type GeminiClient struct {
	// Options are appended to the API key option, e.g. an endpoint override.
	Options []option.ClientOption
}

func (g *GeminiClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		options := append([]option.ClientOption{option.WithAPIKey(strings.TrimSpace(req.Credential))}, g.Options...)
		client, err := genai.NewClient(ctx, options...)
		if err != nil {
			yield("", errors.Transport(errors.Wrapf(err, "failed to create genai client")))
			return
		}
		defer client.Close()

		model := client.GenerativeModel(req.Model)
		if req.SystemPrompt != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(req.SystemPrompt))
		}

		responses := model.GenerateContentStream(ctx, genai.Text(req.UserContent))
		for {
			resp, err := responses.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				yield("", errors.Transport(errors.Wrapf(err, "failed to stream from Gemini")))
				return
			}
			for _, text := range geminiText(resp) {
				if !yield(text, nil) {
					return
				}
			}
		}
	}
}

func geminiText(resp *genai.GenerateContentResponse) []string {
	var out []string
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok && text != "" {
				out = append(out, string(text))
			}
		}
	}
	return out
}
