package llm

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/m4xw311/aiteam/errors"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockClient streams Anthropic models hosted on AWS Bedrock. The request
// credential, when set, names the shared-config profile to load.
type BedrockClient struct {
	// Region overrides the region from the AWS configuration.
	Region string
}

func (b *BedrockClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var opts []func(*config.LoadOptions) error
		if profile := strings.TrimSpace(req.Credential); profile != "" {
			opts = append(opts, config.WithSharedConfigProfile(profile))
		}
		if b.Region != "" {
			opts = append(opts, config.WithRegion(b.Region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			yield("", errors.Transport(errors.Wrapf(err, "failed to load AWS config")))
			return
		}
		if cfg.Region == "" {
			cfg.Region = "us-east-1"
		}

		body, err := bedrockRequestBody(req.SystemPrompt, req.UserContent)
		if err != nil {
			yield("", errors.Transport(errors.Wrapf(err, "failed to create Bedrock request")))
			return
		}

		client := bedrockruntime.NewFromConfig(cfg)
		out, err := client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     aws.String(req.Model),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			yield("", errors.Transport(errors.Wrapf(err, "failed to invoke Bedrock model")))
			return
		}

		stream := out.GetStream()
		defer stream.Close()
		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			text, err := decodeBedrockChunk(chunk.Value.Bytes)
			if err != nil {
				yield("", errors.Transport(err))
				return
			}
			if text != "" && !yield(text, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", errors.Transport(errors.Wrapf(err, "Bedrock stream failed")))
		}
	}
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

func bedrockRequestBody(system, user string) ([]byte, error) {
	return json.Marshal(bedrockRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		System:           system,
		Messages: []bedrockMessage{{
			Role:    "user",
			Content: []bedrockBlock{{Type: "text", Text: user}},
		}},
	})
}

type bedrockEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeBedrockChunk extracts the text of a content_block_delta event. Other
// event types yield "".
func decodeBedrockChunk(data []byte) (string, error) {
	var event bedrockEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", errors.Wrapf(err, "failed to decode Bedrock chunk")
	}
	switch event.Type {
	case "content_block_delta":
		if event.Delta.Type == "text_delta" {
			return event.Delta.Text, nil
		}
	case "error":
		if event.Error != nil {
			return "", errors.New("Bedrock API error: %s: %s", event.Error.Type, event.Error.Message)
		}
		return "", errors.New("Bedrock API error")
	}
	return "", nil
}
