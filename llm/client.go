package llm

import (
	"context"
	"iter"
	"strings"

	"github.com/m4xw311/aiteam/errors"
)

// Provider hints understood by the Router.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderBedrock   = "bedrock"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Request is a single model call. Credential is trimmed by the backend before
// use and never logged.
type Request struct {
	SystemPrompt string
	UserContent  string
	Model        string
	Credential   string
	Provider     string
}

// Client streams the text of one model response. Iteration yields text
// fragments in order; a non-nil error ends the stream. Errors are transport
// errors.
type Client interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Router dispatches requests to a backend chosen by the provider hint. An
// unknown or empty hint goes to the OpenAI-compatible backend, whose endpoint
// is picked from the credential.
type Router struct {
	OpenAI    Client
	Anthropic Client
	Gemini    Client
	Bedrock   Client
	Ollama    Client
	Mock      Client
}

// NewRouter wires every backend. ollamaHost is the base URL of the Ollama
// server.
func NewRouter(ollamaHost string) *Router {
	return &Router{
		OpenAI:    &OpenAIClient{},
		Anthropic: &AnthropicClient{},
		Gemini:    &GeminiClient{},
		Bedrock:   &BedrockClient{},
		Ollama:    &OllamaClient{Host: ollamaHost},
		Mock:      NewMockClient(),
	}
}

func (r *Router) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	provider := normalizeProvider(req.Provider)
	backend := r.backend(provider)
	if backend == nil {
		return fail(errors.Transport(errors.New("no model backend configured for provider '%s'", provider)))
	}
	return backend.Stream(ctx, req)
}

func (r *Router) backend(provider string) Client {
	switch provider {
	case ProviderAnthropic:
		return r.Anthropic
	case ProviderGemini:
		return r.Gemini
	case ProviderBedrock:
		return r.Bedrock
	case ProviderOllama:
		return r.Ollama
	case ProviderMock:
		return r.Mock
	default:
		return r.OpenAI
	}
}

// RequiresCredential reports whether calls for provider need an API key.
// Bedrock resolves AWS credentials itself; Ollama and the mock run without
// one.
func RequiresCredential(provider string) bool {
	switch normalizeProvider(provider) {
	case ProviderBedrock, ProviderOllama, ProviderMock:
		return false
	}
	return true
}

func normalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return ProviderOpenAI
	}
	return p
}

// fail returns a stream that yields only err.
func fail(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}
