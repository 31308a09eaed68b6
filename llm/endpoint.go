package llm

import "strings"

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	GoogleBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai/"
	CerebrasBaseURL   = "https://api.cerebras.ai/v1"

	openRouterReferer = "https://github.com/m4xw311/aiteam"
	openRouterTitle   = "AI Team"
)

// Endpoint is the base URL and extra headers used for an OpenAI-compatible
// call.
type Endpoint struct {
	BaseURL string
	Headers map[string]string
}

// ResolveEndpoint picks the endpoint from the credential's prefix.
func ResolveEndpoint(credential string) Endpoint {
	key := strings.TrimSpace(credential)
	switch {
	case strings.HasPrefix(key, "sk-or-v1"):
		return Endpoint{
			BaseURL: OpenRouterBaseURL,
			Headers: map[string]string{
				"HTTP-Referer": openRouterReferer,
				"X-Title":      openRouterTitle,
			},
		}
	case strings.HasPrefix(key, "AIza"):
		return Endpoint{BaseURL: GoogleBaseURL}
	case strings.HasPrefix(key, "csk-"):
		return Endpoint{BaseURL: CerebrasBaseURL}
	default:
		return Endpoint{BaseURL: DefaultBaseURL}
	}
}
