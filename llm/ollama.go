package llm

import (
	"context"
	stderrors "errors"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/m4xw311/aiteam/errors"
	"github.com/m4xw311/aiteam/logging"
	"github.com/ollama/ollama/api"
)

var errStopped = stderrors.New("consumer stopped")

// OllamaClient streams chat responses from an Ollama server. A credential,
// if present, is sent as a bearer token for servers behind auth.
type OllamaClient struct {
	Host string
}

// authTransport adds Authorization header to HTTP requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(clone)
}

func (o *OllamaClient) Stream(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		host := o.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		baseURL, err := url.Parse(host)
		if err != nil {
			yield("", errors.Transport(errors.Wrapf(err, "invalid Ollama host '%s'", host)))
			return
		}
		if baseURL.Scheme == "http" {
			if h := baseURL.Hostname(); h != "localhost" && h != "127.0.0.1" && h != "::1" {
				logging.Warn("Ollama connection uses unencrypted HTTP to remote host", "host", h)
			}
		}

		httpClient := &http.Client{}
		if key := strings.TrimSpace(req.Credential); key != "" {
			httpClient.Transport = &authTransport{base: http.DefaultTransport, apiKey: key}
		}
		client := api.NewClient(baseURL, httpClient)

		var messages []api.Message
		if req.SystemPrompt != "" {
			messages = append(messages, api.Message{Role: "system", Content: req.SystemPrompt})
		}
		messages = append(messages, api.Message{Role: "user", Content: req.UserContent})

		stream := true
		err = client.Chat(ctx, &api.ChatRequest{
			Model:    req.Model,
			Messages: messages,
			Stream:   &stream,
		}, func(resp api.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			if !yield(resp.Message.Content, nil) {
				return errStopped
			}
			return nil
		})
		if err != nil && !stderrors.Is(err, errStopped) {
			yield("", errors.Transport(errors.Wrapf(err, "failed to stream from Ollama")))
		}
	}
}
