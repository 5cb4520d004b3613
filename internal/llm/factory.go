package llm

import (
	"context"
	"fmt"
	"strings"
)

// Rater replies are short JSON objects; cap generation accordingly.
const defaultMaxTokens = 512

// Options selects and configures a provider.
type Options struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NewClient builds a Client for the configured provider.
func NewClient(ctx context.Context, opts Options) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case "openai":
		return NewOpenAIClient(opts.APIKey, opts.Model, opts.BaseURL), nil

	case "claude":
		return NewClaudeClient(opts.APIKey, opts.Model, opts.BaseURL), nil

	case "gemini":
		return NewGeminiClient(ctx, opts.APIKey, opts.Model)

	case "ollama":
		// Ollama is served through its OpenAI-compatible API. The key is
		// ignored by Ollama but required by the client config.
		baseURL := strings.TrimRight(opts.BaseURL, "/")
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL += "/v1"
		}
		apiKey := opts.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIClient(apiKey, opts.Model, baseURL), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", opts.Provider)
	}
}
