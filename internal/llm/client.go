package llm

import (
	"context"
)

// Client generates one text completion from a system prompt plus a user
// message. The screening raters are the only consumers, so the surface is
// deliberately small; no streaming, no embeddings.
type Client interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}
