package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqAdapter implements Adapter using Groq's OpenAI-compatible API.
type GroqAdapter struct {
	client *openai.Client
	config Config
}

func NewGroqAdapter(cfg Config) *GroqAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = groqBaseURL

	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}

	return &GroqAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

func (a *GroqAdapter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return complete(ctx, a.client, a.config, systemPrompt, userPrompt)
}
