package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter implements Adapter using OpenAI's chat completions API.
type OpenAIAdapter struct {
	client *openai.Client
	config Config
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	return &OpenAIAdapter{
		client: openai.NewClient(cfg.APIKey),
		config: cfg,
	}
}

func (a *OpenAIAdapter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return complete(ctx, a.client, a.config, systemPrompt, userPrompt)
}

func complete(ctx context.Context, client *openai.Client, cfg Config, systemPrompt, userPrompt string) (string, error) {
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: cfg.Temperature,
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Printf("llm: completion failed after %v: %v", duration, err)
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no response choices")
	}

	log.Printf("llm: completed in %v, model=%s", duration, model)
	return resp.Choices[0].Message.Content, nil
}
