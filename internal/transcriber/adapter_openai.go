package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter transcribes WAV audio through the Whisper endpoint.
type OpenAIAdapter struct {
	client *openai.Client
	config Config
}

func NewOpenAIAdapter(config Config) *OpenAIAdapter {
	return &OpenAIAdapter{
		client: openai.NewClient(config.APIKey),
		config: config,
	}
}

func (a *OpenAIAdapter) Transcribe(ctx context.Context, wav []byte) (string, error) {
	req := openai.AudioRequest{
		Model:    a.config.Model,
		Reader:   bytes.NewReader(wav),
		FilePath: "audio.wav",
		Language: a.config.Language,
		Prompt:   a.config.Prompt,
	}

	resp, err := a.client.CreateTranscription(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
