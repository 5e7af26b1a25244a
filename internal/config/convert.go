package config

import (
	"os"

	"github.com/brunovale/escriba/internal/docgen"
	"github.com/brunovale/escriba/internal/llm"
	"github.com/brunovale/escriba/internal/recording"
	"github.com/brunovale/escriba/internal/transcriber"
)

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
		SliceInterval:     c.Recording.SliceInterval,
		EchoCancellation:  c.Recording.EchoCancellation,
		NoiseSuppression:  c.Recording.NoiseSuppression,
		AutoGainControl:   c.Recording.AutoGainControl,
	}
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider:          c.Transcription.Provider,
		APIKey:            c.resolveAPIKeyForProvider(c.Transcription.Provider),
		Language:          c.resolveEffectiveLanguage(),
		Model:             c.Transcription.Model,
		Prompt:            c.Transcription.Prompt,
		BatchEndpoint:     c.Transcription.BatchEndpoint,
		BatchInterval:     c.Transcription.BatchInterval,
		RequestTimeout:    c.Transcription.RequestTimeout,
		Streaming:         c.Transcription.Streaming,
		RealtimeURL:       c.Transcription.RealtimeURL,
		TokenEndpoint:     c.Transcription.TokenEndpoint,
		SampleRate:        c.Transcription.SampleRate,
		VADThreshold:      c.Transcription.VADThreshold,
		PrefixPaddingMs:   c.Transcription.PrefixPaddingMs,
		SilenceDurationMs: c.Transcription.SilenceDurationMs,
		NoiseReduction:    c.Transcription.NoiseReduction,
		MaxRetries:        c.Transcription.MaxRetries,
		RetryDelay:        c.Transcription.RetryDelay,
	}
}

func (c *Config) ToLLMConfig() llm.Config {
	return llm.Config{
		Provider:    c.Generation.Provider,
		APIKey:      c.resolveAPIKeyForProvider(c.Generation.Provider),
		Model:       c.Generation.Model,
		Temperature: float32(c.Generation.Temperature),
	}
}

// DocumentTypes returns the configured per-encounter document set.
func (c *Config) DocumentTypes() []docgen.DocumentType {
	types := make([]docgen.DocumentType, 0, len(c.Generation.Documents))
	for _, doc := range c.Generation.Documents {
		types = append(types, docgen.DocumentType(doc))
	}
	return types
}

// resolveEffectiveLanguage returns the effective language for transcription.
// transcription.language overrides general.language if set.
func (c *Config) resolveEffectiveLanguage() string {
	if c.Transcription.Language != "" {
		return c.Transcription.Language
	}
	return c.General.Language
}

// resolveAPIKeyForProvider returns the API key for a provider, checking the
// providers table, then the transcription section, then the environment.
func (c *Config) resolveAPIKeyForProvider(providerName string) string {
	if c.Providers != nil {
		if pc, ok := c.Providers[providerName]; ok && pc.APIKey != "" {
			return pc.APIKey
		}
	}

	if c.Transcription.APIKey != "" && providerName == c.Transcription.Provider {
		return c.Transcription.APIKey
	}

	switch providerName {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "groq":
		return os.Getenv("GROQ_API_KEY")
	}
	return ""
}
