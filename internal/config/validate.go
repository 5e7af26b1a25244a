package config

import (
	"fmt"

	"github.com/brunovale/escriba/internal/docgen"
)

func (c *Config) Validate() error {
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	if c.Recording.Format == "" {
		return fmt.Errorf("invalid recording.format: empty")
	}
	if c.Recording.SliceInterval <= 0 {
		return fmt.Errorf("invalid recording.slice_interval: %v", c.Recording.SliceInterval)
	}

	switch c.Transcription.Provider {
	case "openai":
		if c.resolveAPIKeyForProvider("openai") == "" {
			return fmt.Errorf("OpenAI API key required: not found in config (providers.openai.api_key, transcription.api_key) or environment variable (OPENAI_API_KEY)")
		}
	case "http":
		if c.Transcription.BatchEndpoint == "" {
			return fmt.Errorf("transcription.batch_endpoint required for the http provider")
		}
	default:
		return fmt.Errorf("unsupported transcription.provider: %s (must be openai or http)", c.Transcription.Provider)
	}

	if c.Transcription.Language != "" && !isValidLanguageCode(c.Transcription.Language) {
		return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'pt', 'en', 'es')", c.Transcription.Language)
	}

	if c.Transcription.Streaming {
		if c.Transcription.RealtimeURL == "" {
			return fmt.Errorf("transcription.realtime_url required when streaming = true")
		}
		if c.Transcription.MaxRetries < 0 {
			return fmt.Errorf("invalid transcription.max_retries: %d", c.Transcription.MaxRetries)
		}
		switch c.Transcription.NoiseReduction {
		case "", "near_field", "far_field":
		default:
			return fmt.Errorf("invalid transcription.noise_reduction: %s (must be near_field or far_field)", c.Transcription.NoiseReduction)
		}
	}

	validProviders := map[string]bool{"openai": true, "groq": true}
	if !validProviders[c.Generation.Provider] {
		return fmt.Errorf("invalid generation.provider: %s (must be openai or groq)", c.Generation.Provider)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("invalid generation.model: empty")
	}
	if c.resolveAPIKeyForProvider(c.Generation.Provider) == "" {
		switch c.Generation.Provider {
		case "openai":
			return fmt.Errorf("OpenAI API key required for generation: not found in config (providers.openai.api_key) or environment variable (OPENAI_API_KEY)")
		case "groq":
			return fmt.Errorf("Groq API key required for generation: not found in config (providers.groq.api_key) or environment variable (GROQ_API_KEY)")
		}
	}
	for _, doc := range c.Generation.Documents {
		if !docgen.KnownType(doc) {
			return fmt.Errorf("invalid generation.documents: unknown document type %q", doc)
		}
	}

	if c.Notifications.Enabled {
		validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
		if !validTypes[c.Notifications.Type] {
			return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
		}
	}

	return nil
}

func isValidLanguageCode(code string) bool {
	validCodes := map[string]bool{
		"en": true, "es": true, "fr": true, "de": true, "it": true, "pt": true,
		"ru": true, "ja": true, "ko": true, "zh": true, "ar": true, "hi": true,
		"nl": true, "sv": true, "da": true, "no": true, "fi": true, "pl": true,
		"tr": true, "he": true, "th": true, "vi": true, "id": true, "ms": true,
		"uk": true, "cs": true, "hu": true, "ro": true, "bg": true, "hr": true,
	}
	return validCodes[code]
}
