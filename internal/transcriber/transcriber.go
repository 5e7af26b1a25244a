package transcriber

import (
	"fmt"
	"time"
)

// Segment is one transcript fragment. Interim segments are provisional and
// replaced by later segments; final segments permanently extend the
// transcript.
type Segment struct {
	Text      string
	Final     bool
	Timestamp time.Time
}

// SourceKind identifies which transcription source produced a segment.
type SourceKind string

const (
	SourceStreaming SourceKind = "streaming"
	SourceBatch     SourceKind = "batch"
)

// Config covers both the batch and the realtime transcription paths.
type Config struct {
	Provider string // "openai" or "http"
	APIKey   string
	Language string
	Model    string
	Prompt   string

	// batch
	BatchEndpoint  string
	BatchInterval  time.Duration
	RequestTimeout time.Duration

	// realtime
	Streaming         bool
	RealtimeURL       string
	TokenEndpoint     string
	SampleRate        int
	VADThreshold      float64
	PrefixPaddingMs   int
	SilenceDurationMs int
	NoiseReduction    string // "near_field" or "far_field"
	MaxRetries        int
	RetryDelay        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Provider:          "openai",
		Language:          "pt",
		Model:             "whisper-1",
		BatchInterval:     5 * time.Second,
		RequestTimeout:    30 * time.Second,
		RealtimeURL:       "wss://api.openai.com/v1/realtime?intent=transcription",
		SampleRate:        24000,
		VADThreshold:      0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
		NoiseReduction:    "near_field",
		MaxRetries:        3,
		RetryDelay:        2 * time.Second,
	}
}

func (c Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("OpenAI API key required")
		}
	case "http":
		if c.BatchEndpoint == "" {
			return fmt.Errorf("batch endpoint required for http provider")
		}
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider)
	}
	if c.BatchInterval <= 0 {
		return fmt.Errorf("invalid batch interval: %v", c.BatchInterval)
	}
	if c.Streaming {
		if c.RealtimeURL == "" {
			return fmt.Errorf("realtime url required when streaming is enabled")
		}
		if c.MaxRetries < 0 {
			return fmt.Errorf("invalid max retries: %d", c.MaxRetries)
		}
		switch c.NoiseReduction {
		case "near_field", "far_field":
		default:
			return fmt.Errorf("invalid noise reduction profile: %s", c.NoiseReduction)
		}
	}
	return nil
}

// NewBatchAdapter selects the batch backend for the configured provider.
func NewBatchAdapter(config Config) (BatchAdapter, error) {
	switch config.Provider {
	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIAdapter(config), nil
	case "http":
		if config.BatchEndpoint == "" {
			return nil, fmt.Errorf("batch endpoint required for http provider")
		}
		return NewHTTPAdapter(config.BatchEndpoint, config.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

// NewTokenSource selects the credential source for a realtime session. When a
// token endpoint is configured an ephemeral token is minted per session;
// otherwise the API key is used directly.
func NewTokenSource(config Config) (TokenSource, error) {
	if config.TokenEndpoint != "" {
		return NewHTTPTokenSource(config.TokenEndpoint, config.APIKey), nil
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key or token endpoint required for streaming")
	}
	return StaticTokenSource{Key: config.APIKey}, nil
}
