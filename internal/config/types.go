package config

import "time"

// GeneralConfig holds global settings that apply across the application.
type GeneralConfig struct {
	Language string `toml:"language"` // default language for transcription and documents
}

type Config struct {
	General       GeneralConfig             `toml:"general"`
	Recording     RecordingConfig           `toml:"recording"`
	Transcription TranscriptionConfig       `toml:"transcription"`
	Generation    GenerationConfig          `toml:"generation"`
	History       HistoryConfig             `toml:"history"`
	Notifications NotificationsConfig       `toml:"notifications"`
	Providers     map[string]ProviderConfig `toml:"providers"`
}

// ProviderConfig holds the API key for a provider.
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type RecordingConfig struct {
	SampleRate        int           `toml:"sample_rate"`
	Channels          int           `toml:"channels"`
	Format            string        `toml:"format"`
	BufferSize        int           `toml:"buffer_size"`
	Device            string        `toml:"device"`
	ChannelBufferSize int           `toml:"channel_buffer_size"`
	SliceInterval     time.Duration `toml:"slice_interval"`
	EchoCancellation  bool          `toml:"echo_cancellation"`
	NoiseSuppression  bool          `toml:"noise_suppression"`
	AutoGainControl   bool          `toml:"auto_gain_control"`
}

type TranscriptionConfig struct {
	Provider string `toml:"provider"` // "openai" or "http"
	APIKey   string `toml:"api_key"`
	Language string `toml:"language"`
	Model    string `toml:"model"`
	Prompt   string `toml:"prompt"`

	BatchEndpoint  string        `toml:"batch_endpoint"`
	BatchInterval  time.Duration `toml:"batch_interval"`
	RequestTimeout time.Duration `toml:"request_timeout"`

	Streaming         bool          `toml:"streaming"`
	RealtimeURL       string        `toml:"realtime_url"`
	TokenEndpoint     string        `toml:"token_endpoint"`
	SampleRate        int           `toml:"sample_rate"`
	VADThreshold      float64       `toml:"vad_threshold"`
	PrefixPaddingMs   int           `toml:"prefix_padding_ms"`
	SilenceDurationMs int           `toml:"silence_duration_ms"`
	NoiseReduction    string        `toml:"noise_reduction"`
	MaxRetries        int           `toml:"max_retries"`
	RetryDelay        time.Duration `toml:"retry_delay"`
}

// GenerationConfig configures the document generation phase.
type GenerationConfig struct {
	Provider               string   `toml:"provider"` // "openai" or "groq"
	Model                  string   `toml:"model"`
	Temperature            float64  `toml:"temperature"`
	Documents              []string `toml:"documents"` // document types produced per encounter
	ReviewRequired         bool     `toml:"review_required"`
	UseHistory             bool     `toml:"use_history"`
	AdditionalInstructions string   `toml:"additional_instructions"`
	OutputDir              string   `toml:"output_dir"` // finished documents; empty uses ~/Documents/escriba
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // sqlite database file; empty uses the data dir default
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"` // "desktop", "log", "none"
}
