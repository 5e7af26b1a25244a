package config

import "time"

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			Language: "pt",
		},
		Recording: RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        8192,
			Device:            "",
			ChannelBufferSize: 30,
			SliceInterval:     500 * time.Millisecond,
			EchoCancellation:  true,
			NoiseSuppression:  true,
			AutoGainControl:   true,
		},
		Transcription: TranscriptionConfig{
			Provider:          "openai",
			Model:             "whisper-1",
			BatchInterval:     5 * time.Second,
			RequestTimeout:    30 * time.Second,
			Streaming:         false,
			RealtimeURL:       "wss://api.openai.com/v1/realtime?intent=transcription",
			SampleRate:        24000,
			VADThreshold:      0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
			NoiseReduction:    "near_field",
			MaxRetries:        3,
			RetryDelay:        2 * time.Second,
		},
		Generation: GenerationConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0.3,
			Documents:      []string{"clinical_note", "prescription", "summary", "structured_data"},
			ReviewRequired: true,
			UseHistory:     true,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		Providers: make(map[string]ProviderConfig),
	}
}
