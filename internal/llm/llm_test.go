package llm

import (
	"testing"
)

func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid openai config",
			config:  Config{Provider: "openai", APIKey: "test-key", Model: "gpt-4o-mini"},
			wantErr: false,
		},
		{
			name:    "openai without api key",
			config:  Config{Provider: "openai"},
			wantErr: true,
		},
		{
			name:    "valid groq config",
			config:  Config{Provider: "groq", APIKey: "gsk-test"},
			wantErr: false,
		},
		{
			name:    "groq without api key",
			config:  Config{Provider: "groq"},
			wantErr: true,
		},
		{
			name:    "unsupported provider",
			config:  Config{Provider: "ollama", APIKey: "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if adapter == nil {
				t.Fatal("adapter should not be nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Provider != "openai" {
		t.Errorf("default provider should be openai, got %s", config.Provider)
	}
	if config.Model == "" {
		t.Error("default model should be set")
	}
}
