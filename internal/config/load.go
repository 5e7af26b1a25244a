package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	escribaDir := filepath.Join(configDir, "escriba")
	if err := os.MkdirAll(escribaDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(escribaDir, "config.toml"), nil
}

// Load reads the configuration, writing the defaults on first run.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Printf("config: no file at %s, writing defaults", configPath)
		config := DefaultConfig()
		if err := Save(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return config, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Printf("config: loading configuration from %s", configPath)
	var config Config
	if _, err := toml.DecodeFile(configPath, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}
	config.applyDefaults()

	return &config, nil
}

// Save writes the configuration as TOML.
func Save(config *Config, configPath string) error {
	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", configPath, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// DefaultHistoryPath is the sqlite file used when history.path is unset.
func DefaultHistoryPath() (string, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(configPath), "history.db"), nil
}

// applyDefaults fills zero-valued settings so partial config files keep
// working timings and rosters.
func (c *Config) applyDefaults() {
	def := DefaultConfig()

	if c.Recording.SampleRate == 0 {
		c.Recording.SampleRate = def.Recording.SampleRate
	}
	if c.Recording.Channels == 0 {
		c.Recording.Channels = def.Recording.Channels
	}
	if c.Recording.Format == "" {
		c.Recording.Format = def.Recording.Format
	}
	if c.Recording.BufferSize == 0 {
		c.Recording.BufferSize = def.Recording.BufferSize
	}
	if c.Recording.ChannelBufferSize == 0 {
		c.Recording.ChannelBufferSize = def.Recording.ChannelBufferSize
	}
	if c.Recording.SliceInterval == 0 {
		c.Recording.SliceInterval = def.Recording.SliceInterval
	}

	if c.Transcription.Model == "" {
		c.Transcription.Model = def.Transcription.Model
	}
	if c.Transcription.BatchInterval == 0 {
		c.Transcription.BatchInterval = def.Transcription.BatchInterval
	}
	if c.Transcription.RequestTimeout == 0 {
		c.Transcription.RequestTimeout = def.Transcription.RequestTimeout
	}
	if c.Transcription.RealtimeURL == "" {
		c.Transcription.RealtimeURL = def.Transcription.RealtimeURL
	}
	if c.Transcription.SampleRate == 0 {
		c.Transcription.SampleRate = def.Transcription.SampleRate
	}
	if c.Transcription.VADThreshold == 0 {
		c.Transcription.VADThreshold = def.Transcription.VADThreshold
	}
	if c.Transcription.PrefixPaddingMs == 0 {
		c.Transcription.PrefixPaddingMs = def.Transcription.PrefixPaddingMs
	}
	if c.Transcription.SilenceDurationMs == 0 {
		c.Transcription.SilenceDurationMs = def.Transcription.SilenceDurationMs
	}
	if c.Transcription.NoiseReduction == "" {
		c.Transcription.NoiseReduction = def.Transcription.NoiseReduction
	}
	if c.Transcription.MaxRetries == 0 {
		c.Transcription.MaxRetries = def.Transcription.MaxRetries
	}
	if c.Transcription.RetryDelay == 0 {
		c.Transcription.RetryDelay = def.Transcription.RetryDelay
	}

	if len(c.Generation.Documents) == 0 {
		c.Generation.Documents = def.Generation.Documents
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = def.Generation.Temperature
	}
}
