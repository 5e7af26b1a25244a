package tui

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/brunovale/escriba/internal/config"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionProviders     ConfigSection = "providers"
	SectionTranscription ConfigSection = "transcription"
	SectionGeneration    ConfigSection = "generation"
	SectionHistory       ConfigSection = "history"
	SectionNotifications ConfigSection = "notifications"
	SectionRecording     ConfigSection = "recording"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run starts the interactive configuration editor.
func Run(cfg *config.Config) (*ConfigureResult, error) {
	fmt.Println(Logo())
	fmt.Println()

	for {
		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := cfg.Validate(); err != nil {
				fmt.Println(StyleError.Render(fmt.Sprintf("Configuração inválida: %v", err)))
				continue
			}
			return &ConfigureResult{Config: cfg}, nil

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		case SectionProviders:
			if err := editProviders(cfg); err != nil {
				continue
			}

		case SectionTranscription:
			if err := editTranscription(cfg); err != nil {
				continue
			}

		case SectionGeneration:
			if err := editGeneration(cfg); err != nil {
				continue
			}

		case SectionHistory:
			if err := editHistory(cfg); err != nil {
				continue
			}

		case SectionNotifications:
			if err := editNotifications(cfg); err != nil {
				continue
			}

		case SectionRecording:
			if err := editRecording(cfg); err != nil {
				continue
			}
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatProvidersLabel(cfg), SectionProviders),
		huh.NewOption(formatTranscriptionLabel(cfg), SectionTranscription),
		huh.NewOption(formatGenerationLabel(cfg), SectionGeneration),
		huh.NewOption(formatHistoryLabel(cfg), SectionHistory),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption("Recording Settings", SectionRecording),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func formatProvidersLabel(cfg *config.Config) string {
	configured := 0
	for _, p := range cfg.Providers {
		if p.APIKey != "" {
			configured++
		}
	}
	return fmt.Sprintf("API Providers (%d configured)", configured)
}

func formatTranscriptionLabel(cfg *config.Config) string {
	mode := "batch"
	if cfg.Transcription.Streaming {
		mode = "streaming"
	}
	return fmt.Sprintf("Transcription (%s, %s)", cfg.Transcription.Provider, mode)
}

func formatGenerationLabel(cfg *config.Config) string {
	return fmt.Sprintf("Document Generation (%s, %d types)", cfg.Generation.Model, len(cfg.Generation.Documents))
}

func formatHistoryLabel(cfg *config.Config) string {
	if cfg.History.Enabled {
		return "Patient History (enabled)"
	}
	return "Patient History (disabled)"
}

func formatNotificationsLabel(cfg *config.Config) string {
	if cfg.Notifications.Enabled {
		return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
	}
	return "Notifications (disabled)"
}

func getTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Focused.Base = lipgloss.NewStyle().BorderForeground(ColorPrimary)
	t.Focused.SelectedOption = lipgloss.NewStyle().Foreground(ColorSecondary)
	t.Focused.UnselectedOption = lipgloss.NewStyle().Foreground(ColorText)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(ColorMuted)
	t.Blurred.Description = lipgloss.NewStyle().Foreground(ColorSubtle)

	return t
}
