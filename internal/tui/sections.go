package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"

	"github.com/brunovale/escriba/internal/config"
	"github.com/brunovale/escriba/internal/docgen"
)

func editProviders(cfg *config.Config) error {
	openaiKey := cfg.Providers["openai"].APIKey
	groqKey := cfg.Providers["groq"].APIKey

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI API Key").
				Description("Used for transcription and document generation").
				EchoMode(huh.EchoModePassword).
				Value(&openaiKey),
			huh.NewInput().
				Title("Groq API Key").
				Description("Optional, only needed when generation.provider = groq").
				EchoMode(huh.EchoModePassword).
				Value(&groqKey),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	if openaiKey != "" {
		cfg.Providers["openai"] = config.ProviderConfig{APIKey: openaiKey}
	}
	if groqKey != "" {
		cfg.Providers["groq"] = config.ProviderConfig{APIKey: groqKey}
	}
	return nil
}

func editTranscription(cfg *config.Config) error {
	provider := cfg.Transcription.Provider
	streaming := cfg.Transcription.Streaming
	language := cfg.Transcription.Language
	model := cfg.Transcription.Model

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transcription Provider").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Custom HTTP endpoint", "http"),
				).
				Value(&provider),
			huh.NewConfirm().
				Title("Streaming transcription?").
				Description("Stream audio over a realtime websocket for live partial transcripts").
				Value(&streaming),
			huh.NewInput().
				Title("Language").
				Description("ISO-639-1 code, empty for auto-detect").
				Placeholder("pt").
				Value(&language),
			huh.NewInput().
				Title("Model").
				Placeholder("whisper-1").
				Value(&model),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Transcription.Provider = provider
	cfg.Transcription.Streaming = streaming
	cfg.Transcription.Language = language
	cfg.Transcription.Model = model

	if provider == "http" {
		endpoint := cfg.Transcription.BatchEndpoint
		endpointForm := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Batch Endpoint").
					Description("POST endpoint receiving base64 WAV and returning the transcript").
					Placeholder("http://localhost:9000/transcribe").
					Value(&endpoint),
			),
		).WithTheme(getTheme())
		if err := endpointForm.Run(); err != nil {
			return err
		}
		cfg.Transcription.BatchEndpoint = endpoint
	}

	return nil
}

func editGeneration(cfg *config.Config) error {
	provider := cfg.Generation.Provider
	model := cfg.Generation.Model
	documents := cfg.Generation.Documents
	review := cfg.Generation.ReviewRequired
	useHistory := cfg.Generation.UseHistory

	docOptions := []huh.Option[string]{}
	for _, docType := range []docgen.DocumentType{
		docgen.ClinicalNote, docgen.Prescription, docgen.Summary, docgen.StructuredData,
		docgen.Evolution, docgen.MedicalReport, docgen.EnhancedAnalysis,
	} {
		docOptions = append(docOptions, huh.NewOption(string(docType), string(docType)))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Generation Provider").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Groq", "groq"),
				).
				Value(&provider),
			huh.NewInput().
				Title("Model").
				Placeholder("gpt-4o-mini").
				Value(&model),
			huh.NewMultiSelect[string]().
				Title("Documents per encounter").
				Options(docOptions...).
				Value(&documents),
			huh.NewConfirm().
				Title("Append review disclaimer?").
				Description("Marks generated documents as pending clinician review").
				Value(&review),
			huh.NewConfirm().
				Title("Use patient history?").
				Description("Feed prior encounters of the same patient into generation").
				Value(&useHistory),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Generation.Provider = provider
	cfg.Generation.Model = model
	cfg.Generation.Documents = documents
	cfg.Generation.ReviewRequired = review
	cfg.Generation.UseHistory = useHistory
	return nil
}

func editHistory(cfg *config.Config) error {
	enabled := cfg.History.Enabled
	path := cfg.History.Path

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Persist encounters?").
				Description("Stores finished encounters in a local sqlite database").
				Value(&enabled),
			huh.NewInput().
				Title("Database path").
				Description("Empty uses the config directory default").
				Value(&path),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.History.Enabled = enabled
	cfg.History.Path = path
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled

	enableForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description("Show encounter status changes").
				Value(&enabled),
		),
	).WithTheme(getTheme())

	if err := enableForm.Run(); err != nil {
		return err
	}
	cfg.Notifications.Enabled = enabled

	if !enabled {
		return nil
	}

	notifType := cfg.Notifications.Type
	if notifType == "" {
		notifType = "desktop"
	}

	typeForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Log to console only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&notifType),
		),
	).WithTheme(getTheme())

	if err := typeForm.Run(); err != nil {
		return err
	}
	cfg.Notifications.Type = notifType
	return nil
}

func editRecording(cfg *config.Config) error {
	device := cfg.Recording.Device
	sampleRate := strconv.Itoa(cfg.Recording.SampleRate)
	echo := cfg.Recording.EchoCancellation
	noise := cfg.Recording.NoiseSuppression
	gain := cfg.Recording.AutoGainControl

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Capture Device").
				Description("PipeWire target node, empty for the default microphone").
				Value(&device),
			huh.NewInput().
				Title("Sample Rate").
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n <= 0 {
						return fmt.Errorf("must be a positive integer")
					}
					return nil
				}).
				Value(&sampleRate),
			huh.NewConfirm().Title("Echo cancellation?").Value(&echo),
			huh.NewConfirm().Title("Noise suppression?").Value(&noise),
			huh.NewConfirm().Title("Auto gain control?").Value(&gain),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Recording.Device = device
	if n, err := strconv.Atoi(sampleRate); err == nil {
		cfg.Recording.SampleRate = n
	}
	cfg.Recording.EchoCancellation = echo
	cfg.Recording.NoiseSuppression = noise
	cfg.Recording.AutoGainControl = gain
	return nil
}
