package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunovale/escriba/internal/bus"
	"github.com/brunovale/escriba/internal/config"
	"github.com/brunovale/escriba/internal/daemon"
	"github.com/brunovale/escriba/internal/docgen"
	"github.com/brunovale/escriba/internal/history"
	"github.com/brunovale/escriba/internal/llm"
	"github.com/brunovale/escriba/internal/tui"
)

const version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "escriba",
	Short: "Clinical encounter capture and documentation",
	Long: `escriba records clinical consultations, transcribes them and generates
clinical documents (nota clínica, prescrição, resumo, dados estruturados)
through a local daemon controlled over a unix socket.`,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		toggleCmd(),
		cancelCmd(),
		statusCmd(),
		versionCmd(),
		stopCmd(),
		configureCmd(),
		generateCmd(),
		historyCmd(),
	)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return daemon.New(manager, version).Run()
		},
	}
}

func toggleCmd() *cobra.Command {
	var patient string

	cmd := &cobra.Command{
		Use:   "toggle",
		Short: "Start or finish an encounter recording",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cmdArgs []string
			if patient != "" {
				cmdArgs = append(cmdArgs, patient)
			}
			resp, err := bus.SendCommand(bus.CmdToggle, cmdArgs...)
			if err != nil {
				return fmt.Errorf("failed to toggle encounter: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&patient, "patient", "", "patient id or email for history lookup")
	return cmd
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running encounter",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdCancel)
			if err != nil {
				return fmt.Errorf("failed to cancel encounter: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get the current encounter status",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdStatus)
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get daemon and protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdVersion)
			if err != nil {
				fmt.Printf("client version=%s (daemon not running)\n", version)
				return nil
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := bus.SendCommand(bus.CmdQuit)
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Println(resp)
			return nil
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration editor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			result, err := tui.Run(cfg)
			if err != nil {
				return fmt.Errorf("configuration editor error: %w", err)
			}
			if result.Cancelled {
				fmt.Println("Configuration cancelled.")
				return nil
			}

			path, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			if err := config.Save(result.Config, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			fmt.Printf("Configuration saved to %s\n", path)
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	var patient string
	var types []string
	var review bool

	cmd := &cobra.Command{
		Use:   "generate <transcript-file>",
		Short: "Generate documents from an existing transcript",
		Long: `Runs document generation directly against a transcript file, without the
daemon. Useful for reprocessing an encounter or testing prompts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), args[0], patient, types, review)
		},
	}

	cmd.Flags().StringVar(&patient, "patient", "", "patient id or email for history lookup")
	cmd.Flags().StringSliceVar(&types, "type", nil, "document types to generate (default: configured set)")
	cmd.Flags().BoolVar(&review, "review", true, "append the clinician review disclaimer")
	return cmd
}

func runGenerate(ctx context.Context, transcriptPath, patient string, types []string, review bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return fmt.Errorf("failed to read transcript: %w", err)
	}

	adapter, err := llm.NewAdapter(cfg.ToLLMConfig())
	if err != nil {
		return err
	}

	var loader docgen.HistoryLoader
	if cfg.History.Enabled && patient != "" {
		store, err := openHistory(cfg)
		if err != nil {
			fmt.Printf("history unavailable, generating without it: %v\n", err)
		} else {
			defer store.Close()
			loader = history.NewLoader(store)
		}
	}

	docTypes := cfg.DocumentTypes()
	if len(types) > 0 {
		docTypes = docTypes[:0]
		for _, t := range types {
			if !docgen.KnownType(t) {
				return fmt.Errorf("unknown document type: %s", t)
			}
			docTypes = append(docTypes, docgen.DocumentType(t))
		}
	}

	req := docgen.Request{
		Transcript:     strings.TrimSpace(string(data)),
		ReviewRequired: review,
		Patient:        patient,
		UseHistory:     loader != nil,
	}

	outcomes := docgen.New(adapter, loader).GenerateAll(ctx, req, docTypes)
	failed := 0
	for _, o := range outcomes {
		fmt.Printf("\n===== %s =====\n", o.Type)
		if o.Err != nil {
			failed++
			fmt.Printf("generation failed: %v\n", o.Err)
			continue
		}
		fmt.Println(o.Artifact.Text)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(outcomes))
	}
	return nil
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <patient>",
		Short: "List recent encounters for a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			store, err := openHistory(cfg)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer store.Close()

			records, err := store.Recent(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no encounters found")
				return nil
			}

			for _, r := range records {
				fmt.Printf("%s  %s\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Summary)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", history.MaxRecords, "maximum encounters to list")
	return cmd
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	path := cfg.History.Path
	if path == "" {
		var err error
		path, err = config.DefaultHistoryPath()
		if err != nil {
			return nil, err
		}
	}
	return history.Open(path)
}
