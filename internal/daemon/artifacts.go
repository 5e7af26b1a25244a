package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brunovale/escriba/internal/docgen"
	"github.com/brunovale/escriba/internal/pipeline"
)

// writeArtifacts stores the transcript and every successful document of one
// encounter under a timestamped directory, returning its path.
func writeArtifacts(outputDir string, result pipeline.Result) (string, error) {
	if outputDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		outputDir = filepath.Join(home, "Documents", "escriba")
	}

	dir := filepath.Join(outputDir, time.Now().Format("2006-01-02_150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "transcript.txt"), []byte(result.Transcript), 0o600); err != nil {
		return "", err
	}

	for _, o := range result.Outcomes {
		if o.Err != nil {
			continue
		}
		name, data := artifactFile(o)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return "", err
		}
	}

	return dir, nil
}

func artifactFile(o docgen.Outcome) (string, []byte) {
	if o.Type == docgen.StructuredData && o.Artifact.StructuredPayload != nil {
		if data, err := json.MarshalIndent(o.Artifact.StructuredPayload, "", "  "); err == nil {
			return "structured_data.json", data
		}
	}
	return fmt.Sprintf("%s.md", o.Type), []byte(o.Artifact.Text)
}
