package docgen

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/brunovale/escriba/internal/history"
	"github.com/brunovale/escriba/internal/llm"
)

// DocumentType selects the orchestrator and extractor roster for one
// generation call.
type DocumentType string

const (
	ClinicalNote     DocumentType = "clinical_note"
	Prescription     DocumentType = "prescription"
	Summary          DocumentType = "summary"
	StructuredData   DocumentType = "structured_data"
	Evolution        DocumentType = "evolution"
	MedicalReport    DocumentType = "medical_report"
	PatientFriendly  DocumentType = "patient_friendly"
	EnhancedAnalysis DocumentType = "enhanced_analysis"
)

// DefaultSet is the four document types produced for a normal encounter.
var DefaultSet = []DocumentType{ClinicalNote, Prescription, Summary, StructuredData}

// ExtractionResult is the output of one specialized extractor for one run.
type ExtractionResult struct {
	Agent   string
	Content string
	Failed  bool
}

// Artifact is the final output of one orchestration call. StructuredPayload
// is set only for structured_data, and only when the orchestrator response
// parsed as JSON.
type Artifact struct {
	Type                 DocumentType
	Text                 string
	StructuredPayload    map[string]any
	GeneratedWithHistory bool
	HistoryCount         int
}

// Request describes one generation call.
type Request struct {
	Transcript             string
	Type                   DocumentType
	ReviewRequired         bool
	Patient                string // record id or email; empty disables history
	UseHistory             bool
	AdditionalInstructions string
}

// Outcome pairs one requested document type with its result. A failure in one
// type never hides or aborts the others.
type Outcome struct {
	Type     DocumentType
	Artifact Artifact
	Err      error
}

// HistoryLoader provides the prior-encounter context. The pipeline treats
// history as optional and degrades to a history-less run when the loader
// errors or returns nothing.
type HistoryLoader interface {
	Load(ctx context.Context, patient string) ([]history.Record, error)
}

// Pipeline is the two-stage document generator: a parallel extraction
// fan-out feeding a single orchestration call per document type.
type Pipeline struct {
	adapter     llm.Adapter
	loader      HistoryLoader
	callTimeout time.Duration
}

func New(adapter llm.Adapter, loader HistoryLoader) *Pipeline {
	return &Pipeline{
		adapter:     adapter,
		loader:      loader,
		callTimeout: 90 * time.Second,
	}
}

// Generate produces one document artifact from a finished transcript.
func (p *Pipeline) Generate(ctx context.Context, req Request) (Artifact, error) {
	if req.Transcript == "" {
		return Artifact{}, fmt.Errorf("empty transcript")
	}

	records := p.loadHistory(ctx, req)

	var extractions []ExtractionResult
	if req.Type != PatientFriendly {
		extractions = p.runExtractors(ctx, rosterFor(req.Type), req.Transcript, records)
	}

	text, err := p.orchestrate(ctx, req, extractions, records)
	if err != nil {
		return Artifact{}, fmt.Errorf("orchestrate %s: %w", req.Type, err)
	}

	artifact := Artifact{
		Type:                 req.Type,
		Text:                 text,
		GeneratedWithHistory: len(records) > 0,
		HistoryCount:         len(records),
	}

	if req.Type == StructuredData {
		if payload, ok := ParseStructuredPayload(text); ok {
			artifact.StructuredPayload = payload
		} else {
			// parse failure is non-fatal; the textual artifact stands
			log.Printf("docgen: structured payload did not parse, returning text only")
		}
	}

	if req.ReviewRequired {
		artifact.Text = artifact.Text + "\n\n" + ReviewDisclaimer
	}

	return artifact, nil
}

// GenerateAll runs one generation per requested type. The calls are
// independent and run concurrently; every requested type is reported as
// success or failure, never silently dropped.
func (p *Pipeline) GenerateAll(ctx context.Context, req Request, types []DocumentType) []Outcome {
	if len(types) == 0 {
		types = DefaultSet
	}

	outcomes := make([]Outcome, len(types))
	var wg sync.WaitGroup

	for i, docType := range types {
		wg.Add(1)
		go func(i int, docType DocumentType) {
			defer wg.Done()
			r := req
			r.Type = docType
			artifact, err := p.Generate(ctx, r)
			outcomes[i] = Outcome{Type: docType, Artifact: artifact, Err: err}
			if err != nil {
				log.Printf("docgen: %s failed: %v", docType, err)
			}
		}(i, docType)
	}

	wg.Wait()
	return outcomes
}

// loadHistory fetches prior encounters when requested, degrading to none on
// any loader failure.
func (p *Pipeline) loadHistory(ctx context.Context, req Request) []history.Record {
	if !req.UseHistory || req.Patient == "" || p.loader == nil {
		return nil
	}
	records, err := p.loader.Load(ctx, req.Patient)
	if err != nil {
		log.Printf("docgen: history load failed, generating without history: %v", err)
		return nil
	}
	if len(records) > history.MaxRecords {
		records = records[:history.MaxRecords]
	}
	return records
}

// runExtractors is the Stage-1 fan-out: every extractor in the roster runs
// concurrently against the same context, and the barrier waits for all of
// them to settle. A failed extractor yields a placeholder result and never
// aborts its siblings.
func (p *Pipeline) runExtractors(ctx context.Context, roster []string, transcript string, records []history.Record) []ExtractionResult {
	results := make([]ExtractionResult, len(roster))
	userPrompt := buildExtractionContext(transcript, records)

	var wg sync.WaitGroup
	for i, agent := range roster {
		wg.Add(1)
		go func(i int, agent string) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
			defer cancel()

			start := time.Now()
			content, err := p.adapter.Complete(callCtx, extractorPrompt(agent), userPrompt)
			if err != nil {
				log.Printf("docgen: extractor %s failed after %v: %v", agent, time.Since(start), err)
				results[i] = ExtractionResult{
					Agent:   agent,
					Content: extractionPlaceholder(agent),
					Failed:  true,
				}
				return
			}
			results[i] = ExtractionResult{Agent: agent, Content: content}
		}(i, agent)
	}

	wg.Wait()
	return results
}

// orchestrate is the Stage-2 single call: all labelled extractor outputs, the
// raw transcript and the history block feed one composing agent.
func (p *Pipeline) orchestrate(ctx context.Context, req Request, extractions []ExtractionResult, records []history.Record) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	userPrompt := buildCompositionPrompt(req, extractions, records)

	text, err := p.adapter.Complete(callCtx, orchestratorPrompt(req.Type), userPrompt)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", fmt.Errorf("orchestrator returned empty document")
	}
	return text, nil
}
