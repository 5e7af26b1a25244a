package docgen

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brunovale/escriba/internal/history"
)

const extractorMark = "clinical information extraction agent"

// fakeAdapter scripts extractor and orchestrator behavior and records the
// fan-in barrier state at orchestration time.
type fakeAdapter struct {
	extractorDelay     time.Duration
	failingExtractors  int32 // the first N extractor calls fail
	orchestratorText   string
	orchestratorErr    error
	failOrchestratorIn string // fail only when the system prompt contains this

	extractorCalls     atomic.Int32
	extractorsSettled  atomic.Int32
	orchestratorCalls  atomic.Int32
	settledAtOrchestra atomic.Int32
	lastUserPrompt     atomic.Value
}

func (f *fakeAdapter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.Contains(systemPrompt, extractorMark) {
		n := f.extractorCalls.Add(1)
		if f.extractorDelay > 0 {
			select {
			case <-time.After(f.extractorDelay):
			case <-ctx.Done():
				f.extractorsSettled.Add(1)
				return "", ctx.Err()
			}
		}
		defer f.extractorsSettled.Add(1)
		if n <= f.failingExtractors {
			return "", errors.New("extractor exploded")
		}
		return "- achado extraído", nil
	}

	// orchestrator call
	f.orchestratorCalls.Add(1)
	f.settledAtOrchestra.Store(f.extractorsSettled.Load())
	f.lastUserPrompt.Store(userPrompt)
	if f.orchestratorErr != nil &&
		(f.failOrchestratorIn == "" || strings.Contains(systemPrompt, f.failOrchestratorIn)) {
		return "", f.orchestratorErr
	}
	return f.orchestratorText, nil
}

type fakeLoader struct {
	records []history.Record
	err     error
}

func (f *fakeLoader) Load(ctx context.Context, patient string) ([]history.Record, error) {
	return f.records, f.err
}

func TestGenerateClinicalNote(t *testing.T) {
	adapter := &fakeAdapter{orchestratorText: "Nota clínica completa."}
	p := New(adapter, nil)

	artifact, err := p.Generate(context.Background(), Request{
		Transcript:     "dor lombar há 2 semanas",
		Type:           ClinicalNote,
		ReviewRequired: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if adapter.extractorCalls.Load() != 5 {
		t.Errorf("clinical note should run 5 extractors, got %d", adapter.extractorCalls.Load())
	}
	if adapter.orchestratorCalls.Load() != 1 {
		t.Errorf("expected exactly one orchestration call, got %d", adapter.orchestratorCalls.Load())
	}
	if !strings.Contains(artifact.Text, "Nota clínica completa.") {
		t.Errorf("artifact text missing orchestrator output: %q", artifact.Text)
	}
	if !strings.Contains(artifact.Text, ReviewDisclaimer) {
		t.Error("review disclaimer should be appended")
	}
	if artifact.GeneratedWithHistory {
		t.Error("no history requested")
	}
}

func TestExtractionBarrier(t *testing.T) {
	// four of five extractors fail; the orchestration call must still start,
	// and only after all five settled
	adapter := &fakeAdapter{
		extractorDelay:    20 * time.Millisecond,
		failingExtractors: 4,
		orchestratorText:  "doc",
	}
	p := New(adapter, nil)

	artifact, err := p.Generate(context.Background(), Request{Transcript: "t", Type: ClinicalNote})
	if err != nil {
		t.Fatalf("one failed extractor must not abort generation: %v", err)
	}
	if artifact.Text != "doc" {
		t.Errorf("got %q", artifact.Text)
	}

	if settled := adapter.settledAtOrchestra.Load(); settled != 5 {
		t.Errorf("orchestration started before the barrier: %d/5 extractors settled", settled)
	}

	// failed extractors degrade the composed prompt with placeholders
	prompt, _ := adapter.lastUserPrompt.Load().(string)
	if !strings.Contains(prompt, "extração indisponível") {
		t.Error("placeholder for failed extractor missing from composition prompt")
	}
	if !strings.Contains(prompt, "- achado extraído") {
		t.Error("successful extraction missing from composition prompt")
	}
}

func TestExtractorTimeoutIsIsolated(t *testing.T) {
	adapter := &fakeAdapter{
		extractorDelay:   time.Second,
		orchestratorText: "doc",
	}
	p := New(adapter, nil)
	p.callTimeout = 30 * time.Millisecond

	start := time.Now()
	artifact, err := p.Generate(context.Background(), Request{Transcript: "t", Type: Summary})
	if err != nil {
		t.Fatalf("stalled extractors must not fail the run: %v", err)
	}
	if artifact.Text != "doc" {
		t.Errorf("got %q", artifact.Text)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("stalled extractor was not bounded by the call timeout")
	}
}

func TestPatientFriendlySkipsExtraction(t *testing.T) {
	adapter := &fakeAdapter{orchestratorText: "Explicação simples."}
	p := New(adapter, nil)

	artifact, err := p.Generate(context.Background(), Request{
		Transcript: "Nota clínica gerada anteriormente",
		Type:       PatientFriendly,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if adapter.extractorCalls.Load() != 0 {
		t.Errorf("patient_friendly must skip extraction, got %d calls", adapter.extractorCalls.Load())
	}
	if artifact.Text != "Explicação simples." {
		t.Errorf("got %q", artifact.Text)
	}
}

func TestStructuredDataParsing(t *testing.T) {
	t.Run("fenced json block", func(t *testing.T) {
		adapter := &fakeAdapter{
			orchestratorText: "```json\n{\"paciente\":{\"id\":\"P1\"},\"sintomas\":[\"dor lombar\"]}\n```",
		}
		p := New(adapter, nil)

		artifact, err := p.Generate(context.Background(), Request{Transcript: "t", Type: StructuredData})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if artifact.StructuredPayload == nil {
			t.Fatal("structured payload should be parsed")
		}
		paciente, _ := artifact.StructuredPayload["paciente"].(map[string]any)
		if paciente["id"] != "P1" {
			t.Errorf("paciente.id should be P1, got %v", paciente["id"])
		}
	})

	t.Run("invalid json is non-fatal", func(t *testing.T) {
		adapter := &fakeAdapter{orchestratorText: "desculpe, não consegui gerar JSON"}
		p := New(adapter, nil)

		artifact, err := p.Generate(context.Background(), Request{Transcript: "t", Type: StructuredData})
		if err != nil {
			t.Fatalf("parse failure must not fail the pipeline: %v", err)
		}
		if artifact.Text == "" {
			t.Error("text should still be populated")
		}
		if artifact.StructuredPayload != nil {
			t.Error("payload should be left unset")
		}
	})

	t.Run("history extractor included", func(t *testing.T) {
		adapter := &fakeAdapter{orchestratorText: "{}"}
		p := New(adapter, nil)

		if _, err := p.Generate(context.Background(), Request{Transcript: "t", Type: StructuredData}); err != nil {
			t.Fatal(err)
		}
		if adapter.extractorCalls.Load() != 6 {
			t.Errorf("structured_data should run all extractors plus history, got %d", adapter.extractorCalls.Load())
		}
	})
}

func TestGenerateWithHistory(t *testing.T) {
	records := []history.Record{
		{CreatedAt: time.Now(), Summary: "lombalgia prévia", Prescription: "ibuprofeno"},
		{CreatedAt: time.Now().Add(-24 * time.Hour), Summary: "consulta de rotina"},
	}
	adapter := &fakeAdapter{orchestratorText: "doc"}
	p := New(adapter, &fakeLoader{records: records})

	artifact, err := p.Generate(context.Background(), Request{
		Transcript: "t",
		Type:       ClinicalNote,
		Patient:    "maria@example.com",
		UseHistory: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !artifact.GeneratedWithHistory || artifact.HistoryCount != 2 {
		t.Errorf("history flags wrong: %+v", artifact)
	}

	prompt, _ := adapter.lastUserPrompt.Load().(string)
	if !strings.Contains(prompt, "lombalgia prévia") {
		t.Error("history block missing from composition prompt")
	}
}

func TestHistoryLoaderFailureDegrades(t *testing.T) {
	adapter := &fakeAdapter{orchestratorText: "doc"}
	p := New(adapter, &fakeLoader{err: errors.New("store offline")})

	artifact, err := p.Generate(context.Background(), Request{
		Transcript: "t",
		Type:       Summary,
		Patient:    "P1",
		UseHistory: true,
	})
	if err != nil {
		t.Fatalf("loader failure must degrade, not fail: %v", err)
	}
	if artifact.GeneratedWithHistory || artifact.HistoryCount != 0 {
		t.Error("artifact should report a history-less run")
	}
}

func TestGenerateAllIndependence(t *testing.T) {
	// prescription orchestration fails; the other three types must complete
	adapter := &fakeAdapter{
		orchestratorText:   "doc",
		orchestratorErr:    errors.New("model unavailable"),
		failOrchestratorIn: "prescription",
	}
	p := New(adapter, nil)

	outcomes := p.GenerateAll(context.Background(), Request{Transcript: "t"}, nil)

	if len(outcomes) != 4 {
		t.Fatalf("all four requested types must be reported, got %d", len(outcomes))
	}

	byType := map[DocumentType]Outcome{}
	for _, o := range outcomes {
		byType[o.Type] = o
	}

	if byType[Prescription].Err == nil {
		t.Error("prescription should report its failure")
	}
	for _, docType := range []DocumentType{ClinicalNote, Summary, StructuredData} {
		if byType[docType].Err != nil {
			t.Errorf("%s should succeed despite prescription failure: %v", docType, byType[docType].Err)
		}
	}
}

func TestEmptyTranscriptRejected(t *testing.T) {
	p := New(&fakeAdapter{orchestratorText: "doc"}, nil)
	if _, err := p.Generate(context.Background(), Request{Type: ClinicalNote}); err == nil {
		t.Fatal("empty transcript should be rejected")
	}
}
