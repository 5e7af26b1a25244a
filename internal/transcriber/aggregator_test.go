package transcriber

import (
	"testing"
)

func TestAggregatorStreamingFlow(t *testing.T) {
	agg := NewAggregator(SourceStreaming)

	agg.SetInterim(SourceStreaming, "dor")
	if agg.Current() != "dor" {
		t.Errorf("interim should be visible, got %q", agg.Current())
	}

	agg.SetInterim(SourceStreaming, "dor lombar")
	if agg.Current() != "dor lombar" {
		t.Errorf("interim should be replaced, not appended, got %q", agg.Current())
	}

	agg.AppendFinal(SourceStreaming, "dor lombar")
	agg.SetInterim(SourceStreaming, "há duas")
	agg.AppendFinal(SourceStreaming, "há duas semanas")

	if agg.Current() != "dor lombar há duas semanas" {
		t.Errorf("finals should accumulate, got %q", agg.Current())
	}
}

func TestAggregatorFinalIsSticky(t *testing.T) {
	agg := NewAggregator(SourceBatch)

	agg.SetFinal(SourceBatch, "resultado final")
	agg.SetInterim(SourceBatch, "interim tardio")

	if agg.Current() != "resultado final" {
		t.Errorf("interim after final should be ignored, got %q", agg.Current())
	}
}

func TestAggregatorOneCompleteEventPerSession(t *testing.T) {
	agg := NewAggregator(SourceBatch)

	agg.SetFinal(SourceBatch, "texto")
	if !agg.Complete(SourceBatch) {
		t.Fatal("first completion should fire")
	}
	if agg.Complete(SourceBatch) {
		t.Fatal("second completion should not fire")
	}

	select {
	case text := <-agg.Done():
		if text != "texto" {
			t.Errorf("completion should carry final text, got %q", text)
		}
	default:
		t.Fatal("completion event missing")
	}

	select {
	case <-agg.Done():
		t.Fatal("only one completion event may fire")
	default:
	}
}

func TestAggregatorIgnoresInactiveSource(t *testing.T) {
	agg := NewAggregator(SourceStreaming)

	agg.SetInterim(SourceBatch, "batch interim")
	agg.SetFinal(SourceBatch, "batch final")
	if agg.Complete(SourceBatch) {
		t.Fatal("inactive source must not complete the session")
	}
	if agg.Current() != "" {
		t.Errorf("inactive source updates should be ignored, got %q", agg.Current())
	}

	agg.AppendFinal(SourceStreaming, "streaming wins")
	if !agg.Complete(SourceStreaming) {
		t.Fatal("active source should complete")
	}
	if text := <-agg.Done(); text != "streaming wins" {
		t.Errorf("got %q", text)
	}
}

func TestAggregatorRetriedFinalWins(t *testing.T) {
	agg := NewAggregator(SourceBatch)

	agg.SetFinal(SourceBatch, "primeira tentativa")
	agg.Complete(SourceBatch)

	// a resubmitted final chunk replaces the text without a second event
	agg.SetFinal(SourceBatch, "segunda tentativa")
	if agg.Complete(SourceBatch) {
		t.Fatal("retried final must not fire a second completion")
	}
	if agg.Current() != "segunda tentativa" {
		t.Errorf("last final should win, got %q", agg.Current())
	}
}
