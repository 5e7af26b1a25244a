package transcriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brunovale/escriba/internal/recording"
)

type fakeAdapter struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeAdapter) Transcribe(ctx context.Context, wav []byte) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

func testBatchConfig() Config {
	config := DefaultConfig()
	config.APIKey = "k"
	config.BatchInterval = 20 * time.Millisecond
	config.RequestTimeout = time.Second
	return config
}

func TestBatchTranscribeFinal(t *testing.T) {
	adapter := &fakeAdapter{text: "dor lombar há 2 semanas"}
	b := NewBatchTranscriber(adapter, testBatchConfig(), 16000, 1)

	seg, err := b.Transcribe(context.Background(), []byte("wav"), true)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !seg.Final || seg.Text != "dor lombar há 2 semanas" {
		t.Errorf("unexpected segment: %+v", seg)
	}
}

func TestBatchTranscribeFailure(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("boom")}
	b := NewBatchTranscriber(adapter, testBatchConfig(), 16000, 1)

	_, err := b.Transcribe(context.Background(), []byte("wav"), true)
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Errorf("expected ErrTranscriptionFailed, got %v", err)
	}
}

func TestBatchEmptyFinalTranscript(t *testing.T) {
	adapter := &fakeAdapter{text: ""}
	b := NewBatchTranscriber(adapter, testBatchConfig(), 16000, 1)

	if _, err := b.Transcribe(context.Background(), []byte("wav"), true); !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("expected ErrEmptyTranscript, got %v", err)
	}

	// interim results may legitimately be empty
	if _, err := b.Transcribe(context.Background(), []byte("wav"), false); err != nil {
		t.Errorf("empty interim should not error: %v", err)
	}
}

func TestBatchFinalizeIdempotent(t *testing.T) {
	adapter := &fakeAdapter{text: "texto final"}
	b := NewBatchTranscriber(adapter, testBatchConfig(), 16000, 1)
	agg := NewAggregator(SourceBatch)

	container := recording.Container{WAV: []byte("wav")}
	if err := b.Finalize(context.Background(), container, agg); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	// resubmitting the same final chunk is safe and does not corrupt state
	if err := b.Finalize(context.Background(), container, agg); err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	if adapter.calls.Load() != 2 {
		t.Errorf("expected 2 independent transcriptions, got %d", adapter.calls.Load())
	}
	if agg.Current() != "texto final" {
		t.Errorf("aggregator corrupted: %q", agg.Current())
	}

	count := 0
	for {
		select {
		case <-agg.Done():
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("expected exactly one completion event, got %d", count)
	}
}

func TestBatchRunIntervalLoop(t *testing.T) {
	adapter := &fakeAdapter{text: "interim parcial"}
	b := NewBatchTranscriber(adapter, testBatchConfig(), 16000, 1)
	agg := NewAggregator(SourceBatch)

	ctx, cancel := context.WithCancel(context.Background())
	slices := make(chan recording.Slice, 4)
	b.Run(ctx, slices, agg)

	slices <- recording.Slice{Data: make([]byte, 1600), Timestamp: time.Now()}

	deadline := time.After(2 * time.Second)
	for agg.Current() != "interim parcial" {
		select {
		case <-deadline:
			t.Fatal("interval loop never produced an interim transcript")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// interim results never trigger completion
	select {
	case <-agg.Done():
		t.Fatal("interim transcription must not complete the session")
	default:
	}

	cancel()
	b.Wait()

	calls := adapter.calls.Load()
	time.Sleep(60 * time.Millisecond)
	if adapter.calls.Load() != calls {
		t.Error("ticker should stop when the session is cancelled")
	}
}

func TestHTTPAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil || string(raw) != "pcm-audio" {
			http.Error(w, "bad audio", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(batchResponse{Text: "transcrito"})
	}))
	defer srv.Close()

	adapter := NewHTTPAdapter(srv.URL, "key")
	text, err := adapter.Transcribe(context.Background(), []byte("pcm-audio"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "transcrito" {
		t.Errorf("got %q", text)
	}
}

func TestHTTPAdapterErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	adapter := NewHTTPAdapter(srv.URL, "")
	if _, err := adapter.Transcribe(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestNewBatchAdapter(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid openai", func(c *Config) {}, false},
		{"openai missing key", func(c *Config) { c.APIKey = "" }, true},
		{"valid http", func(c *Config) { c.Provider = "http"; c.BatchEndpoint = "http://x" }, false},
		{"http missing endpoint", func(c *Config) { c.Provider = "http" }, true},
		{"unknown provider", func(c *Config) { c.Provider = "whisper-on-a-stick" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := testBatchConfig()
			tt.mutate(&config)
			_, err := NewBatchAdapter(config)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
