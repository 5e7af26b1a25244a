package transcriber

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/brunovale/escriba/internal/recording"
)

// BatchAdapter submits one finished audio unit and returns its transcript.
type BatchAdapter interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// BatchTranscriber packages captured audio into discrete units and submits
// them to a batch backend. While recording (and streaming disabled) it runs
// on a fixed interval to provide interim transcripts; the final submission
// happens once on Stop with the full container.
type BatchTranscriber struct {
	adapter    BatchAdapter
	sampleRate int
	channels   int
	interval   time.Duration
	timeout    time.Duration

	bufMu sync.Mutex
	audio []byte // everything received so far, retranscribed each tick

	wg sync.WaitGroup
}

func NewBatchTranscriber(adapter BatchAdapter, config Config, sampleRate, channels int) *BatchTranscriber {
	return &BatchTranscriber{
		adapter:    adapter,
		sampleRate: sampleRate,
		channels:   channels,
		interval:   config.BatchInterval,
		timeout:    config.RequestTimeout,
	}
}

// Transcribe submits one audio unit. Interim results never trigger downstream
// generation; a final failure surfaces ErrTranscriptionFailed without
// advancing the pipeline. Resubmitting the same final unit after a failure is
// safe and simply repeats the attempt.
func (b *BatchTranscriber) Transcribe(ctx context.Context, wav []byte, final bool) (Segment, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	text, err := b.adapter.Transcribe(callCtx, wav)
	if err != nil {
		log.Printf("batch: transcription failed after %v: %v", time.Since(start), err)
		return Segment{}, fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	if final && text == "" {
		return Segment{}, ErrEmptyTranscript
	}

	log.Printf("batch: transcribed %d bytes in %v (final=%v)", len(wav), time.Since(start), final)
	return Segment{Text: text, Final: final, Timestamp: time.Now()}, nil
}

// Run consumes partial-audio slices and, every interval, retranscribes the
// accumulated audio into the aggregator's interim view. It returns when ctx
// is cancelled or the slice channel closes; the interval timer dies with it.
func (b *BatchTranscriber) Run(ctx context.Context, slices <-chan recording.Slice, agg *Aggregator) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case slice, ok := <-slices:
				if !ok {
					return
				}
				b.bufMu.Lock()
				b.audio = append(b.audio, slice.Data...)
				b.bufMu.Unlock()

			case <-ticker.C:
				wav := b.snapshotWAV()
				if wav == nil {
					continue
				}
				seg, err := b.Transcribe(ctx, wav, false)
				if err != nil {
					// interim failures are logged and retried next tick
					continue
				}
				agg.SetInterim(SourceBatch, seg.Text)
			}
		}
	}()
}

// Finalize transcribes the finished container and folds the result into the
// aggregator, raising its completion event on success.
func (b *BatchTranscriber) Finalize(ctx context.Context, container recording.Container, agg *Aggregator) error {
	seg, err := b.Transcribe(ctx, container.WAV, true)
	if err != nil {
		return err
	}
	agg.SetFinal(SourceBatch, seg.Text)
	agg.Complete(SourceBatch)
	return nil
}

// Wait blocks until the interval loop has exited.
func (b *BatchTranscriber) Wait() { b.wg.Wait() }

func (b *BatchTranscriber) snapshotWAV() []byte {
	b.bufMu.Lock()
	defer b.bufMu.Unlock()
	if len(b.audio) == 0 {
		return nil
	}
	return recording.EncodeWAV(b.audio, b.sampleRate, b.channels)
}
