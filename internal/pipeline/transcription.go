package pipeline

import (
	"context"
	"sync"

	"github.com/brunovale/escriba/internal/recording"
	"github.com/brunovale/escriba/internal/transcriber"
)

// transcription abstracts the active transcript source so the session loop
// can drive streaming and batch mode the same way.
type transcription struct {
	realtime *transcriber.RealtimeSession
	batch    *transcriber.BatchTranscriber
	errCh    <-chan error
	done     chan struct{}
	doneOnce sync.Once
}

func (p *pipeline) startTranscription(ctx context.Context, engine *recording.Engine) (*transcription, *transcriber.Aggregator, error) {
	if p.config.Transcriber.Streaming {
		return p.startStreaming(ctx, engine)
	}
	return p.startBatch(ctx, engine)
}

func (p *pipeline) startStreaming(ctx context.Context, engine *recording.Engine) (*transcription, *transcriber.Aggregator, error) {
	tokens, err := transcriber.NewTokenSource(p.config.Transcriber)
	if err != nil {
		return nil, nil, err
	}

	session := transcriber.NewRealtimeSession(p.config.Transcriber, tokens, p.config.Recording.SampleRate)
	if err := session.Start(ctx); err != nil {
		return nil, nil, err
	}

	agg := transcriber.NewAggregator(transcriber.SourceStreaming)
	t := &transcription{
		realtime: session,
		errCh:    session.Errors(),
		done:     make(chan struct{}),
	}

	// audio fan-in: every captured frame goes to the realtime socket
	frames := engine.Subscribe()
	go func() {
		for frame := range frames {
			// send errors surface through session.Errors()
			_ = session.SendFrame(frame.Data)
		}
	}()

	// segment fan-out: interim deltas and turn finals feed the aggregator
	go func() {
		for {
			select {
			case seg := <-session.Segments():
				if seg.Final {
					agg.AppendFinal(transcriber.SourceStreaming, seg.Text)
				} else {
					agg.SetInterim(transcriber.SourceStreaming, seg.Text)
				}
			case <-t.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return t, agg, nil
}

func (p *pipeline) startBatch(ctx context.Context, engine *recording.Engine) (*transcription, *transcriber.Aggregator, error) {
	adapter, err := transcriber.NewBatchAdapter(p.config.Transcriber)
	if err != nil {
		return nil, nil, err
	}

	batch := transcriber.NewBatchTranscriber(adapter, p.config.Transcriber,
		p.config.Recording.SampleRate, p.config.Recording.Channels)

	agg := transcriber.NewAggregator(transcriber.SourceBatch)
	batch.Run(ctx, engine.Slices(), agg)

	return &transcription{batch: batch, done: make(chan struct{})}, agg, nil
}

// errors returns the fatal-error stream of the active source. Batch mode has
// none; its failures surface from finalize.
func (t *transcription) errors() <-chan error {
	return t.errCh
}

// finalize turns the captured audio into the definitive transcript and fires
// the aggregator's completion event.
func (t *transcription) finalize(ctx context.Context, container recording.Container, agg *transcriber.Aggregator) error {
	if t.realtime != nil {
		// the server has seen all audio; close the socket, then promote
		// whatever was aggregated to the final transcript
		if err := t.realtime.Close(); err != nil {
			return err
		}
		t.doneOnce.Do(func() { close(t.done) })
		agg.Complete(transcriber.SourceStreaming)
		return nil
	}
	return t.batch.Finalize(ctx, container, agg)
}

// stop abandons the session without producing a transcript.
func (t *transcription) stop() {
	if t.realtime != nil {
		_ = t.realtime.Close()
		t.doneOnce.Do(func() { close(t.done) })
	}
}
