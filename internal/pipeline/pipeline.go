package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/brunovale/escriba/internal/docgen"
	"github.com/brunovale/escriba/internal/history"
	"github.com/brunovale/escriba/internal/notify"
	"github.com/brunovale/escriba/internal/recording"
	"github.com/brunovale/escriba/internal/transcriber"
)

type Status string
type Action string

const (
	Idle         Status = "idle"
	Recording    Status = "recording"
	Transcribing Status = "transcribing"
	Generating   Status = "generating"
)

const (
	Finish Action = "finish"
	Cancel Action = "cancel"
)

// Result is the outcome of one finished encounter.
type Result struct {
	Transcript string
	Outcomes   []docgen.Outcome
	Err        error
}

// Config carries everything one encounter session needs. Store and Notifier
// are optional.
type Config struct {
	Recording   recording.Config
	Transcriber transcriber.Config
	Generator   *docgen.Pipeline
	Documents   []docgen.DocumentType
	Store       *history.Store
	Notifier    notify.Notifier

	Patient        string
	ReviewRequired bool
	UseHistory     bool

	// SessionTimeout bounds a whole encounter, recording included.
	SessionTimeout time.Duration
}

type Pipeline interface {
	Run(ctx context.Context)
	Stop()
	Status() Status
	Level() float64
	Actions() chan<- Action
	Results() <-chan Result
}

type pipeline struct {
	mu     sync.RWMutex
	status Status
	level  float64

	config   Config
	actionCh chan Action
	resultCh chan Result
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func New(config Config) Pipeline {
	if config.Notifier == nil {
		config.Notifier = notify.Nop{}
	}
	if config.SessionTimeout <= 0 {
		config.SessionTimeout = 2 * time.Hour
	}
	return &pipeline{
		status:   Idle,
		config:   config,
		actionCh: make(chan Action, 1),
		resultCh: make(chan Result, 1),
	}
}

func (p *pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *pipeline) setStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// Level reports the latest normalized microphone loudness, 0 outside of
// recording.
func (p *pipeline) Level() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

func (p *pipeline) trackLevel(levels <-chan float64) {
	for lv := range levels {
		p.mu.Lock()
		p.level = lv
		p.mu.Unlock()
	}
	p.mu.Lock()
	p.level = 0
	p.mu.Unlock()
}

func (p *pipeline) Actions() chan<- Action { return p.actionCh }

func (p *pipeline) Results() <-chan Result { return p.resultCh }

func (p *pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *pipeline) Run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, p.config.SessionTimeout)
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(runCtx)
}

func (p *pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	defer p.setStatus(Idle)

	engine := recording.NewEngine(p.config.Recording)
	defer engine.Cleanup()

	if err := engine.Start(ctx); err != nil {
		log.Printf("pipeline: recording start failed: %v", err)
		p.config.Notifier.Error("Não foi possível iniciar a gravação")
		p.finish(Result{Err: err})
		return
	}
	p.setStatus(Recording)
	p.config.Notifier.RecordingChanged(true)

	monitor := recording.NewLevelMonitor()
	go monitor.Run(engine.Subscribe())
	go p.trackLevel(monitor.Levels())

	session, agg, err := p.startTranscription(ctx, engine)
	if err != nil {
		log.Printf("pipeline: transcription start failed: %v", err)
		p.config.Notifier.Error("Não foi possível iniciar a transcrição")
		p.finish(Result{Err: err})
		return
	}

	for {
		select {
		case action := <-p.actionCh:
			switch action {
			case Finish:
				p.finishEncounter(ctx, engine, session, agg)
				return
			case Cancel:
				log.Printf("pipeline: encounter cancelled")
				session.stop()
				p.config.Notifier.RecordingChanged(false)
				p.finish(Result{Err: context.Canceled})
				return
			}

		case err := <-engine.Errors():
			if err != nil {
				log.Printf("pipeline: recording error: %v", err)
				p.config.Notifier.Error("Falha na captura de áudio")
				session.stop()
				p.finish(Result{Err: err})
				return
			}

		case err := <-session.errors():
			if err != nil && (transcriber.IsFatalError(err) || errors.Is(err, transcriber.ErrMaxRetriesExceeded)) {
				log.Printf("pipeline: transcription failed: %v", err)
				p.config.Notifier.Error("Falha na transcrição")
				session.stop()
				p.finish(Result{Err: err})
				return
			}
			if err != nil {
				log.Printf("pipeline: transcription warning: %v", err)
			}

		case <-ctx.Done():
			log.Printf("pipeline: context cancelled, stopping")
			session.stop()
			return
		}
	}
}

// finishEncounter drains the recorder, completes the transcript and runs
// document generation.
func (p *pipeline) finishEncounter(ctx context.Context, engine *recording.Engine, session *transcription, agg *transcriber.Aggregator) {
	p.setStatus(Transcribing)
	p.config.Notifier.RecordingChanged(false)
	p.config.Notifier.Transcribing()

	if err := engine.Stop(); err != nil {
		if errors.Is(err, recording.ErrNoAudioCaptured) {
			log.Printf("pipeline: nothing recorded")
			p.config.Notifier.Error("Nenhum áudio capturado")
			p.finish(Result{Err: err})
			return
		}
		log.Printf("pipeline: recorder stop failed: %v", err)
		p.finish(Result{Err: err})
		return
	}

	var container recording.Container
	select {
	case container = <-engine.Finalized():
	case <-ctx.Done():
		return
	}

	if err := session.finalize(ctx, container, agg); err != nil {
		log.Printf("pipeline: transcript finalize failed: %v", err)
		p.config.Notifier.Error("Falha ao concluir a transcrição")
		p.finish(Result{Err: err})
		return
	}

	var transcript string
	select {
	case transcript = <-agg.Done():
	case <-ctx.Done():
		return
	}

	p.setStatus(Generating)
	p.config.Notifier.Generating()

	req := docgen.Request{
		Transcript:     transcript,
		ReviewRequired: p.config.ReviewRequired,
		Patient:        p.config.Patient,
		UseHistory:     p.config.UseHistory,
	}
	outcomes := p.config.Generator.GenerateAll(ctx, req, p.config.Documents)

	ready := 0
	for _, o := range outcomes {
		if o.Err == nil {
			ready++
		}
	}
	p.config.Notifier.DocumentsReady(ready)

	p.persist(ctx, transcript, outcomes)
	p.finish(Result{Transcript: transcript, Outcomes: outcomes})
}

// persist records the finished encounter so later visits can load it as
// history. Persistence failures are logged, never fatal.
func (p *pipeline) persist(ctx context.Context, transcript string, outcomes []docgen.Outcome) {
	if p.config.Store == nil {
		return
	}

	enc := history.Encounter{
		PatientID:  p.config.Patient,
		Transcript: transcript,
	}
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		switch o.Type {
		case docgen.Summary:
			enc.Summary = o.Artifact.Text
		case docgen.ClinicalNote:
			enc.ClinicalNote = o.Artifact.Text
		case docgen.Prescription:
			enc.Prescription = o.Artifact.Text
		case docgen.StructuredData:
			if o.Artifact.StructuredPayload != nil {
				if data, err := json.Marshal(o.Artifact.StructuredPayload); err == nil {
					enc.StructuredJSON = string(data)
				}
			}
		}
	}

	if err := p.config.Store.Save(ctx, enc); err != nil {
		log.Printf("pipeline: failed to persist encounter: %v", err)
	}
}

func (p *pipeline) finish(r Result) {
	select {
	case p.resultCh <- r:
	default:
	}
}
