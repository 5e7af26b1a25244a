package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// State is the lifecycle state of an audio session.
type State string

const (
	Idle      State = "idle"
	Acquiring State = "acquiring"
	Recording State = "recording"
	Stopped   State = "stopped"
	Errored   State = "error"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no audio device available")
	ErrNoAudioCaptured   = errors.New("no audio captured")
)

// Frame is one raw PCM read from the capture device.
type Frame struct {
	Data      []byte
	Timestamp time.Time
}

// Slice is a periodic batch of accumulated audio, emitted while recording so
// batch transcription can run on partial audio before Stop.
type Slice struct {
	Data      []byte
	Timestamp time.Time
}

// Container is the finalized recording, emitted exactly once on Stop.
type Container struct {
	WAV      []byte
	Duration time.Duration
	Started  time.Time
}

type Config struct {
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
	SliceInterval     time.Duration
	EchoCancellation  bool
	NoiseSuppression  bool
	AutoGainControl   bool
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16",
		BufferSize:        8192,
		Device:            "",
		ChannelBufferSize: 30,
		SliceInterval:     500 * time.Millisecond,
		EchoCancellation:  true,
		NoiseSuppression:  true,
		AutoGainControl:   true,
	}
}

// Engine owns the microphone device for the duration of one session. At most
// one session is live per engine; Start while recording is a coalesced no-op.
type Engine struct {
	config Config

	mu          sync.Mutex // guards state, cmd, cancel, subscribers
	state       State
	cmd         *exec.Cmd
	cancel      context.CancelFunc
	subscribers []chan Frame

	sliceCh     chan Slice
	containerCh chan Container
	errCh       chan error

	bufMu    sync.Mutex // guards captured and pending
	captured []byte     // everything since Start, for the finalized container
	pending  []byte     // audio since the last slice

	started   time.Time
	finalize  sync.Once
	cleanOnce sync.Once

	wg sync.WaitGroup
}

func NewEngine(config Config) *Engine {
	return &Engine{
		config:      config,
		state:       Idle,
		sliceCh:     make(chan Slice, 8),
		containerCh: make(chan Container, 1),
		errCh:       make(chan error, 1),
	}
}

func NewDefaultEngine() *Engine { return NewEngine(DefaultConfig()) }

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe registers a frame consumer. Must be called before Start; frames
// are delivered best-effort and dropped under backpressure.
func (e *Engine) Subscribe() <-chan Frame {
	ch := make(chan Frame, e.config.ChannelBufferSize)
	e.mu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.mu.Unlock()
	return ch
}

// Slices returns the channel of periodic partial-audio batches.
func (e *Engine) Slices() <-chan Slice { return e.sliceCh }

// Finalized returns the channel carrying the finalized container. At most one
// value is ever sent per session.
func (e *Engine) Finalized() <-chan Container { return e.containerCh }

// Errors returns the channel of capture errors.
func (e *Engine) Errors() <-chan error { return e.errCh }

// Start acquires the microphone and begins emitting frames. Calling Start
// while a session is already live is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == Recording || e.state == Acquiring {
		e.mu.Unlock()
		log.Printf("recording: start ignored, session already %s", e.state)
		return nil
	}
	e.state = Acquiring
	e.mu.Unlock()

	if err := e.config.validate(); err != nil {
		e.setState(Errored)
		return err
	}

	if err := CheckPipeWireAvailable(ctx); err != nil {
		e.setState(Errored)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.cancel = cancel
	e.state = Recording
	e.mu.Unlock()

	e.bufMu.Lock()
	e.captured = nil
	e.pending = nil
	e.bufMu.Unlock()

	e.started = time.Now()
	e.finalize = sync.Once{}
	e.cleanOnce = sync.Once{}

	e.wg.Add(1)
	go e.captureLoop(sessionCtx)

	log.Printf("recording: session started, rate=%d channels=%d", e.config.SampleRate, e.config.Channels)
	return nil
}

// Stop ends the session, flushes buffered audio into a finalized WAV container
// and emits it exactly once. Zero captured bytes reports ErrNoAudioCaptured
// instead of producing an empty artifact. Stop when not recording logs and
// no-ops.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != Recording {
		state := e.state
		e.mu.Unlock()
		log.Printf("recording: stop ignored, session is %s", state)
		return nil
	}
	cancel := e.cancel
	e.cancel = nil
	e.state = Stopped
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	var err error
	e.finalize.Do(func() {
		e.bufMu.Lock()
		data := e.captured
		e.captured = nil
		e.bufMu.Unlock()

		if len(data) == 0 {
			err = ErrNoAudioCaptured
			return
		}

		wav := EncodeWAV(data, e.config.SampleRate, e.config.Channels)
		e.containerCh <- Container{
			WAV:      wav,
			Duration: pcmDuration(len(data), e.config.SampleRate, e.config.Channels),
			Started:  e.started,
		}
		log.Printf("recording: session stopped, %d bytes captured", len(data))
	})
	return err
}

// Cleanup tears down every acquired resource. Idempotent and callable in any
// state; must run on every exit path.
func (e *Engine) Cleanup() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	if e.state == Recording || e.state == Acquiring {
		e.state = Stopped
	}
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()

	e.cleanOnce.Do(func() {
		e.mu.Lock()
		subs := e.subscribers
		e.subscribers = nil
		e.mu.Unlock()
		for _, ch := range subs {
			close(ch)
		}
		close(e.sliceCh)
		log.Printf("recording: cleanup complete")
	})
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

func (e *Engine) captureLoop(ctx context.Context) {
	defer func() {
		e.mu.Lock()
		if e.cmd != nil {
			_ = e.cmd.Wait()
			e.cmd = nil
		}
		e.mu.Unlock()
		e.wg.Done()
	}()

	args := e.buildPwRecordArgs()
	cmd := exec.CommandContext(ctx, "pw-record", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.fail(fmt.Errorf("create stdout pipe: %w", err))
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.fail(fmt.Errorf("create stderr pipe: %w", err))
		return
	}

	e.mu.Lock()
	e.cmd = cmd
	e.mu.Unlock()

	if err := cmd.Start(); err != nil {
		e.fail(fmt.Errorf("%w: start pw-record: %v", ErrDeviceUnavailable, err))
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			log.Printf("recording stderr: %s", line)
			if isPermissionLine(line) {
				e.emitErr(fmt.Errorf("%w: %s", ErrPermissionDenied, line))
			}
		}
	}()

	sliceTicker := time.NewTicker(e.config.SliceInterval)
	defer sliceTicker.Stop()

	buffer := make([]byte, e.config.BufferSize)
	var droppedCount int
	lastDropLog := time.Now()

	for {
		select {
		case <-sliceTicker.C:
			e.flushSlice()
		default:
		}

		n, readErr := stdout.Read(buffer)
		if n > 0 {
			frameData := make([]byte, n)
			copy(frameData, buffer[:n])
			now := time.Now()

			e.bufMu.Lock()
			e.captured = append(e.captured, frameData...)
			e.pending = append(e.pending, frameData...)
			e.bufMu.Unlock()

			frame := Frame{Data: frameData, Timestamp: now}
			e.mu.Lock()
			subs := e.subscribers
			e.mu.Unlock()
			for _, ch := range subs {
				select {
				case ch <- frame:
				default:
					droppedCount++
					if time.Since(lastDropLog) > time.Second {
						log.Printf("recording: dropped %d frames due to backpressure", droppedCount)
						lastDropLog = time.Now()
						droppedCount = 0
					}
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				e.flushSlice()
				return
			}
			select {
			case <-ctx.Done():
				e.flushSlice()
				return
			default:
			}
			e.fail(fmt.Errorf("read audio: %w", readErr))
			return
		}

		select {
		case <-ctx.Done():
			e.flushSlice()
			return
		default:
		}
	}
}

// flushSlice emits the audio accumulated since the previous slice.
func (e *Engine) flushSlice() {
	e.bufMu.Lock()
	if len(e.pending) == 0 {
		e.bufMu.Unlock()
		return
	}
	data := make([]byte, len(e.pending))
	copy(data, e.pending)
	e.pending = e.pending[:0]
	e.bufMu.Unlock()

	select {
	case e.sliceCh <- Slice{Data: data, Timestamp: time.Now()}:
	default:
		log.Printf("recording: slice dropped, consumer not keeping up")
	}
}

func (e *Engine) fail(err error) {
	e.emitErr(err)
	e.setState(Errored)
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) emitErr(err error) {
	select {
	case e.errCh <- err:
	default:
		// Best-effort; avoid blocking
	}
	log.Printf("recording error: %v", err)
}

func (e *Engine) buildPwRecordArgs() []string {
	args := []string{
		"--format", e.config.Format + "le",
		"--rate", strconv.Itoa(e.config.SampleRate),
		"--channels", strconv.Itoa(e.config.Channels),
	}
	if props := e.buildStreamProperties(); props != "" {
		args = append(args, "--properties", props)
	}
	if e.config.Device != "" {
		args = append(args, "--target", e.config.Device)
	}
	args = append(args, "-") // stdout
	return args
}

// buildStreamProperties maps the capture processing options onto PipeWire
// stream properties.
func (e *Engine) buildStreamProperties() string {
	var props []string
	if e.config.EchoCancellation {
		props = append(props, "filter.echo-cancel=true")
	}
	if e.config.NoiseSuppression {
		props = append(props, "filter.noise-suppression=true")
	}
	if e.config.AutoGainControl {
		props = append(props, "filter.auto-gain=true")
	}
	return strings.Join(props, " ")
}

func isPermissionLine(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "permission denied") || strings.Contains(lower, "access denied")
}

func pcmDuration(byteLen, sampleRate, channels int) time.Duration {
	bytesPerSecond := sampleRate * channels * 2 // s16le
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(float64(byteLen) / float64(bytesPerSecond) * float64(time.Second))
}

func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "pw-cli", "info")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}

func (c Config) validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", c.Channels)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", c.BufferSize)
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", c.ChannelBufferSize)
	}
	if c.SliceInterval <= 0 {
		return fmt.Errorf("invalid SliceInterval: %v", c.SliceInterval)
	}
	if c.Format == "" {
		return fmt.Errorf("invalid Format: empty")
	}
	return nil
}
