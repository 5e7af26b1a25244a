package transcriber

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// SessionState is the realtime session lifecycle state.
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateConnecting   SessionState = "connecting"
	StateConnected    SessionState = "connected"
	StateError        SessionState = "error"
)

// outgoing frames
type sessionUpdateMsg struct {
	Type    string             `json:"type"`
	Session sessionUpdateEntry `json:"session"`
}

type sessionUpdateEntry struct {
	InputAudioFormat        string               `json:"input_audio_format"`
	InputAudioTranscription transcriptionConfig  `json:"input_audio_transcription"`
	TurnDetection           turnDetectionConfig  `json:"turn_detection"`
	InputAudioNoiseRed      *noiseReductionEntry `json:"input_audio_noise_reduction,omitempty"`
}

type transcriptionConfig struct {
	Model    string `json:"model,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Language string `json:"language,omitempty"`
}

type turnDetectionConfig struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
}

type noiseReductionEntry struct {
	Type string `json:"type"`
}

type audioAppendMsg struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// incoming frames
type serverEvent struct {
	Type       string            `json:"type"`
	EventID    string            `json:"event_id,omitempty"`
	ItemID     string            `json:"item_id,omitempty"`
	Transcript string            `json:"transcript,omitempty"`
	Delta      string            `json:"delta,omitempty"`
	Error      *serverEventError `json:"error,omitempty"`
}

type serverEventError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

const benignErrorCode = "input_audio_buffer.commit_empty"

// retryableCloseCodes are the abnormal closures that trigger automatic
// reconnection. Anything else surfaces the error state immediately.
var retryableCloseCodes = map[int]bool{
	websocket.CloseAbnormalClosure:   true, // 1006
	websocket.CloseInternalServerErr: true, // 1011
	websocket.CloseServiceRestart:    true, // 1012
	websocket.CloseTryAgainLater:     true, // 1013
}

// RealtimeSession is a stateful client for the bidirectional streaming
// transcription protocol. It encodes live audio frames, manages the
// connection lifecycle including bounded reconnection, and surfaces
// incremental and final transcript segments.
type RealtimeSession struct {
	config    Config
	tokens    TokenSource
	inputRate int

	mu      sync.Mutex // guards state, conn, token, started
	state   SessionState
	conn    *websocket.Conn
	token   Token
	started bool

	segments chan Segment
	errCh    chan error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRealtimeSession creates a session for audio captured at inputRate Hz.
func NewRealtimeSession(config Config, tokens TokenSource, inputRate int) *RealtimeSession {
	return &RealtimeSession{
		config:    config,
		tokens:    tokens,
		inputRate: inputRate,
		state:     StateDisconnected,
		segments:  make(chan Segment, 100),
		errCh:     make(chan error, 4),
	}
}

func (s *RealtimeSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Segments returns the incremental and final transcript stream. The channel
// closes when the session ends.
func (s *RealtimeSession) Segments() <-chan Segment { return s.segments }

// Errors returns session-level failures that were not recovered internally.
func (s *RealtimeSession) Errors() <-chan error { return s.errCh }

// Start transitions disconnected -> connecting -> connected: it fetches or
// reuses a non-expired token, opens the transport and sends the one
// configuration frame before any audio.
func (s *RealtimeSession) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("session already started")
	}
	s.mu.Unlock()

	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.connect(); err != nil {
		s.setState(StateError)
		s.cancel()
		return err
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop()

	log.Printf("realtime: connected, model=%s language=%s", s.config.Model, s.config.Language)
	return nil
}

// connect performs one connection attempt: token, dial, configuration frame.
func (s *RealtimeSession) connect() error {
	s.setState(StateConnecting)

	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token.Expired() {
		fetched, err := s.tokens.Token(s.ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		token = fetched
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token.Value)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(s.ctx, s.config.RealtimeURL, headers)
	if err != nil {
		if resp != nil {
			log.Printf("realtime: dial failed with status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return fmt.Errorf("%w: status %d", ErrAuthenticationFailed, resp.StatusCode)
			}
		}
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	if err := s.configureSession(conn); err != nil {
		conn.Close()
		return fmt.Errorf("%w: configure session: %v", ErrHandshakeFailed, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()
	return nil
}

// configureSession sends the single transcription_session.update frame that
// declares audio format, language, VAD thresholds and noise reduction. It is
// always the first frame on a new connection.
func (s *RealtimeSession) configureSession(conn *websocket.Conn) error {
	update := sessionUpdateMsg{
		Type: "transcription_session.update",
		Session: sessionUpdateEntry{
			InputAudioFormat: "pcm16",
			InputAudioTranscription: transcriptionConfig{
				Model:    s.config.Model,
				Prompt:   s.config.Prompt,
				Language: s.config.Language,
			},
			TurnDetection: turnDetectionConfig{
				Type:              "server_vad",
				Threshold:         s.config.VADThreshold,
				PrefixPaddingMs:   s.config.PrefixPaddingMs,
				SilenceDurationMs: s.config.SilenceDurationMs,
			},
		},
	}
	if s.config.NoiseReduction != "" {
		update.Session.InputAudioNoiseRed = &noiseReductionEntry{Type: s.config.NoiseReduction}
	}
	return conn.WriteJSON(update)
}

// reconnect re-enters connecting with a fixed back-off delay, bounded by the
// retry budget. The cached token is reused while unexpired. Returns false
// once the budget is exhausted.
func (s *RealtimeSession) reconnect() bool {
	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(s.config.RetryDelay):
		}

		log.Printf("realtime: reconnect attempt %d/%d", attempt, s.config.MaxRetries)

		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()

		if err := s.connect(); err == nil {
			log.Printf("realtime: reconnected")
			return true
		} else {
			log.Printf("realtime: reconnect failed: %v", err)
		}
	}
	return false
}

func (s *RealtimeSession) readLoop() {
	defer s.wg.Done()
	defer close(s.segments)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		if conn == nil {
			if !s.escalateOrReconnect(fmt.Errorf("connection lost")) {
				return
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			if closeErr, ok := err.(*websocket.CloseError); ok {
				switch {
				case closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway:
					log.Printf("realtime: server closed session normally")
					s.setState(StateDisconnected)
					return
				case !retryableCloseCodes[closeErr.Code]:
					s.fail(NewFatalError(fmt.Errorf("abnormal close %d: %s", closeErr.Code, closeErr.Text)))
					return
				}
			}

			log.Printf("realtime: read error: %v, attempting reconnection", err)
			if !s.escalateOrReconnect(err) {
				return
			}
			continue
		}

		var event serverEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Printf("realtime: parse error: %v", err)
			continue
		}
		s.handleEvent(event)
	}
}

// escalateOrReconnect runs the bounded reconnect loop and escalates to the
// error state with ErrMaxRetriesExceeded when the budget is spent.
func (s *RealtimeSession) escalateOrReconnect(cause error) bool {
	if s.reconnect() {
		return true
	}
	select {
	case <-s.ctx.Done():
		return false
	default:
	}
	s.fail(fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExceeded, s.config.MaxRetries, cause))
	return false
}

func (s *RealtimeSession) handleEvent(event serverEvent) {
	switch event.Type {
	case "transcription_session.created", "transcription_session.updated":
		log.Printf("realtime: %s", event.Type)

	case "input_audio_buffer.speech_started":
		log.Printf("realtime: speech started")

	case "input_audio_buffer.speech_stopped":
		log.Printf("realtime: speech stopped, item=%s", event.ItemID)

	case "input_audio_buffer.committed":
		// server committed a turn; transcript events follow

	case "conversation.item.input_audio_transcription.delta":
		if event.Delta != "" {
			s.emit(Segment{Text: event.Delta, Final: false, Timestamp: time.Now()})
		}

	case "conversation.item.input_audio_transcription.completed":
		if event.Transcript != "" {
			log.Printf("realtime: turn completed: %q", event.Transcript)
			s.emit(Segment{Text: event.Transcript, Final: true, Timestamp: time.Now()})
		}

	case "conversation.item.input_audio_transcription.failed":
		if event.Error != nil {
			s.emitErr(fmt.Errorf("%w: %s", ErrTranscriptionFailed, event.Error.Message))
		}

	case "error":
		if event.Error == nil {
			return
		}
		if event.Error.Code == benignErrorCode {
			log.Printf("realtime: benign server error: %s", event.Error.Code)
			return
		}
		msg := event.Error.Message
		if event.Error.Code != "" {
			msg = fmt.Sprintf("%s: %s", event.Error.Code, msg)
		}
		s.fail(NewFatalError(fmt.Errorf("server error: %s", msg)))

	case "rate_limits.updated":
		// ignored

	default:
		log.Printf("realtime: unhandled event type: %s", event.Type)
	}
}

// SendFrame forwards one captured PCM frame, resampled to the protocol rate
// and base64-encoded.
func (s *RealtimeSession) SendFrame(pcm []byte) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("session not started")
	}
	conn := s.conn
	s.mu.Unlock()

	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	if conn == nil {
		return fmt.Errorf("no connection")
	}

	if s.inputRate == 16000 && s.config.SampleRate == 24000 {
		pcm = resample16to24(pcm)
	}

	msg := audioAppendMsg{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	}

	s.mu.Lock()
	conn = s.conn
	var err error
	if conn != nil {
		err = conn.WriteJSON(msg)
	} else {
		err = fmt.Errorf("no connection")
	}
	s.mu.Unlock()

	if err != nil {
		// the read loop owns reconnection; dropping one frame is acceptable
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close ends the session from any state: close the transport with a normal
// closure code, cancel any pending reconnect wait and leave the session
// disconnected.
func (s *RealtimeSession) Close() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}

	s.wg.Wait()
	s.setState(StateDisconnected)
	log.Printf("realtime: closed")
	return nil
}

func (s *RealtimeSession) fail(err error) {
	s.setState(StateError)
	s.emitErr(err)
}

func (s *RealtimeSession) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *RealtimeSession) emit(seg Segment) {
	select {
	case s.segments <- seg:
	default:
		log.Printf("realtime: segment dropped, consumer not keeping up")
	}
}

func (s *RealtimeSession) emitErr(err error) {
	select {
	case s.errCh <- err:
	default:
	}
	log.Printf("realtime error: %v", err)
}

// resample16to24 converts 16kHz PCM16 audio to 24kHz using linear
// interpolation.
func resample16to24(input []byte) []byte {
	if len(input) < 2 {
		return input
	}

	numInputSamples := len(input) / 2
	numOutputSamples := (numInputSamples * 3) / 2

	output := make([]byte, numOutputSamples*2)

	for i := 0; i < numOutputSamples; i++ {
		srcPos := float64(i) * 16.0 / 24.0
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		var sample1, sample2 int16
		if srcIdx*2+1 < len(input) {
			sample1 = int16(input[srcIdx*2]) | (int16(input[srcIdx*2+1]) << 8)
		}
		if (srcIdx+1)*2+1 < len(input) {
			sample2 = int16(input[(srcIdx+1)*2]) | (int16(input[(srcIdx+1)*2+1]) << 8)
		} else {
			sample2 = sample1
		}

		outSample := int16(float64(sample1)*(1-frac) + float64(sample2)*frac)

		output[i*2] = byte(outSample)
		output[i*2+1] = byte(outSample >> 8)
	}

	return output
}
