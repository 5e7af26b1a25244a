package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

func realtimeConfig(url string) Config {
	config := DefaultConfig()
	config.APIKey = "test-key"
	config.Streaming = true
	config.RealtimeURL = url
	config.SampleRate = 16000
	config.MaxRetries = 2
	config.RetryDelay = 20 * time.Millisecond
	return config
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// requireSessionUpdate reads the first client frame and fails unless it is
// the configuration message.
func requireSessionUpdate(t *testing.T, conn *websocket.Conn) sessionUpdateMsg {
	t.Helper()
	var update sessionUpdateMsg
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read configuration frame: %v", err)
	}
	if update.Type != "transcription_session.update" {
		t.Fatalf("first frame must be transcription_session.update, got %q", update.Type)
	}
	return update
}

func TestRealtimeConfigurationSentFirst(t *testing.T) {
	configured := make(chan sessionUpdateEntry, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		update := requireSessionUpdate(t, conn)
		configured <- update.Session

		conn.WriteJSON(map[string]string{"type": "transcription_session.created"})

		// keep the connection open until the client closes
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	config := realtimeConfig(wsURL(srv))
	session := NewRealtimeSession(config, StaticTokenSource{Key: "test-key"}, 16000)

	if session.State() != StateDisconnected {
		t.Fatalf("initial state should be disconnected, got %s", session.State())
	}

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	if session.State() != StateConnected {
		t.Errorf("state should be connected, got %s", session.State())
	}

	select {
	case entry := <-configured:
		if entry.InputAudioFormat != "pcm16" {
			t.Errorf("audio format should be pcm16, got %q", entry.InputAudioFormat)
		}
		if entry.TurnDetection.Type != "server_vad" {
			t.Errorf("turn detection should be server_vad, got %q", entry.TurnDetection.Type)
		}
		if entry.InputAudioTranscription.Language != "pt" {
			t.Errorf("language should be pt, got %q", entry.InputAudioTranscription.Language)
		}
		if entry.InputAudioNoiseRed == nil || entry.InputAudioNoiseRed.Type != "near_field" {
			t.Error("noise reduction profile missing")
		}
	case <-time.After(time.Second):
		t.Fatal("configuration frame never arrived")
	}
}

func TestRealtimeSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		requireSessionUpdate(t, conn)

		conn.WriteJSON(map[string]string{"type": "conversation.item.input_audio_transcription.delta", "delta": "dor"})
		conn.WriteJSON(map[string]string{"type": "conversation.item.input_audio_transcription.completed", "transcript": "dor lombar"})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	session := NewRealtimeSession(realtimeConfig(wsURL(srv)), StaticTokenSource{Key: "k"}, 16000)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	var got []Segment
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case seg := <-session.Segments():
			got = append(got, seg)
		case <-timeout:
			t.Fatalf("expected 2 segments, got %d", len(got))
		}
	}

	if got[0].Final || got[0].Text != "dor" {
		t.Errorf("first segment should be interim 'dor', got %+v", got[0])
	}
	if !got[1].Final || got[1].Text != "dor lombar" {
		t.Errorf("second segment should be final 'dor lombar', got %+v", got[1])
	}
}

func TestRealtimeReconnectAfterAbnormalClose(t *testing.T) {
	var connections atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connections.Add(1)
		requireSessionUpdate(t, conn)

		if n == 1 {
			// kill the TCP connection without a close frame; the client
			// observes an abnormal closure and must reconnect
			conn.Close()
			return
		}

		conn.WriteJSON(map[string]string{"type": "conversation.item.input_audio_transcription.completed", "transcript": "retomado sem perdas"})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}))
	defer srv.Close()

	session := NewRealtimeSession(realtimeConfig(wsURL(srv)), StaticTokenSource{Key: "k"}, 16000)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	select {
	case seg := <-session.Segments():
		if !seg.Final || seg.Text != "retomado sem perdas" {
			t.Errorf("expected final segment after reconnect, got %+v", seg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no segment after reconnect")
	}

	if n := connections.Load(); n != 2 {
		t.Errorf("expected exactly one reconnect (2 connections), got %d", n)
	}
	if session.State() != StateConnected {
		t.Errorf("state should be connected after reconnect, got %s", session.State())
	}
}

func TestRealtimeMaxRetriesExceeded(t *testing.T) {
	var connections atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if connections.Add(1) > 1 {
			// refuse reconnects so the retry budget is spent on dial failures
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		requireSessionUpdate(t, conn)
		conn.Close() // dies abnormally, triggering reconnection
	}))
	defer srv.Close()

	session := NewRealtimeSession(realtimeConfig(wsURL(srv)), StaticTokenSource{Key: "k"}, 16000)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-session.Errors():
			if strings.Contains(err.Error(), ErrMaxRetriesExceeded.Error()) {
				if session.State() != StateError {
					t.Errorf("state should be error, got %s", session.State())
				}
				// initial connection + MaxRetries reconnects
				if n := connections.Load(); n != 3 {
					t.Errorf("expected 3 connection attempts, got %d", n)
				}
				return
			}
		case <-deadline:
			t.Fatal("retry budget never escalated to error")
		}
	}
}

func TestRealtimeBenignCommitEmptyIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		requireSessionUpdate(t, conn)

		conn.WriteJSON(map[string]any{"type": "error", "error": map[string]string{"type": "invalid_request_error", "code": "input_audio_buffer.commit_empty", "message": "buffer empty"}})
		conn.WriteJSON(map[string]string{"type": "conversation.item.input_audio_transcription.completed", "transcript": "ok"})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	session := NewRealtimeSession(realtimeConfig(wsURL(srv)), StaticTokenSource{Key: "k"}, 16000)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	select {
	case seg := <-session.Segments():
		if seg.Text != "ok" {
			t.Errorf("expected segment after benign error, got %+v", seg)
		}
	case err := <-session.Errors():
		t.Fatalf("benign error should not surface: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("session stalled after benign error")
	}

	if session.State() != StateConnected {
		t.Errorf("benign error must not change state, got %s", session.State())
	}
}

func TestRealtimeFatalServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		requireSessionUpdate(t, conn)
		conn.WriteJSON(map[string]any{"type": "error", "error": map[string]string{"type": "server_error", "code": "session_expired", "message": "session expired"}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	session := NewRealtimeSession(realtimeConfig(wsURL(srv)), StaticTokenSource{Key: "k"}, 16000)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	select {
	case err := <-session.Errors():
		if !IsFatalError(err) {
			t.Errorf("server error should be fatal, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fatal error never surfaced")
	}

	if session.State() != StateError {
		t.Errorf("state should be error, got %s", session.State())
	}
}

func TestRealtimeSendFrame(t *testing.T) {
	frames := make(chan audioAppendMsg, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		requireSessionUpdate(t, conn)

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg audioAppendMsg
			if json.Unmarshal(raw, &msg) == nil && msg.Type == "input_audio_buffer.append" {
				frames <- msg
			}
		}
	}))
	defer srv.Close()

	config := realtimeConfig(wsURL(srv))
	config.SampleRate = 24000 // force the 16k -> 24k resample path
	session := NewRealtimeSession(config, StaticTokenSource{Key: "k"}, 16000)

	if err := session.SendFrame([]byte{0, 0}); err == nil {
		t.Error("send before start should fail")
	}

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer session.Close()

	pcm := make([]byte, 320) // 160 samples at 16kHz
	if err := session.SendFrame(pcm); err != nil {
		t.Fatalf("send frame: %v", err)
	}

	select {
	case msg := <-frames:
		if msg.Audio == "" {
			t.Error("audio payload should be base64 encoded")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never arrived")
	}
}

func TestRealtimeCloseFromAnyState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		requireSessionUpdate(t, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	session := NewRealtimeSession(realtimeConfig(wsURL(srv)), StaticTokenSource{Key: "k"}, 16000)

	// close before start is a no-op
	if err := session.Close(); err != nil {
		t.Errorf("close before start: %v", err)
	}

	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
	if session.State() != StateDisconnected {
		t.Errorf("session must end disconnected, got %s", session.State())
	}

	// segments channel drains and closes
	for range session.Segments() {
	}
}

func TestRealtimeAuthenticationFailure(t *testing.T) {
	config := realtimeConfig("ws://127.0.0.1:0")
	session := NewRealtimeSession(config, failingTokenSource{}, 16000)

	err := session.Start(context.Background())
	if err == nil {
		t.Fatal("start should fail when token fetch fails")
	}
	if !strings.Contains(err.Error(), ErrAuthenticationFailed.Error()) {
		t.Errorf("expected authentication failure, got %v", err)
	}
	if session.State() != StateError {
		t.Errorf("state should be error, got %s", session.State())
	}
}

type failingTokenSource struct{}

func (failingTokenSource) Token(ctx context.Context) (Token, error) {
	return Token{}, context.DeadlineExceeded
}

func TestResample16to24(t *testing.T) {
	input := make([]byte, 320) // 160 samples
	out := resample16to24(input)
	if len(out) != 480 { // 240 samples
		t.Errorf("expected 480 bytes, got %d", len(out))
	}

	if got := resample16to24([]byte{0x01}); len(got) != 1 {
		t.Errorf("sub-sample input should pass through, got %d bytes", len(got))
	}
}
