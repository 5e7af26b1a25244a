package transcriber

import (
	"log"
	"strings"
	"sync"
)

// Aggregator is the single authority for the current transcript text of one
// recording session. Exactly one source is active per session; pushes from
// the other source are ignored. A final result is sticky: later interim
// segments no longer change the transcript, and exactly one completion event
// fires per session.
type Aggregator struct {
	active SourceKind

	mu        sync.Mutex
	transcript strings.Builder // confirmed (final) text
	interim    string          // provisional tail, replaced not appended
	finalized  bool            // a session-level final result has been set
	completed  bool

	completeCh chan string
}

func NewAggregator(active SourceKind) *Aggregator {
	return &Aggregator{
		active:     active,
		completeCh: make(chan string, 1),
	}
}

// ActiveSource returns the source this session's aggregator listens to.
func (a *Aggregator) ActiveSource() SourceKind { return a.active }

// Current returns the transcript as the user should see it right now:
// confirmed text plus any provisional tail.
func (a *Aggregator) Current() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.interim == "" {
		return a.transcript.String()
	}
	if a.transcript.Len() == 0 {
		return a.interim
	}
	return a.transcript.String() + " " + a.interim
}

// Done delivers the final transcript exactly once per session.
func (a *Aggregator) Done() <-chan string { return a.completeCh }

// SetInterim replaces the provisional tail. Ignored after a final result and
// from the inactive source.
func (a *Aggregator) SetInterim(src SourceKind, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if src != a.active {
		log.Printf("aggregator: interim from inactive source %s ignored", src)
		return
	}
	if a.finalized {
		return
	}
	a.interim = strings.TrimSpace(text)
}

// AppendFinal folds one confirmed segment into the growing transcript and
// clears the provisional tail. Used by the streaming source, which confirms
// one turn at a time.
func (a *Aggregator) AppendFinal(src SourceKind, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if src != a.active {
		log.Printf("aggregator: final segment from inactive source %s ignored", src)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if a.transcript.Len() > 0 {
		a.transcript.WriteString(" ")
	}
	a.transcript.WriteString(text)
	a.interim = ""
}

// SetFinal replaces the whole transcript with a session-level final result.
// Used by the batch source, whose last submission covers all captured audio.
// Re-setting is allowed (a retried final submission wins) but never fires a
// second completion event.
func (a *Aggregator) SetFinal(src SourceKind, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if src != a.active {
		log.Printf("aggregator: final from inactive source %s ignored", src)
		return
	}
	a.transcript.Reset()
	a.transcript.WriteString(strings.TrimSpace(text))
	a.interim = ""
	a.finalized = true
}

// Complete raises the transcription-complete event carrying the final text.
// At most one event fires per session; it is the sole trigger for document
// generation. Returns whether this call fired it.
func (a *Aggregator) Complete(src SourceKind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if src != a.active {
		log.Printf("aggregator: completion from inactive source %s ignored", src)
		return false
	}
	if a.completed {
		return false
	}
	a.completed = true
	a.finalized = true
	a.completeCh <- a.transcript.String()
	return true
}
