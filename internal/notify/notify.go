package notify

import (
	"fmt"
	"log"
	"os/exec"
)

// Notifier is the encounter lifecycle notification boundary. Implementations
// must never block the pipeline.
type Notifier interface {
	RecordingChanged(on bool)
	Transcribing()
	Generating()
	DocumentsReady(count int)
	Error(msg string)
}

// New returns the notifier for the configured type. Unknown or empty types
// fall back to Nop.
func New(kind string) Notifier {
	switch kind {
	case "desktop":
		return Desktop{}
	case "log":
		return Log{}
	default:
		return Nop{}
	}
}

type Desktop struct{}

func (Desktop) RecordingChanged(on bool) {
	state := "Gravação encerrada"
	if on {
		state = "Gravando consulta"
	}
	send(state, false)
}

func (Desktop) Transcribing() {
	send("Transcrevendo consulta...", false)
}

func (Desktop) Generating() {
	send("Gerando documentos clínicos...", false)
}

func (Desktop) DocumentsReady(count int) {
	send(fmt.Sprintf("%d documentos prontos", count), false)
}

func (Desktop) Error(msg string) {
	send(msg, true)
}

func send(msg string, critical bool) {
	args := []string{"-a", "Escriba"}
	if critical {
		args = append(args, "-u", "critical")
	}
	args = append(args, msg)
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Printf("notify: failed to send notification: %v", err)
	}
}

// Log writes notifications to the daemon log, for headless sessions.
type Log struct{}

func (Log) RecordingChanged(on bool) {
	if on {
		log.Printf("notify: recording started")
	} else {
		log.Printf("notify: recording stopped")
	}
}

func (Log) Transcribing()            { log.Printf("notify: transcribing") }
func (Log) Generating()              { log.Printf("notify: generating documents") }
func (Log) DocumentsReady(count int) { log.Printf("notify: %d documents ready", count) }
func (Log) Error(msg string)         { log.Printf("notify: error: %s", msg) }

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) RecordingChanged(on bool) {}
func (Nop) Transcribing()            {}
func (Nop) Generating()              {}
func (Nop) DocumentsReady(count int) {}
func (Nop) Error(msg string)         {}
