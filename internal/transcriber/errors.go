package transcriber

import "errors"

var (
	ErrTranscriptionFailed  = errors.New("transcription failed")
	ErrEmptyTranscript      = errors.New("empty transcript")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrHandshakeFailed      = errors.New("handshake failed")
	ErrMaxRetriesExceeded   = errors.New("max reconnect retries exceeded")
)

// FatalError marks an error as non-recoverable for the current session.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	if e == nil || e.Err == nil {
		return "fatal transcription error"
	}
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewFatalError(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

func IsFatalError(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
