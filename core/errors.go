package orchestration

import "errors"

var (
	// ErrCapabilityUnavailable means the host has no usable speech
	// recognition, so only the passive path and manual activation are lost.
	ErrCapabilityUnavailable = errors.New("speech recognition is not available")
	// ErrRecognizerFailing means a recognizer kept ending faster than the
	// restart budget allows and was parked.
	ErrRecognizerFailing = errors.New("speech recognizer keeps failing")
	ErrTransport         = errors.New("transport failure")
	ErrSynthesis         = errors.New("speech synthesis failure")
	ErrPlayback          = errors.New("playback failure")
	ErrNoSession         = errors.New("no active session")
	ErrClosed            = errors.New("orchestrator is closed")
	ErrNotStarted        = errors.New("orchestrator is not started")
)
