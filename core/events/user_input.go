package events

const (
	// KindTranscriptUpdated identifies live transcript snapshots.
	KindTranscriptUpdated Kind = "user_input.transcript_updated"
	// KindUtteranceFlushed identifies an utterance handed to the transport.
	KindUtteranceFlushed Kind = "user_input.utterance_flushed"
	// KindUtteranceSendFailed identifies a rejected utterance.
	KindUtteranceSendFailed Kind = "user_input.utterance_send_failed"
)

// TranscriptUpdated carries the accumulated, not yet flushed utterance.
type TranscriptUpdated struct {
	Base
	Transcript string
}

// NewTranscriptUpdated creates a transcript updated event.
func NewTranscriptUpdated(transcript string) TranscriptUpdated {
	return TranscriptUpdated{Base: NewBase(KindTranscriptUpdated), Transcript: transcript}
}

// UtteranceFlushed carries the flushed text and why it was flushed
// ("timeout" or "manual").
type UtteranceFlushed struct {
	Base
	SessionID string
	Text      string
	Reason    string
}

// NewUtteranceFlushed creates an utterance flushed event.
func NewUtteranceFlushed(sessionID, text, reason string) UtteranceFlushed {
	return UtteranceFlushed{Base: NewBase(KindUtteranceFlushed), SessionID: sessionID, Text: text, Reason: reason}
}

// UtteranceSendFailed carries the utterance the transport did not accept.
type UtteranceSendFailed struct {
	Base
	SessionID string
	Text      string
	Err       error
}

// NewUtteranceSendFailed creates an utterance send failed event.
func NewUtteranceSendFailed(sessionID, text string, err error) UtteranceSendFailed {
	return UtteranceSendFailed{Base: NewBase(KindUtteranceSendFailed), SessionID: sessionID, Text: text, Err: err}
}
