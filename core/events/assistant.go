package events

const (
	// KindAwaitingResponseChanged identifies the awaiting-response flag.
	KindAwaitingResponseChanged Kind = "assistant_response.awaiting_changed"
	// KindPlaybackStarted identifies the start of assistant speech playback.
	KindPlaybackStarted Kind = "assistant_playback.started"
	// KindPlaybackEnded identifies the end of assistant speech playback.
	KindPlaybackEnded Kind = "assistant_playback.ended"
)

// AwaitingResponseChanged reports whether an utterance is waiting for the
// assistant to speak.
type AwaitingResponseChanged struct {
	Base
	Awaiting bool
}

// NewAwaitingResponseChanged creates an awaiting response changed event.
func NewAwaitingResponseChanged(awaiting bool) AwaitingResponseChanged {
	return AwaitingResponseChanged{Base: NewBase(KindAwaitingResponseChanged), Awaiting: awaiting}
}

// PlaybackStarted carries the text being spoken.
type PlaybackStarted struct {
	Base
	Text string
}

// NewPlaybackStarted creates a playback started event.
func NewPlaybackStarted(text string) PlaybackStarted {
	return PlaybackStarted{Base: NewBase(KindPlaybackStarted), Text: text}
}

// PlaybackEnded reports how playback finished. Err is set when synthesis or
// playback failed, Resume when listening continues afterwards.
type PlaybackEnded struct {
	Base
	Text   string
	Resume bool
	Err    error
}

// NewPlaybackEnded creates a playback ended event.
func NewPlaybackEnded(text string, resume bool, err error) PlaybackEnded {
	return PlaybackEnded{Base: NewBase(KindPlaybackEnded), Text: text, Resume: resume, Err: err}
}
