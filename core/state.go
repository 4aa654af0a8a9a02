package orchestration

// ConversationState is owned by the orchestrator loop. Read it through
// [Orchestrator.Snapshot].
type ConversationState int

const (
	StateIdle ConversationState = iota
	StateWakeListening
	StateActiveListening
	StateSpeaking
	StatePaused
)

func (s ConversationState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWakeListening:
		return "wake-listening"
	case StateActiveListening:
		return "active-listening"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	}
	return "unknown"
}

// ActivationOrigin tells what started a conversation. It is diagnostic only.
type ActivationOrigin string

const (
	OriginHotword ActivationOrigin = "hotword"
	OriginTouch   ActivationOrigin = "touch"
	OriginManual  ActivationOrigin = "manual"
)

type flushReason string

const (
	flushReasonTimeout flushReason = "timeout"
	flushReasonManual  flushReason = "manual"
)
