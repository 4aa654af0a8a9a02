package events

const (
	// KindStateChanged identifies conversation state transitions.
	KindStateChanged Kind = "conversation.state_changed"
	// KindSessionStarted identifies session creation.
	KindSessionStarted Kind = "session.started"
	// KindSessionEnded identifies session teardown.
	KindSessionEnded Kind = "session.ended"
)

// StateChanged carries a conversation state transition. States are the
// string forms of the orchestrator's ConversationState.
type StateChanged struct {
	Base
	From string
	To   string
}

// NewStateChanged creates a state changed event.
func NewStateChanged(from, to string) StateChanged {
	return StateChanged{Base: NewBase(KindStateChanged), From: from, To: to}
}

// SessionStarted marks creation of a session.
type SessionStarted struct {
	Base
	SessionID string
}

// NewSessionStarted creates a session started event.
func NewSessionStarted(sessionID string) SessionStarted {
	return SessionStarted{Base: NewBase(KindSessionStarted), SessionID: sessionID}
}

// SessionEnded marks teardown of a session.
type SessionEnded struct {
	Base
	SessionID string
}

// NewSessionEnded creates a session ended event.
func NewSessionEnded(sessionID string) SessionEnded {
	return SessionEnded{Base: NewBase(KindSessionEnded), SessionID: sessionID}
}
