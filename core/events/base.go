package events

import (
	"strings"
	"time"
)

// Kind is a dotted event name, "<group>.<event>".
type Kind string

// Group is the part of the kind before the first dot, e.g. "session" for
// "session.started".
func (k Kind) Group() string {
	group, _, _ := strings.Cut(string(k), ".")
	return group
}

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base is embedded by every event and stamps it at construction.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind { return b.kind }

func (b Base) Timestamp() time.Time { return b.timestamp }
