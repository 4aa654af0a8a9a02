package tui

import (
	"sync"

	"github.com/koscakluka/stella-core/core/events"
)

// Feed carries orchestrator events into the UI. Publish blocks while the
// buffer is full and returns immediately once the feed is closed, so a UI
// that has exited never stalls event delivery.
type Feed struct {
	events chan events.Event
	done   chan struct{}
	once   sync.Once
}

func NewFeed(capacity int) *Feed {
	return &Feed{
		events: make(chan events.Event, capacity),
		done:   make(chan struct{}),
	}
}

// Publish is meant to be passed to orchestration.WithEventHandler.
func (f *Feed) Publish(event events.Event) {
	select {
	case f.events <- event:
	case <-f.done:
	}
}

func (f *Feed) Close() {
	f.once.Do(func() { close(f.done) })
}
