package orchestration

import (
	"fmt"
	"sync"

	"github.com/koscakluka/stella-core/core/events"
)

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts callbackOptions) eventEmitter {
	return func(event events.Event) {
		if opts.onEvent != nil {
			opts.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.StateChanged:
			if opts.onStateChanged != nil {
				opts.onStateChanged(parseConversationState(typedEvent.From), parseConversationState(typedEvent.To))
			}
		case events.TranscriptUpdated:
			if opts.onTranscript != nil {
				opts.onTranscript(typedEvent.Transcript)
			}
		case events.ChatMessageAppended:
			if opts.onChatMessage != nil {
				opts.onChatMessage(ChatMessage{Speaker: Speaker(typedEvent.Speaker), Text: typedEvent.Text})
			}
		case events.HotwordArmedChanged:
			if opts.onHotwordArmed != nil {
				opts.onHotwordArmed(typedEvent.Armed)
			}
		case events.AwaitingResponseChanged:
			if opts.onAwaitingResponse != nil {
				opts.onAwaitingResponse(typedEvent.Awaiting)
			}
		case events.Notice:
			if opts.onNotice != nil {
				opts.onNotice(typedEvent.Message, typedEvent.Err)
			}
		}
	}
}

func parseConversationState(name string) ConversationState {
	for _, state := range []ConversationState{StateIdle, StateWakeListening, StateActiveListening, StateSpeaking, StatePaused} {
		if state.String() == name {
			return state
		}
	}
	return StateIdle
}

// eventDispatcher delivers events in order on its own goroutine so that
// consumers may call back into the orchestrator. Emitting never blocks.
type eventDispatcher struct {
	emit eventEmitter

	mu      sync.Mutex
	pending []events.Event
	closed  bool
	signal  chan struct{}
	done    chan struct{}
}

func newEventDispatcher(emit eventEmitter) *eventDispatcher {
	if emit == nil {
		emit = noopEventEmitter
	}
	return &eventDispatcher{
		emit:   emit,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (d *eventDispatcher) start() {
	go func() {
		defer close(d.done)

		for {
			d.mu.Lock()
			batch := d.pending
			d.pending = nil
			closed := d.closed
			d.mu.Unlock()

			for _, event := range batch {
				d.deliver(event)
			}
			if closed && len(batch) == 0 {
				return
			}
			if len(batch) == 0 {
				<-d.signal
			}
		}
	}()
}

func (d *eventDispatcher) deliver(event events.Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("event callback panicked", "group", event.Kind().Group(), "kind", string(event.Kind()), "error", fmt.Sprint(recovered))
		}
	}()

	d.emit(event)
}

func (d *eventDispatcher) Emit(event events.Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, event)
	d.mu.Unlock()

	d.wake()
}

func (d *eventDispatcher) wake() {
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// close delivers what is pending and stops the dispatcher.
func (d *eventDispatcher) close(wait bool) {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wake()

	if wait {
		<-d.done
	}
}
