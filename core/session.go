package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/stella-core/core/backend"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Session scopes one conversation. Its id is immutable and travels with
// every outbound utterance and every accepted inbound response.
type Session struct {
	ID        string
	CreatedAt time.Time
}

func newSession() *Session {
	return &Session{ID: uuid.NewString(), CreatedAt: time.Now()}
}

// transportBinding owns the realtime subscription of the current session.
// Open and close run in order on a dedicated worker so a slow connect never
// blocks the conversation loop and a close can never overtake an open.
type transportBinding struct {
	realtime Realtime
	channel  string
	event    string
	timeout  time.Duration

	ops     chan func()
	closeCh chan struct{}
	done    chan struct{}

	// opened and epoch are only touched by the worker. epoch changes on
	// every close so a drop watcher can tell its connection is gone.
	opened bool
	epoch  uint64
}

func newTransportBinding() transportBinding {
	return transportBinding{
		channel: DefaultRealtimeChannel,
		event:   DefaultRealtimeEvent,
		timeout: defaultTransportTimeout,
		ops:     make(chan func(), 16),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (b *transportBinding) isConfigured() bool {
	return b != nil && !isNilClient(b.realtime)
}

func (b *transportBinding) start() {
	go func() {
		defer close(b.done)
		for {
			select {
			case op := <-b.ops:
				op()
			case <-b.closeCh:
				// Drain so a queued close still runs.
				for {
					select {
					case op := <-b.ops:
						op()
					default:
						return
					}
				}
			}
		}
	}()
}

func (b *transportBinding) stop() {
	close(b.closeCh)
	<-b.done
}

func (b *transportBinding) enqueue(op func()) {
	select {
	case <-b.closeCh:
	case b.ops <- op:
	}
}

// open subscribes to the session channel and binds exactly one handler.
// onMessage receives raw event payloads, onFailure errors while opening and
// onDrop a connection that ended after it was opened.
func (b *transportBinding) open(ctx context.Context, sessionID string, onMessage func([]byte), onFailure, onDrop func(error)) {
	if !b.isConfigured() {
		return
	}

	b.enqueue(func() {
		ctx, span := tracer.Start(ctx, "open transport binding")
		defer span.End()
		span.SetAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("realtime.channel", b.channel),
		)

		if b.opened {
			b.closeNow()
		}
		b.opened = true

		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		err := b.realtime.Connect(ctx, map[string]string{"session_id": sessionID})
		if err == nil {
			err = b.realtime.Subscribe(ctx, b.channel)
		}
		if err != nil {
			err = fmt.Errorf("%w: failed to subscribe to %s: %w", ErrTransport, b.channel, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			b.closeNow()
			onFailure(err)
			return
		}

		b.realtime.Bind(b.channel, b.event, onMessage)
		b.watchDrop(onDrop)
	})
}

// watchDrop must run on the worker right after a successful open. The drop
// is reported at most once and never after an explicit close.
func (b *transportBinding) watchDrop(onDrop func(error)) {
	notifier, ok := b.realtime.(RealtimeDropNotifier)
	if !ok {
		return
	}
	done := notifier.Done()
	if done == nil {
		return
	}

	epoch := b.epoch
	go func() {
		select {
		case <-done:
		case <-b.closeCh:
			return
		}
		b.enqueue(func() {
			if !b.opened || b.epoch != epoch {
				return
			}
			err := notifier.Err()
			if err == nil {
				err = errors.New("connection closed")
			}
			b.closeNow()
			onDrop(fmt.Errorf("%w: realtime connection dropped: %w", ErrTransport, err))
		})
	}()
}

// close unbinds, unsubscribes and disconnects. It is a no-op when nothing
// was opened.
func (b *transportBinding) close() {
	if !b.isConfigured() {
		return
	}

	b.enqueue(func() {
		if b.opened {
			b.closeNow()
		}
	})
}

func (b *transportBinding) closeNow() {
	b.opened = false
	b.epoch++
	b.realtime.UnbindAll(b.channel, b.event)
	if err := b.realtime.Unsubscribe(b.channel); err != nil {
		logger.Warn("failed to unsubscribe from realtime channel", "channel", b.channel, "error", err)
	}
	if err := b.realtime.Disconnect(); err != nil {
		logger.Warn("failed to disconnect realtime client", "error", err)
	}
}

// decodeSpeechOutput parses an inbound server-speech-output payload.
func decodeSpeechOutput(data []byte) (backend.SpeechOutput, error) {
	var output backend.SpeechOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return backend.SpeechOutput{}, fmt.Errorf("failed to decode speech output: %w", err)
	}
	if output.SessionID == "" {
		return backend.SpeechOutput{}, errors.New("speech output without session id")
	}
	return output, nil
}
