package orchestration

import (
	"context"
	"fmt"

	"github.com/koscakluka/stella-core/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// resetFinalizer restarts the inactivity timer. Each reset gets a new
// sequence number so a timer that already fired into the queue is ignored.
func (o *Orchestrator) resetFinalizer() {
	o.cancelFinalizer()

	seq := o.finalizerSeq
	generation := o.generation
	o.finalizer = o.runtime.schedule(o.timings.Inactivity, func() {
		if o.finalizerSeq != seq || o.generation != generation {
			return
		}
		o.flush(flushReasonTimeout)
	})
}

func (o *Orchestrator) cancelFinalizer() {
	stopTimer(&o.finalizer)
	o.finalizerSeq++
}

// flush is the only path by which an utterance leaves the client.
func (o *Orchestrator) flush(reason flushReason) {
	o.cancelFinalizer()

	hadTranscript := !o.buffer.IsEmpty()
	text := o.buffer.Take()
	if hadTranscript {
		o.emit(events.NewTranscriptUpdated(""))
	}
	if text == "" {
		return
	}

	ctx, span := tracer.Start(o.baseContext, "flush utterance")
	defer span.End()
	span.SetAttributes(attribute.String("utterance.reason", string(reason)))

	o.appendChat(ChatMessage{Speaker: SpeakerUser, Text: text})
	utterancesFlushed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))

	if o.session == nil {
		err := fmt.Errorf("cannot send utterance: %w", ErrNoSession)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.emit(events.NewUtteranceSendFailed("", text, err))
		return
	}
	sessionID := o.session.ID
	span.SetAttributes(attribute.String("session.id", sessionID))
	o.emit(events.NewUtteranceFlushed(sessionID, text, string(reason)))

	if isNilClient(o.sender) {
		err := fmt.Errorf("%w: no speech sender configured", ErrTransport)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.emit(events.NewUtteranceSendFailed(sessionID, text, err))
		return
	}

	o.setAwaitingResponse(true)
	o.send(ctx, sessionID, text)
}

// send posts off the loop. A failure is reported but never changes the
// conversation state.
func (o *Orchestrator) send(ctx context.Context, sessionID, text string) {
	sender := o.sender
	worker := panicSafeNamedWorker("utterance send", func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
		defer cancel()

		if err := sender.Send(ctx, sessionID, text); err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil
	})

	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, span := tracer.Start(ctx, "send utterance")
		defer span.End()
		span.SetAttributes(attribute.String("session.id", sessionID))

		err := worker(ctx)
		if err == nil {
			return
		}

		o.runtime.post(func() {
			o.logger.Warn("failed to send utterance", "session_id", sessionID, "error", err)
			o.emit(events.NewUtteranceSendFailed(sessionID, text, err))
			if o.session != nil && o.session.ID == sessionID {
				o.setAwaitingResponse(false)
			}
		})
	}()
}
