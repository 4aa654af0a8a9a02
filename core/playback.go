package orchestration

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/koscakluka/stella-core/core/audio"
	"github.com/koscakluka/stella-core/core/events"
	"github.com/koscakluka/stella-core/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// playbackCoordinator holds the speech output side of the conversation.
// Only the loop touches it.
type playbackCoordinator struct {
	synthesizer texttospeech.Synthesizer
	voice       texttospeech.VoiceConfig
	player      audio.Player

	// seq identifies the latest speak request. Synthesis and playback
	// continuations carrying an older value are stale.
	seq    uint64
	resume bool
	text   string

	cancelSynthesis context.CancelFunc

	handle     audio.Playback
	handleSeq  uint64
	handleClip io.Closer
}

func (p *playbackCoordinator) isConfigured() bool {
	return !isNilClient(p.synthesizer) && !isNilClient(p.player)
}

// invalidate makes every in-flight synthesis or playback continuation stale.
func (p *playbackCoordinator) invalidate() {
	p.seq++
	if p.cancelSynthesis != nil {
		p.cancelSynthesis()
		p.cancelSynthesis = nil
	}
}

// release stops and drops the live playback, if any.
func (p *playbackCoordinator) release() {
	if p.handle != nil {
		if err := p.handle.Stop(); err != nil {
			logger.Warn("failed to stop playback", "error", err)
		}
		p.handle = nil
	}
	if p.handleClip != nil {
		_ = p.handleClip.Close()
		p.handleClip = nil
	}
}

// speak synthesizes text and plays it. Failures resolve the conversation
// right away instead of leaving it in Speaking.
func (o *Orchestrator) speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	p := &o.playback
	prior := o.state
	switch prior {
	case StateActiveListening, StatePaused:
		p.resume = true
	case StateSpeaking:
		// A newer answer replaces the one being spoken, the resume
		// decision of the original request still applies.
	default:
		p.resume = false
	}

	if prior == StateActiveListening {
		o.active.stop()
		o.cancelFinalizer()
		if !o.buffer.IsEmpty() {
			o.buffer.Clear()
			o.emit(events.NewTranscriptUpdated(""))
		}
	}
	if prior != StateSpeaking {
		o.setState(StatePaused)
	}
	o.setAwaitingResponse(false)

	p.invalidate()
	seq := p.seq
	p.text = text
	resume := p.resume

	if !p.isConfigured() {
		o.failPlayback(seq, resume, fmt.Errorf("%w: no synthesizer or player configured", ErrSynthesis))
		return
	}

	ctx, cancel := context.WithCancel(o.baseContext)
	p.cancelSynthesis = cancel
	synthesizer, voice := p.synthesizer, p.voice

	go func() {
		ctx, span := tracer.Start(ctx, "synthesize speech")
		defer span.End()
		span.SetAttributes(attribute.Int("speech.text_length", len(text)))

		var clip io.ReadCloser
		err := panicSafeNamedWorker("speech synthesis", func(ctx context.Context) error {
			var err error
			clip, err = synthesizer.Synthesize(ctx, text, voice)
			return err
		})(ctx)
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrSynthesis, err)
		}

		if !o.runtime.do(func() { o.onSynthesized(seq, clip, err) }) && clip != nil {
			_ = clip.Close()
		}
	}()
}

func (o *Orchestrator) onSynthesized(seq uint64, clip io.ReadCloser, err error) {
	p := &o.playback
	if seq != p.seq {
		if clip != nil {
			_ = clip.Close()
		}
		return
	}
	p.cancelSynthesis = nil

	if err != nil {
		o.failPlayback(seq, p.resume, err)
		return
	}

	p.release()
	handle, err := p.player.Play(o.baseContext, clip, func(playErr error) {
		o.runtime.post(func() { o.onPlaybackEnded(seq, playErr) })
	})
	if err != nil {
		_ = clip.Close()
		o.failPlayback(seq, p.resume, fmt.Errorf("%w: %w", ErrPlayback, err))
		return
	}

	p.handle = handle
	p.handleSeq = seq
	p.handleClip = clip
	o.setState(StateSpeaking)
	o.emit(events.NewPlaybackStarted(p.text))
}

// onPlaybackEnded runs when the player reports end of audio or a playback
// error.
func (o *Orchestrator) onPlaybackEnded(seq uint64, playErr error) {
	p := &o.playback
	if p.handle == nil || p.handleSeq != seq {
		return
	}
	p.release()

	if playErr != nil {
		playErr = fmt.Errorf("%w: %w", ErrPlayback, playErr)
		o.recordPlaybackFailure(playErr)
	}
	o.emit(events.NewPlaybackEnded(p.text, p.resume, playErr))

	if seq != p.seq {
		// A newer answer is still being synthesized.
		o.setState(StatePaused)
		return
	}
	o.onPlaybackFinished(p.resume)
}

func (o *Orchestrator) failPlayback(seq uint64, resume bool, err error) {
	p := &o.playback
	if seq != p.seq {
		return
	}

	o.recordPlaybackFailure(err)
	p.release()
	o.emit(events.NewPlaybackEnded(p.text, resume, err))
	o.onPlaybackFinished(resume)
}

func (o *Orchestrator) recordPlaybackFailure(err error) {
	o.logger.Warn("speech playback failed", "error", err)
	playbackFailures.Add(o.baseContext, 1)

	span := trace.SpanFromContext(o.baseContext)
	span.RecordError(err)
}

// onPlaybackFinished resumes listening when asked to and the session is
// still live, and otherwise ends the conversation.
func (o *Orchestrator) onPlaybackFinished(resume bool) {
	if o.state == StateIdle {
		return
	}

	if resume && o.session != nil {
		o.setState(StateActiveListening)
		o.startActive()
		return
	}

	o.deactivate()
}
