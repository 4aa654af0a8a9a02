package orchestration

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/stella-core/core/events"
	"github.com/koscakluka/stella-core/core/hotword"
	"github.com/koscakluka/stella-core/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// Orchestrator turns recognizer, playback and realtime callbacks into one
// voice conversation. All state lives on a single loop goroutine; the public
// methods post to it.
type Orchestrator struct {
	runtime    *conversationRuntime
	dispatcher *eventDispatcher
	transport  transportBinding

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	// recognizerStarts tracks Start calls running off the loop.
	recognizerStarts sync.WaitGroup

	baseContext context.Context
	logger      *slog.Logger
	timings     Timings
	callbacks   callbackOptions
	chat        ChatLog
	sender      SpeechSender
	matcher     *hotword.Matcher

	restartBurst    int
	restartInterval time.Duration
	secureContext   *bool
	capabilities    capabilities

	// Loop-owned state below.

	state      ConversationState
	session    *Session
	generation uint64
	wakeTimer  *time.Timer
	reconnects *rate.Limiter

	passive recognizerHandle
	active  recognizerHandle

	buffer       utteranceBuffer
	finalizer    *time.Timer
	finalizerSeq uint64

	playback playbackCoordinator

	awaitingResponse bool
	hotwordArmed     bool

	noticedCapability bool
	closing           bool

	snapshot atomic.Pointer[Snapshot]
}

// Snapshot is a consistent, read-only view of the conversation taken on the
// loop after the most recent change.
type Snapshot struct {
	State            ConversationState
	SessionID        string
	Transcript       string
	HotwordArmed     bool
	AwaitingResponse bool
	// CanListen is true while a conversation is being listened to.
	CanListen bool
	// IsRecording is true while the active recognizer should be capturing.
	IsRecording bool
	IsSpeaking  bool
	// HotwordAvailable is false when the host lacks recognition or a secure
	// context.
	HotwordAvailable bool
	// RecognitionAvailable is false when activation cannot succeed.
	RecognitionAvailable bool
	Chat                 []ChatMessage
}

// NewOrchestrator applies opts and detects capabilities. Nothing runs until
// Start.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		runtime:         newConversationRuntime(),
		transport:       newTransportBinding(),
		baseContext:     context.Background(),
		logger:          logger,
		timings:         DefaultTimings(),
		chat:            NewMemoryChatLog(),
		matcher:         hotword.NewMatcher(),
		restartBurst:    defaultRestartBurst,
		restartInterval: defaultRestartInterval,
		passive:         newRecognizerHandle(rolePassive, defaultPassiveMaxAlternatives),
		active:          newRecognizerHandle(roleActive, defaultActiveMaxAlternatives),
		playback:        playbackCoordinator{voice: texttospeech.DefaultVoiceConfig()},
	}

	for _, opt := range opts {
		opt(o)
	}

	o.passive.rearm(o.restartBurst, o.restartInterval)
	o.active.rearm(o.restartBurst, o.restartInterval)
	o.capabilities = detectCapabilities(o.passive.client, o.active.client, o.secureContext, o.endpoints()...)
	o.dispatcher = newEventDispatcher(newCallbackEventEmitter(o.callbacks))
	o.runtime.afterJob = o.publish
	o.publish()

	return o
}

// endpoints collects the URLs of clients that can report one, for secure
// context detection.
func (o *Orchestrator) endpoints() []string {
	endpoints := []string{}
	for _, client := range []any{o.transport.realtime, o.sender} {
		if isNilClient(client) {
			continue
		}
		switch c := client.(type) {
		case interface{ Endpoint() string }:
			endpoints = append(endpoints, c.Endpoint())
		case interface{ BaseURL() string }:
			endpoints = append(endpoints, c.BaseURL())
		}
	}
	return endpoints
}

// Start runs the conversation loop until ctx is done or Close is called,
// and arms the hotword when the host allows it.
//
// ctx is the base context for every recognizer, transport and synthesis
// call.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.runtime.isClosed() {
		return ErrClosed
	}

	started := false
	o.startOnce.Do(func() {
		started = true
		o.baseContext = ctx
		o.dispatcher.start()
		o.transport.start()
		o.runtime.start()
		o.started.Store(true)
	})
	if !started {
		return nil
	}

	go func() {
		select {
		case <-ctx.Done():
			o.Close()
		case <-o.runtime.done:
		}
	}()

	o.runtime.do(func() {
		if !o.capabilities.recognition {
			o.noticeCapabilityOnce()
			return
		}
		if !o.capabilities.secureContext {
			o.notice("Hotword disabled outside a secure context", nil)
		}
		o.startPassiveIfIdle()
	})
	return nil
}

// Close flushes and ends any conversation, stops every recognizer and waits
// for the loop and pending event callbacks to finish. It must not be called
// from an event callback.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if o.started.Load() {
			o.runtime.do(func() {
				o.closing = true
				o.deactivate()
				o.passive.stop()
				o.setHotwordArmed(false)
			})
		}

		o.runtime.end()
		o.runtime.waitUntilEnded()
		o.recognizerStarts.Wait()

		if o.started.Load() {
			o.transport.stop()
			o.dispatcher.close(true)
		}
	})
}

// Activate starts a conversation from Idle. It is a logged no-op in any
// other state and fails with ErrCapabilityUnavailable when the host cannot
// recognize speech.
func (o *Orchestrator) Activate(origin ActivationOrigin) error {
	if !o.started.Load() {
		return ErrNotStarted
	}

	var err error
	if !o.runtime.do(func() { err = o.activate(origin) }) {
		return ErrClosed
	}
	return err
}

// Deactivate ends the conversation from any state. Buffered speech is
// flushed first; when it returns no session exists.
func (o *Orchestrator) Deactivate() {
	if !o.started.Load() {
		return
	}
	o.runtime.do(o.deactivate)
}

// Toggle deactivates a running conversation or activates an idle one.
func (o *Orchestrator) Toggle(origin ActivationOrigin) error {
	if !o.started.Load() {
		return ErrNotStarted
	}

	var err error
	if !o.runtime.do(func() {
		if o.state == StateIdle {
			err = o.activate(origin)
			return
		}
		o.deactivate()
	}) {
		return ErrClosed
	}
	return err
}

// Snapshot returns the latest published view with the chat history read
// fresh. It is safe to call from any goroutine.
func (o *Orchestrator) Snapshot() Snapshot {
	snapshot := *o.snapshot.Load()
	if history, ok := o.chat.(ChatHistory); ok {
		snapshot.Chat = history.Messages()
	}
	return snapshot
}

func (o *Orchestrator) activate(origin ActivationOrigin) error {
	_, span := tracer.Start(o.baseContext, "activate")
	defer span.End()
	span.SetAttributes(attribute.String("activation.origin", string(origin)))

	if !o.capabilities.recognition {
		o.noticeCapabilityOnce()
		span.RecordError(o.capabilities.recognitionErr)
		span.SetStatus(codes.Error, o.capabilities.recognitionErr.Error())
		return o.capabilities.recognitionErr
	}
	if o.state != StateIdle {
		o.logger.Info("ignoring activation outside idle", "origin", string(origin), "state", o.state.String())
		return nil
	}

	o.generation++
	generation := o.generation
	o.passive.rearm(o.restartBurst, o.restartInterval)
	o.active.rearm(o.restartBurst, o.restartInterval)

	o.passive.stop()
	o.ensureSession()
	o.setState(StateWakeListening)

	stopTimer(&o.wakeTimer)
	o.wakeTimer = o.runtime.schedule(o.timings.WakeTransition, func() {
		o.completeActivation(generation)
	})
	return nil
}

// completeActivation runs after the wake delay, when the passive recognizer
// has released the microphone.
func (o *Orchestrator) completeActivation(generation uint64) {
	if o.generation != generation || o.state != StateWakeListening {
		return
	}
	o.wakeTimer = nil

	o.openTransport(o.ensureSession())

	o.setState(StateActiveListening)
	o.startActive()
}

func (o *Orchestrator) openTransport(session *Session) {
	sessionID := session.ID
	o.transport.open(o.baseContext, sessionID, o.onRealtimeMessage,
		func(err error) {
			o.runtime.post(func() {
				o.logger.Warn("failed to open transport binding", "session_id", sessionID, "error", err)
				if o.session != nil && o.session.ID == sessionID {
					o.notice("Could not connect to the assistant", err)
				}
			})
		},
		func(err error) {
			o.runtime.post(func() { o.onTransportDropped(sessionID, err) })
		},
	)
}

// onTransportDropped reopens the binding for the session that lost its
// connection. Reopens share the recognizer restart budget per session.
func (o *Orchestrator) onTransportDropped(sessionID string, err error) {
	o.logger.Warn("realtime connection dropped", "session_id", sessionID, "error", err)
	if o.closing || o.session == nil || o.session.ID != sessionID {
		return
	}

	if o.reconnects != nil && !o.reconnects.Allow() {
		o.notice("Lost the connection to the assistant", err)
		return
	}
	o.notice("Lost the connection to the assistant, reconnecting", err)
	o.openTransport(o.session)
}

func (o *Orchestrator) deactivate() {
	o.generation++
	stopTimer(&o.wakeTimer)

	o.active.stop()
	o.flush(flushReasonManual)

	o.playback.invalidate()
	o.playback.release()
	o.transport.close()

	o.clearSession()
	o.setAwaitingResponse(false)
	o.setState(StateIdle)

	o.passive.rearm(o.restartBurst, o.restartInterval)
	o.active.rearm(o.restartBurst, o.restartInterval)
	o.startPassiveIfIdle()
}

func (o *Orchestrator) ensureSession() *Session {
	if o.session == nil {
		o.session = newSession()
		o.reconnects = rate.NewLimiter(rate.Every(o.restartInterval), o.restartBurst)
		o.logger.Info("session started", "session_id", o.session.ID)
		o.emit(events.NewSessionStarted(o.session.ID))
	}
	return o.session
}

func (o *Orchestrator) clearSession() {
	if o.session == nil {
		return
	}
	sessionID := o.session.ID
	o.session = nil
	o.emit(events.NewSessionEnded(sessionID))
}

// onRealtimeMessage runs on the realtime client's goroutine.
func (o *Orchestrator) onRealtimeMessage(data []byte) {
	output, err := decodeSpeechOutput(data)
	if err != nil {
		o.logger.Warn("dropping malformed realtime message", "error", err)
		return
	}

	o.runtime.post(func() {
		if o.session == nil || output.SessionID != o.session.ID {
			o.logger.Debug("dropping realtime message for another session", "session_id", output.SessionID)
			return
		}
		if output.Data.Response == "" {
			return
		}
		o.onFinalResponseReceived(output.Data.Response)
	})
}

func (o *Orchestrator) onFinalResponseReceived(text string) {
	o.appendChat(ChatMessage{Speaker: SpeakerAssistant, Text: text})
	o.speak(text)
}

func (o *Orchestrator) setState(state ConversationState) {
	if o.state == state {
		return
	}
	from := o.state
	o.state = state
	o.logger.Debug("conversation state changed", "from", from.String(), "to", state.String())
	o.emit(events.NewStateChanged(from.String(), state.String()))
}

func (o *Orchestrator) setAwaitingResponse(awaiting bool) {
	if o.awaitingResponse == awaiting {
		return
	}
	o.awaitingResponse = awaiting
	o.emit(events.NewAwaitingResponseChanged(awaiting))
}

func (o *Orchestrator) setHotwordArmed(armed bool) {
	if o.hotwordArmed == armed {
		return
	}
	o.hotwordArmed = armed
	o.emit(events.NewHotwordArmedChanged(armed))
}

func (o *Orchestrator) hotwordEnabled() bool {
	return o.capabilities.hotwordAllowed() && o.passive.isConfigured()
}

func (o *Orchestrator) appendChat(message ChatMessage) {
	o.chat.Append(message)
	o.emit(events.NewChatMessageAppended(string(message.Speaker), message.Text))
}

func (o *Orchestrator) notice(message string, err error) {
	o.emit(events.NewNotice(message, err))
}

func (o *Orchestrator) noticeCapabilityOnce() {
	if o.noticedCapability {
		return
	}
	o.noticedCapability = true
	o.logger.Warn("speech recognition unavailable", "error", o.capabilities.recognitionErr)
	o.notice("Speech recognition is not available on this device", o.capabilities.recognitionErr)
}

func (o *Orchestrator) emit(event events.Event) {
	o.logger.Debug("conversation event", "group", event.Kind().Group(), "kind", string(event.Kind()))
	if o.dispatcher != nil {
		o.dispatcher.Emit(event)
	}
}

// publish refreshes derived flags and the snapshot. It runs after every
// loop job.
func (o *Orchestrator) publish() {
	o.setHotwordArmed(o.state == StateIdle && o.passive.running)

	snapshot := Snapshot{
		State:                o.state,
		Transcript:           o.buffer.String(),
		HotwordArmed:         o.hotwordArmed,
		AwaitingResponse:     o.awaitingResponse,
		CanListen:            o.state == StateWakeListening || o.state == StateActiveListening,
		IsRecording:          o.state == StateActiveListening,
		IsSpeaking:           o.state == StateSpeaking,
		HotwordAvailable:     o.hotwordEnabled(),
		RecognitionAvailable: o.capabilities.recognition,
	}
	if o.session != nil {
		snapshot.SessionID = o.session.ID
	}
	o.snapshot.Store(&snapshot)
}
