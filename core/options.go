package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/koscakluka/stella-core/core/audio"
	"github.com/koscakluka/stella-core/core/events"
	"github.com/koscakluka/stella-core/core/hotword"
	"github.com/koscakluka/stella-core/core/speechtotext"
	"github.com/koscakluka/stella-core/core/texttospeech"
	"github.com/koscakluka/stella-core/internal/utils"
)

type OrchestratorOption func(*Orchestrator)

const (
	DefaultRealtimeChannel = "private-agent-123"
	DefaultRealtimeEvent   = "server-speech-output"

	defaultRecognitionLanguage    = "pt-BR"
	defaultPassiveMaxAlternatives = 3
	defaultActiveMaxAlternatives  = 5

	defaultRestartBurst    = 5
	defaultRestartInterval = 2 * time.Second

	defaultSendTimeout      = 15 * time.Second
	defaultTransportTimeout = 10 * time.Second

	defaultRecognizerStartTimeout = 10 * time.Second
)

// Timings are the fixed delays of the conversation. Zero fields fall back
// to [DefaultTimings].
type Timings struct {
	// WakeTransition is the pause between leaving Idle and claiming the
	// microphone for the active recognizer.
	WakeTransition time.Duration
	// Inactivity is how long the active recognizer may stay silent before
	// the utterance is flushed.
	Inactivity     time.Duration
	PassiveRestart time.Duration
	ActiveRestart  time.Duration
}

// DefaultTimings returns the timings used when none are configured.
func DefaultTimings() Timings {
	return Timings{
		WakeTransition: 400 * time.Millisecond,
		Inactivity:     1600 * time.Millisecond,
		PassiveRestart: 350 * time.Millisecond,
		ActiveRestart:  300 * time.Millisecond,
	}
}

func (t Timings) withDefaults() Timings {
	defaults := DefaultTimings()
	if t.WakeTransition <= 0 {
		t.WakeTransition = defaults.WakeTransition
	}
	if t.Inactivity <= 0 {
		t.Inactivity = defaults.Inactivity
	}
	if t.PassiveRestart <= 0 {
		t.PassiveRestart = defaults.PassiveRestart
	}
	if t.ActiveRestart <= 0 {
		t.ActiveRestart = defaults.ActiveRestart
	}
	return t
}

// Realtime is the inbound server channel. Handlers may be invoked from any
// goroutine.
type Realtime interface {
	Connect(ctx context.Context, authParams map[string]string) error
	Subscribe(ctx context.Context, channel string) error
	Bind(channel, event string, handler func(data []byte))
	UnbindAll(channel, event string)
	Unsubscribe(channel string) error
	Disconnect() error
}

// RealtimeDropNotifier is implemented by realtime clients that report a
// connection ending on its own. Done is closed when the current connection
// ends and Err tells why.
type RealtimeDropNotifier interface {
	Done() <-chan struct{}
	Err() error
}

// SpeechSender submits a finalized utterance for a session.
type SpeechSender interface {
	Send(ctx context.Context, sessionID string, text string) error
}

// WithRecognizers sets the passive (wake word) and active (conversation)
// recognizers. They may share one microphone, the orchestrator never runs
// both at once.
func WithRecognizers(passive, active speechtotext.Recognizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.passive.client = passive
		o.active.client = active
	}
}

// WithRecognitionLanguage sets the language passed to both recognizers.
func WithRecognitionLanguage(language string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.passive.language = language
		o.active.language = language
	}
}

// WithHotwordMatcher replaces the matcher that spots the wake word in
// passive fragments.
func WithHotwordMatcher(matcher *hotword.Matcher) OrchestratorOption {
	return func(o *Orchestrator) {
		if matcher != nil {
			o.matcher = matcher
		}
	}
}

// WithSynthesizer sets the text to speech engine for assistant responses.
func WithSynthesizer(synthesizer texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.playback.synthesizer = synthesizer }
}

// WithVoiceConfig sets the voice responses are synthesized with. Unset
// fields keep their defaults.
func WithVoiceConfig(voice texttospeech.VoiceConfig) OrchestratorOption {
	return func(o *Orchestrator) { o.playback.voice = voice.WithDefaults() }
}

// WithPlayer sets the output that plays synthesized responses.
func WithPlayer(player audio.Player) OrchestratorOption {
	return func(o *Orchestrator) { o.playback.player = player }
}

// WithRealtime sets the client that delivers assistant responses. Clients
// implementing RealtimeDropNotifier are reconnected when they drop.
func WithRealtime(realtime Realtime) OrchestratorOption {
	return func(o *Orchestrator) { o.transport.realtime = realtime }
}

// WithRealtimeChannel overrides the channel and event that carry assistant
// responses.
func WithRealtimeChannel(channel, event string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.transport.channel = channel
		o.transport.event = event
	}
}

// WithSpeechSender sets where finalized utterances are sent.
func WithSpeechSender(sender SpeechSender) OrchestratorOption {
	return func(o *Orchestrator) { o.sender = sender }
}

// WithChatLog replaces the in-memory chat log.
func WithChatLog(log ChatLog) OrchestratorOption {
	return func(o *Orchestrator) {
		if log != nil {
			o.chat = log
		}
	}
}

// WithLogger replaces the package logger for this orchestrator.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTimings overrides the conversation timings. Zero fields fall back to
// DefaultTimings.
func WithTimings(timings Timings) OrchestratorOption {
	return func(o *Orchestrator) { o.timings = timings.withDefaults() }
}

// WithRestartBudget caps automatic recognizer restarts at burst restarts,
// refilled one per interval. A recognizer that exhausts it is parked until
// the next activation or return to Idle. Realtime reconnects get the same
// budget per session.
func WithRestartBudget(burst int, interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if burst > 0 && interval > 0 {
			o.restartBurst = burst
			o.restartInterval = interval
		}
	}
}

// WithSecureContext overrides secure context detection from the realtime
// and backend endpoints.
func WithSecureContext(secure bool) OrchestratorOption {
	return func(o *Orchestrator) { o.secureContext = utils.Ptr(secure) }
}

type callbackOptions struct {
	onEvent            func(events.Event)
	onStateChanged     func(from, to ConversationState)
	onTranscript       func(transcript string)
	onChatMessage      func(message ChatMessage)
	onHotwordArmed     func(armed bool)
	onAwaitingResponse func(awaiting bool)
	onNotice           func(message string, err error)
}

// WithEventHandler receives every event. Callbacks run in order on a
// dedicated goroutine and may call back into the orchestrator.
func WithEventHandler(handler func(events.Event)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onEvent = handler }
}

// WithStateChangedCallback is called on every conversation state change.
func WithStateChangedCallback(callback func(from, to ConversationState)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onStateChanged = callback }
}

// WithTranscriptCallback receives the live, not yet flushed utterance. An
// empty transcript means the utterance was flushed or discarded.
func WithTranscriptCallback(callback func(transcript string)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onTranscript = callback }
}

// WithChatMessageCallback receives every message appended to the chat.
func WithChatMessageCallback(callback func(message ChatMessage)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onChatMessage = callback }
}

// WithHotwordArmedCallback reports when the wake word starts or stops
// being listened for.
func WithHotwordArmedCallback(callback func(armed bool)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onHotwordArmed = callback }
}

// WithAwaitingResponseCallback reports when an utterance is sent and when
// its response arrives.
func WithAwaitingResponseCallback(callback func(awaiting bool)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onAwaitingResponse = callback }
}

// WithNoticeCallback receives one-line, user-facing problem reports.
func WithNoticeCallback(callback func(message string, err error)) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks.onNotice = callback }
}
