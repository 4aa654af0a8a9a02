package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/stella-core/core/audio"
	"github.com/koscakluka/stella-core/core/backend"
	"github.com/koscakluka/stella-core/core/events"
	"github.com/koscakluka/stella-core/core/speechtotext"
	"github.com/koscakluka/stella-core/core/texttospeech"
)

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

// microphoneMonitor records recognizer claims and counts overlaps.
type microphoneMonitor struct {
	mu         sync.Mutex
	running    map[string]bool
	violations int
}

func newMicrophoneMonitor() *microphoneMonitor {
	return &microphoneMonitor{running: map[string]bool{}}
}

func (m *microphoneMonitor) claim(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for other, running := range m.running {
		if running && other != name {
			m.violations++
		}
	}
	m.running[name] = true
}

func (m *microphoneMonitor) release(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[name] = false
}

func (m *microphoneMonitor) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations
}

type recognizerStub struct {
	name    string
	monitor *microphoneMonitor

	mu          sync.Mutex
	options     speechtotext.RecognitionOptions
	running     bool
	attempts    int
	starts      int
	stops       int
	startErr    error
	unavailable error
	// held, when set, keeps every Start waiting until it is closed, or
	// until the start context ends unless ignoreCancel is set.
	held         chan struct{}
	ignoreCancel bool
}

func newRecognizerStub(name string, monitor *microphoneMonitor) *recognizerStub {
	return &recognizerStub{name: name, monitor: monitor}
}

func (r *recognizerStub) Start(ctx context.Context, opts ...speechtotext.RecognitionOption) error {
	r.mu.Lock()
	r.attempts++
	held, ignoreCancel := r.held, r.ignoreCancel
	r.mu.Unlock()

	if held != nil {
		if ignoreCancel {
			<-held
		} else {
			select {
			case <-held:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.startErr != nil {
		return r.startErr
	}
	if r.running {
		return errors.New("already running")
	}
	r.options = speechtotext.NewRecognitionOptions(opts...)
	r.running = true
	r.starts++
	r.monitor.claim(r.name)
	return nil
}

// Stop ends the run and reports the end late, the way real engines do.
func (r *recognizerStub) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	r.stops++
	r.monitor.release(r.name)
	go r.options.EndedCallback()
	return nil
}

func (r *recognizerStub) Available() error {
	return r.unavailable
}

// Say delivers a final fragment if the recognizer is running.
func (r *recognizerStub) Say(fragment string) bool {
	r.mu.Lock()
	running, options := r.running, r.options
	r.mu.Unlock()

	if !running {
		return false
	}
	options.FinalFragmentCallback(fragment)
	return true
}

// Die ends the run without a Stop call.
func (r *recognizerStub) Die() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.monitor.release(r.name)
	options := r.options
	r.mu.Unlock()

	options.EndedCallback()
}

// HoldStarts makes later Starts wait until the returned release is called.
func (r *recognizerStub) HoldStarts(ignoreCancel bool) (release func()) {
	held := make(chan struct{})
	r.mu.Lock()
	r.held = held
	r.ignoreCancel = ignoreCancel
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			r.held = nil
			r.mu.Unlock()
			close(held)
		})
	}
}

func (r *recognizerStub) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func (r *recognizerStub) SetStartErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = err
}

func (r *recognizerStub) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *recognizerStub) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *recognizerStub) Options() speechtotext.RecognitionOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.options
}

type synthesizerStub struct {
	mu    sync.Mutex
	texts []string
	err   error
	// gate, when set, holds every synthesis until it is closed.
	gate chan struct{}
}

func (s *synthesizerStub) Synthesize(ctx context.Context, text string, _ texttospeech.VoiceConfig) (io.ReadCloser, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	err, gate := s.err, s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("audio:" + text)), nil
}

func (s *synthesizerStub) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type playbackStub struct {
	player  *playerStub
	clip    string
	onEnded func(error)

	mu      sync.Mutex
	stopped bool
	ended   bool
}

func (p *playbackStub) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	return nil
}

// Finish reports end of audio unless the playback was stopped.
func (p *playbackStub) Finish(err error) {
	p.mu.Lock()
	if p.stopped || p.ended {
		p.mu.Unlock()
		return
	}
	p.ended = true
	p.mu.Unlock()

	p.onEnded(err)
}

type playerStub struct {
	mu        sync.Mutex
	playbacks []*playbackStub
	playErr   error
}

func (p *playerStub) Play(_ context.Context, clip io.Reader, onEnded func(error)) (audio.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playErr != nil {
		return nil, p.playErr
	}
	data, err := io.ReadAll(clip)
	if err != nil {
		return nil, err
	}
	playback := &playbackStub{player: p, clip: string(data), onEnded: onEnded}
	p.playbacks = append(p.playbacks, playback)
	return playback, nil
}

func (p *playerStub) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (p *playerStub) Playbacks() []*playbackStub {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*playbackStub(nil), p.playbacks...)
}

func (p *playerStub) Last() *playbackStub {
	playbacks := p.Playbacks()
	if len(playbacks) == 0 {
		return nil
	}
	return playbacks[len(playbacks)-1]
}

type realtimeStub struct {
	mu           sync.Mutex
	connects     []map[string]string
	subscribed   []string
	handlers     map[string]func([]byte)
	unsubscribed int
	disconnects  int
	connectErr   error
	done         chan struct{}
	dropped      bool
}

func newRealtimeStub() *realtimeStub {
	return &realtimeStub{handlers: map[string]func([]byte){}}
}

func (r *realtimeStub) Connect(_ context.Context, authParams map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects = append(r.connects, authParams)
	if r.connectErr != nil {
		return r.connectErr
	}
	r.done = make(chan struct{})
	r.dropped = false
	return nil
}

func (r *realtimeStub) Subscribe(_ context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribed = append(r.subscribed, channel)
	return nil
}

func (r *realtimeStub) Bind(channel, event string, handler func([]byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[channel+"/"+event] = handler
}

func (r *realtimeStub) UnbindAll(channel, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, channel+"/"+event)
}

func (r *realtimeStub) Unsubscribe(string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscribed++
	return nil
}

func (r *realtimeStub) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	r.endConnection()
	return nil
}

func (r *realtimeStub) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *realtimeStub) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dropped {
		return errors.New("socket closed by server")
	}
	return nil
}

// Drop ends the connection the way a server going away does.
func (r *realtimeStub) Drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped = true
	r.endConnection()
}

func (r *realtimeStub) endConnection() {
	if r.done == nil {
		return
	}
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

func (r *realtimeStub) Connects() []map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]string(nil), r.connects...)
}

func (r *realtimeStub) Bound() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[DefaultRealtimeChannel+"/"+DefaultRealtimeEvent]
	return ok
}

func (r *realtimeStub) Disconnects() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnects
}

// Deliver sends a server-speech-output payload through the bound handler.
func (r *realtimeStub) Deliver(t *testing.T, sessionID, response string) {
	t.Helper()

	r.mu.Lock()
	handler := r.handlers[DefaultRealtimeChannel+"/"+DefaultRealtimeEvent]
	r.mu.Unlock()
	if handler == nil {
		t.Fatalf("no realtime handler bound")
	}

	data, err := json.Marshal(backend.SpeechOutput{
		SessionID: sessionID,
		Data:      backend.SpeechOutputData{Response: response},
	})
	if err != nil {
		t.Fatalf("failed to marshal speech output: %v", err)
	}
	handler(data)
}

type sentUtterance struct {
	sessionID string
	text      string
}

type senderStub struct {
	mu   sync.Mutex
	sent []sentUtterance
	err  error
}

func (s *senderStub) Send(_ context.Context, sessionID string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentUtterance{sessionID: sessionID, text: text})
	return s.err
}

func (s *senderStub) Sent() []sentUtterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentUtterance(nil), s.sent...)
}

// harness wires an orchestrator to stubs with short timings.
type harness struct {
	o           *Orchestrator
	monitor     *microphoneMonitor
	passive     *recognizerStub
	active      *recognizerStub
	synthesizer *synthesizerStub
	player      *playerStub
	realtime    *realtimeStub
	sender      *senderStub

	mu     sync.Mutex
	states []ConversationState
}

var testTimings = Timings{
	WakeTransition: 50 * time.Millisecond,
	Inactivity:     120 * time.Millisecond,
	PassiveRestart: 20 * time.Millisecond,
	ActiveRestart:  20 * time.Millisecond,
}

func newHarness(t *testing.T, opts ...OrchestratorOption) *harness {
	t.Helper()

	monitor := newMicrophoneMonitor()
	h := &harness{
		monitor:     monitor,
		passive:     newRecognizerStub("passive", monitor),
		active:      newRecognizerStub("active", monitor),
		synthesizer: &synthesizerStub{},
		player:      &playerStub{},
		realtime:    newRealtimeStub(),
		sender:      &senderStub{},
	}

	baseOpts := []OrchestratorOption{
		WithRecognizers(h.passive, h.active),
		WithSynthesizer(h.synthesizer),
		WithPlayer(h.player),
		WithRealtime(h.realtime),
		WithSpeechSender(h.sender),
		WithTimings(testTimings),
		WithSecureContext(true),
		WithStateChangedCallback(func(_, to ConversationState) {
			h.mu.Lock()
			h.states = append(h.states, to)
			h.mu.Unlock()
		}),
	}
	h.o = NewOrchestrator(append(baseOpts, opts...)...)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		h.o.Close()
		cancel()
		if violations := h.monitor.Violations(); violations != 0 {
			t.Errorf("expected recognizers never to overlap, got %d overlaps", violations)
		}
	})
	if err := h.o.Start(ctx); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
}

func (h *harness) States() []ConversationState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ConversationState(nil), h.states...)
}

func (h *harness) waitForState(t *testing.T, state ConversationState) {
	t.Helper()
	waitForCondition(t, 2*time.Second, "state "+state.String(), func() bool {
		return h.o.Snapshot().State == state
	})
}

// activate starts a conversation and waits until the active recognizer is
// listening.
func (h *harness) activate(t *testing.T) Snapshot {
	t.Helper()

	if err := h.o.Activate(OriginManual); err != nil {
		t.Fatalf("expected activation to succeed, got %v", err)
	}
	h.waitForState(t, StateActiveListening)
	waitForCondition(t, time.Second, "active recognizer running", func() bool { return h.recognizerRunning(roleActive) })
	waitForCondition(t, time.Second, "realtime handler bound", h.realtime.Bound)
	return h.o.Snapshot()
}

// recognizerRunning reads the loop's view of a recognizer, which trails the
// stub by one posted start result.
func (h *harness) recognizerRunning(role recognizerRole) bool {
	var running bool
	h.o.runtime.do(func() { running = h.o.handle(role).running })
	return running
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) record(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) Count(kind events.Kind) int {
	count := 0
	for _, event := range r.Events() {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func eventsOfType[T events.Event](r *eventRecorder) []T {
	matched := []T{}
	for _, event := range r.Events() {
		if typed, ok := event.(T); ok {
			matched = append(matched, typed)
		}
	}
	return matched
}
