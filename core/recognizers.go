package orchestration

import (
	"context"
	"time"

	"github.com/koscakluka/stella-core/core/events"
	"github.com/koscakluka/stella-core/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

type recognizerRole string

const (
	rolePassive recognizerRole = "passive"
	roleActive  recognizerRole = "active"
)

// recognizerHandle wraps one recognizer for the loop. Every Start gets a run
// id; callbacks carry it and are dropped once the run is no longer current,
// so a stopped recognizer can never leak fragments into a later run.
//
// Starts run off the loop. While one is in flight startPending is set and
// startRun holds its run id; a stop in the meantime makes it stale.
type recognizerHandle struct {
	role   recognizerRole
	client speechtotext.Recognizer

	language        string
	maxAlternatives int

	running bool
	run     uint64

	startPending bool
	startRun     uint64
	cancelStart  context.CancelFunc
	// wanted records a start that was held back by a pending start and
	// must be retried once that resolves.
	wanted bool

	restartTimer *time.Timer
	restarts     *rate.Limiter
	parked       bool
}

func newRecognizerHandle(role recognizerRole, maxAlternatives int) recognizerHandle {
	return recognizerHandle{
		role:            role,
		language:        defaultRecognitionLanguage,
		maxAlternatives: maxAlternatives,
	}
}

func (h *recognizerHandle) isConfigured() bool {
	return h != nil && !isNilClient(h.client)
}

// isStarting is true while the current run's Start call is in flight.
func (h *recognizerHandle) isStarting() bool {
	return h.startPending && h.startRun == h.run
}

func (h *recognizerHandle) isCurrent(run uint64) bool {
	return h.run == run && (h.running || h.isStarting())
}

// rearm clears a parked recognizer and refills its restart budget.
func (h *recognizerHandle) rearm(burst int, interval time.Duration) {
	h.parked = false
	h.restarts = rate.NewLimiter(rate.Every(interval), burst)
}

// allowRestart spends one token of the restart budget. It parks the handle
// when the budget is exhausted.
func (h *recognizerHandle) allowRestart() bool {
	if h.parked {
		return false
	}
	if h.restarts != nil && !h.restarts.Allow() {
		h.parked = true
		return false
	}
	return true
}

// stop must run on the loop. The run id is bumped first so callbacks from
// the stopped run are ignored even if the engine fires them late. A start
// still in flight is cancelled and its client stopped when it reports back.
func (h *recognizerHandle) stop() {
	stopTimer(&h.restartTimer)
	h.wanted = false

	if h.isStarting() {
		h.run++
		if h.cancelStart != nil {
			h.cancelStart()
			h.cancelStart = nil
		}
		return
	}
	if !h.running {
		return
	}

	h.running = false
	h.run++
	if err := h.client.Stop(); err != nil {
		logger.Warn("failed to stop recognizer", "role", string(h.role), "error", err)
	}
}

func (o *Orchestrator) handle(role recognizerRole) *recognizerHandle {
	if role == rolePassive {
		return &o.passive
	}
	return &o.active
}

func (o *Orchestrator) otherHandle(h *recognizerHandle) *recognizerHandle {
	if h.role == rolePassive {
		return &o.active
	}
	return &o.passive
}

func (o *Orchestrator) restartDelay(role recognizerRole) time.Duration {
	if role == rolePassive {
		return o.timings.PassiveRestart
	}
	return o.timings.ActiveRestart
}

// wantsRecognizer reports whether the conversation state calls for h to run.
func (o *Orchestrator) wantsRecognizer(h *recognizerHandle) bool {
	if o.closing || h.parked || !h.isConfigured() {
		return false
	}
	if h.role == rolePassive {
		return o.state == StateIdle && o.hotwordEnabled()
	}
	return o.state == StateActiveListening
}

// startRecognizer launches a Start off the loop and returns at once. Only
// one Start per handle is in flight, and none while the other handle is
// still starting, so the two never hold the microphone together.
func (o *Orchestrator) startRecognizer(h *recognizerHandle) {
	stopTimer(&h.restartTimer)
	if !h.isConfigured() || h.running || h.isStarting() {
		return
	}
	if h.startPending || o.otherHandle(h).startPending {
		h.wanted = true
		return
	}

	h.wanted = false
	h.run++
	h.startPending = true
	h.startRun = h.run

	ctx, cancel := context.WithTimeout(o.baseContext, defaultRecognizerStartTimeout)
	h.cancelStart = cancel

	run, role, client := h.run, h.role, h.client
	opts := []speechtotext.RecognitionOption{
		speechtotext.WithFinalFragmentCallback(func(fragment string) {
			o.runtime.post(func() { o.onRecognizerFragment(role, run, fragment) })
		}),
		speechtotext.WithEndedCallback(func() {
			o.runtime.post(func() { o.onRecognizerEnded(role, run) })
		}),
		speechtotext.WithErrorCallback(func(err error) {
			o.logger.Debug("recognizer reported an error", "role", string(role), "error", err)
		}),
		speechtotext.WithLanguage(h.language),
		speechtotext.WithMaxAlternatives(h.maxAlternatives),
	}

	o.recognizerStarts.Add(1)
	go func() {
		defer o.recognizerStarts.Done()
		defer cancel()
		ctx, span := tracer.Start(ctx, "start recognizer")
		defer span.End()
		span.SetAttributes(attribute.String("recognizer.role", string(role)))

		err := panicSafeNamedWorker(string(role)+" recognizer start", func(ctx context.Context) error {
			return client.Start(ctx, opts...)
		})(ctx)

		if !o.runtime.do(func() { o.onRecognizerStarted(role, run, err) }) && err == nil {
			if err := client.Stop(); err != nil {
				logger.Warn("failed to stop recognizer after close", "role", string(role), "error", err)
			}
		}
	}()
}

// onRecognizerStarted applies a Start result. A stale result belongs to a
// run that was stopped while starting, so a successful client is stopped
// again right away.
func (o *Orchestrator) onRecognizerStarted(role recognizerRole, run uint64, err error) {
	h := o.handle(role)
	if h.startPending && h.startRun == run {
		h.startPending = false
		h.cancelStart = nil
	}

	switch {
	case run != h.run:
		if err == nil {
			if stopErr := h.client.Stop(); stopErr != nil {
				o.logger.Warn("failed to stop late recognizer", "role", string(role), "error", stopErr)
			}
		}

	case err != nil:
		h.run++
		o.logger.Warn("failed to start recognizer", "role", string(role), "error", err)
		if o.wantsRecognizer(h) {
			o.scheduleRestart(h, o.restartDelay(role))
		}

	case !o.wantsRecognizer(h):
		h.running = true
		h.stop()

	default:
		h.running = true
	}

	o.resumeWantedRecognizers()
}

// resumeWantedRecognizers retries starts that waited on a pending start.
func (o *Orchestrator) resumeWantedRecognizers() {
	for _, h := range []*recognizerHandle{&o.passive, &o.active} {
		if !h.wanted {
			continue
		}
		if !o.wantsRecognizer(h) {
			h.wanted = false
			continue
		}
		o.startRecognizer(h)
	}
}

func (o *Orchestrator) onRecognizerFragment(role recognizerRole, run uint64, fragment string) {
	h := o.handle(role)
	if !h.isCurrent(run) {
		return
	}

	switch role {
	case rolePassive:
		o.onPassiveFragment(fragment)
	case roleActive:
		o.onActiveFragment(fragment)
	}
}

func (o *Orchestrator) onPassiveFragment(fragment string) {
	if o.state != StateIdle || !o.matcher.Match(fragment) {
		return
	}

	o.logger.Info("hotword detected", "fragment", fragment)
	o.emit(events.NewHotwordDetected(fragment))
	o.passive.stop()
	if err := o.activate(OriginHotword); err != nil {
		o.logger.Warn("hotword activation failed", "error", err)
	}
}

func (o *Orchestrator) onActiveFragment(fragment string) {
	if o.state != StateActiveListening {
		return
	}
	if !o.buffer.Add(fragment) {
		return
	}

	o.emit(events.NewTranscriptUpdated(o.buffer.String()))
	o.resetFinalizer()
}

// onRecognizerEnded handles a run that ended on its own. Explicit stops bump
// the run id first, so they never reach the restart policy.
func (o *Orchestrator) onRecognizerEnded(role recognizerRole, run uint64) {
	h := o.handle(role)
	if !h.isCurrent(run) {
		return
	}
	h.running = false
	h.run++

	if o.wantsRecognizer(h) {
		o.scheduleRestart(h, o.restartDelay(role))
	}
}

// scheduleRestart restarts h after delay if the conversation is still in
// the state that wants it. Exhausting the restart budget parks h.
func (o *Orchestrator) scheduleRestart(h *recognizerHandle, delay time.Duration) {
	if !h.allowRestart() {
		o.onRecognizerParked(h)
		return
	}

	generation := o.generation
	wantState := o.state
	role := h.role
	stopTimer(&h.restartTimer)
	h.restartTimer = o.runtime.schedule(delay, func() {
		h := o.handle(role)
		if o.generation != generation || o.state != wantState || h.running || h.isStarting() {
			return
		}
		if !o.wantsRecognizer(h) {
			return
		}

		recognizerRestarts.Add(o.baseContext, 1, metric.WithAttributes(attribute.String("recognizer.role", string(role))))
		o.logger.Debug("restarting recognizer", "role", string(role))
		o.startRecognizer(h)
	})
}

func (o *Orchestrator) onRecognizerParked(h *recognizerHandle) {
	o.logger.Warn("recognizer parked after repeated failures", "role", string(h.role))
	o.notice("Speech recognition keeps failing", ErrRecognizerFailing)

	if h.role == roleActive {
		o.deactivate()
	}
}

// startPassiveIfIdle arms the hotword when the conversation rests in Idle.
func (o *Orchestrator) startPassiveIfIdle() {
	if !o.wantsRecognizer(&o.passive) {
		return
	}
	o.startRecognizer(&o.passive)
}

func (o *Orchestrator) startActive() {
	if !o.wantsRecognizer(&o.active) {
		return
	}
	o.startRecognizer(&o.active)
}
