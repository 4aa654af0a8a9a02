package orchestration

import (
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/stella-core/core/events"
)

func TestRealtimeDropReconnectsCurrentSession(t *testing.T) {
	recorder := &eventRecorder{}
	h := newHarness(t, WithEventHandler(recorder.record))
	h.start(t)
	listening := h.activate(t)

	h.realtime.Drop()

	waitForCondition(t, time.Second, "realtime reconnect", func() bool { return len(h.realtime.Connects()) == 2 })
	waitForCondition(t, time.Second, "realtime handler bound again", h.realtime.Bound)
	if got := h.realtime.Connects()[1]["session_id"]; got != listening.SessionID {
		t.Fatalf("expected reconnect for session %s, got %q", listening.SessionID, got)
	}

	notices := eventsOfType[events.Notice](recorder)
	if len(notices) != 1 || !errors.Is(notices[0].Err, ErrTransport) {
		t.Fatalf("expected one transport notice, got %+v", notices)
	}
	if state := h.o.Snapshot().State; state != StateActiveListening {
		t.Fatalf("expected to keep listening, got %s", state)
	}

	h.realtime.Deliver(t, listening.SessionID, "Pedido confirmado")
	h.waitForState(t, StateSpeaking)
}

func TestRealtimeCloseOnDeactivateIsNotReportedAsDrop(t *testing.T) {
	recorder := &eventRecorder{}
	h := newHarness(t, WithEventHandler(recorder.record))
	h.start(t)
	h.activate(t)

	h.o.Deactivate()
	waitForCondition(t, time.Second, "realtime disconnect", func() bool { return h.realtime.Disconnects() == 1 })
	h.realtime.Drop()
	time.Sleep(50 * time.Millisecond)

	if got := len(h.realtime.Connects()); got != 1 {
		t.Fatalf("expected no reconnect after deactivate, got %d connects", got)
	}
	if got := recorder.Count(events.KindNotice); got != 0 {
		t.Fatalf("expected no notice, got %d", got)
	}
}

func TestRepeatedRealtimeDropsStopReconnecting(t *testing.T) {
	recorder := &eventRecorder{}
	h := newHarness(t, WithEventHandler(recorder.record), WithRestartBudget(2, time.Hour))
	h.start(t)
	h.activate(t)

	for want := 2; want <= 3; want++ {
		h.realtime.Drop()
		waitForCondition(t, time.Second, "realtime reconnect", func() bool { return len(h.realtime.Connects()) == want })
		waitForCondition(t, time.Second, "realtime handler bound again", h.realtime.Bound)
	}

	h.realtime.Drop()
	waitForCondition(t, time.Second, "final notice", func() bool { return recorder.Count(events.KindNotice) == 3 })
	time.Sleep(50 * time.Millisecond)

	if got := len(h.realtime.Connects()); got != 3 {
		t.Fatalf("expected reconnects to stop after the budget, got %d connects", got)
	}
	if h.realtime.Bound() {
		t.Fatalf("expected the dropped binding to be released")
	}
}
