package notify

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"arpguard/internal/metrics"
	"arpguard/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type recordingNotifier struct {
	mu     sync.Mutex
	name   string
	alerts []model.Alert
	err    error
	panics bool
	delay  time.Duration
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) SendAlert(alert model.Alert) error {
	if n.panics {
		panic("channel bug")
	}
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	n.mu.Lock()
	n.alerts = append(n.alerts, alert)
	n.mu.Unlock()
	return n.err
}

func (n *recordingNotifier) received() []model.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.Alert, len(n.alerts))
	copy(out, n.alerts)
	return out
}

func newTestDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewDispatcher(cfg, logger, metrics.New(prometheus.NewRegistry()))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestDispatchFansOutToAllChannels(t *testing.T) {
	d := newTestDispatcher(DispatcherConfig{})
	first := &recordingNotifier{name: "first"}
	second := &recordingNotifier{name: "second"}
	d.Register(first)
	d.Register(second)
	d.Start()
	defer d.Stop(time.Second)

	d.Dispatch(model.Alert{ID: 7, Priority: model.PriorityHigh})

	waitFor(t, func() bool {
		return len(first.received()) == 1 && len(second.received()) == 1
	})
	if first.received()[0].ID != 7 {
		t.Errorf("channel received alert %d, want 7", first.received()[0].ID)
	}
}

func TestFailingChannelDoesNotAffectOthers(t *testing.T) {
	d := newTestDispatcher(DispatcherConfig{})
	broken := &recordingNotifier{name: "broken", err: errors.New("smtp down")}
	panicky := &recordingNotifier{name: "panicky", panics: true}
	healthy := &recordingNotifier{name: "healthy"}
	d.Register(broken)
	d.Register(panicky)
	d.Register(healthy)
	d.Start()
	defer d.Stop(time.Second)

	for i := 0; i < 3; i++ {
		d.Dispatch(model.Alert{ID: int64(i + 1)})
	}

	waitFor(t, func() bool { return len(healthy.received()) == 3 })
}

func TestSlowChannelDeliveryIsBounded(t *testing.T) {
	d := newTestDispatcher(DispatcherConfig{Workers: 1, SendTimeout: 20 * time.Millisecond})
	slow := &recordingNotifier{name: "slow", delay: 500 * time.Millisecond}
	fast := &recordingNotifier{name: "fast"}
	d.Register(slow)
	d.Register(fast)
	d.Start()
	defer d.Stop(time.Second)

	d.Dispatch(model.Alert{ID: 1})

	// The single worker times out on the slow channel and still reaches the
	// fast one well before the slow send would have finished.
	waitFor(t, func() bool { return len(fast.received()) == 1 })
}

func TestStopDrainsQueuedWork(t *testing.T) {
	d := newTestDispatcher(DispatcherConfig{Workers: 2})
	sink := &recordingNotifier{name: "sink"}
	d.Register(sink)
	d.Start()

	for i := 0; i < 10; i++ {
		d.Dispatch(model.Alert{ID: int64(i + 1)})
	}
	d.Stop(2 * time.Second)

	if got := len(sink.received()); got != 10 {
		t.Fatalf("delivered %d alerts after Stop, want 10", got)
	}
}

func TestWithMinPriorityFiltersBelowThreshold(t *testing.T) {
	inner := &recordingNotifier{name: "ui"}
	wrapped := WithMinPriority(inner, model.PriorityHigh)

	if wrapped.Name() != "ui" {
		t.Errorf("wrapper changed channel name to %s", wrapped.Name())
	}

	if err := wrapped.SendAlert(model.Alert{ID: 1, Priority: model.PriorityLow}); err != nil {
		t.Fatal(err)
	}
	if err := wrapped.SendAlert(model.Alert{ID: 2, Priority: model.PriorityHigh}); err != nil {
		t.Fatal(err)
	}
	if err := wrapped.SendAlert(model.Alert{ID: 3, Priority: model.PriorityCritical}); err != nil {
		t.Fatal(err)
	}

	got := inner.received()
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 3 {
		t.Fatalf("forwarded alerts = %+v, want ids 2 and 3 only", got)
	}
}
