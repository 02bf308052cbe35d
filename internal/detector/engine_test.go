package detector

import (
	"io"
	"testing"
	"time"

	"arpguard/internal/capture"
	"arpguard/internal/metrics"
	"arpguard/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type recordingSink struct {
	alerts []model.Alert
}

func (s *recordingSink) CreateAlert(typ model.AlertType, priority model.Priority, message, source string, details map[string]interface{}) model.Alert {
	alert := model.Alert{
		ID:       int64(len(s.alerts) + 1),
		Type:     typ,
		Priority: priority,
		Message:  message,
		Source:   source,
		Details:  details,
		Status:   model.StatusActive,
	}
	s.alerts = append(s.alerts, alert)
	return alert
}

func (s *recordingSink) byType(typ model.AlertType) []model.Alert {
	var out []model.Alert
	for _, a := range s.alerts {
		if a.Type == typ {
			out = append(out, a)
		}
	}
	return out
}

type staticGate bool

func (g staticGate) HasFeature(string) bool { return bool(g) }

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestEngine(t *testing.T, cfg Config, gate FeatureGate) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	m := metrics.New(prometheus.NewRegistry())
	engine := NewEngine(cfg, capture.NewFrameQueue(16), sink, gate, testLogger(), m)
	return engine, sink
}

func frameAt(ts time.Time, mac, ip string) model.Frame {
	return model.Frame{
		Op:        model.OpReply,
		EthSrc:    mac,
		EthDst:    "ff:ff:ff:ff:ff:ff",
		SenderMAC: mac,
		SenderIP:  ip,
		Timestamp: ts,
	}
}

func TestGatewaySpoofRaisesSingleCriticalAlert(t *testing.T) {
	engine, sink := newTestEngine(t, Config{
		ProtectedAddresses: []string{"192.168.1.1"},
	}, staticGate(false))

	base := time.Now()
	engine.ProcessFrame(frameAt(base, "aa:aa:aa:aa:aa:aa", "192.168.1.1"))
	engine.ProcessFrame(frameAt(base.Add(time.Second), "bb:bb:bb:bb:bb:bb", "192.168.1.1"))

	spoofs := sink.byType(model.AlertSpoofing)
	if len(spoofs) != 1 {
		t.Fatalf("got %d spoofing alerts, want 1", len(spoofs))
	}

	alert := spoofs[0]
	if alert.Priority != model.PriorityCritical {
		t.Errorf("priority = %s, want CRITICAL", alert.Priority)
	}
	if got := alert.Details["original_mac"]; got != "aa:aa:aa:aa:aa:aa" {
		t.Errorf("original_mac = %v", got)
	}
	if got := alert.Details["new_mac"]; got != "bb:bb:bb:bb:bb:bb" {
		t.Errorf("new_mac = %v", got)
	}
	if got := alert.Details["is_gateway"]; got != true {
		t.Errorf("is_gateway = %v, want true", got)
	}
}

func TestNonProtectedSpoofIsMedium(t *testing.T) {
	engine, sink := newTestEngine(t, Config{}, staticGate(false))

	base := time.Now()
	engine.ProcessFrame(frameAt(base, "aa:aa:aa:aa:aa:aa", "10.0.0.5"))
	engine.ProcessFrame(frameAt(base.Add(time.Second), "bb:bb:bb:bb:bb:bb", "10.0.0.5"))

	spoofs := sink.byType(model.AlertSpoofing)
	if len(spoofs) != 1 {
		t.Fatalf("got %d spoofing alerts, want 1", len(spoofs))
	}
	if spoofs[0].Priority != model.PriorityMedium {
		t.Errorf("priority = %s, want MEDIUM", spoofs[0].Priority)
	}
	if got := spoofs[0].Details["is_gateway"]; got != false {
		t.Errorf("is_gateway = %v, want false", got)
	}
}

func TestTableNeverHoldsTwoMACsForOneIP(t *testing.T) {
	engine, _ := newTestEngine(t, Config{}, staticGate(false))

	macs := []string{
		"aa:aa:aa:aa:aa:aa",
		"bb:bb:bb:bb:bb:bb",
		"cc:cc:cc:cc:cc:cc",
		"aa:aa:aa:aa:aa:aa",
	}
	base := time.Now()
	for i, mac := range macs {
		engine.ProcessFrame(frameAt(base.Add(time.Duration(i)*time.Second), mac, "10.0.0.9"))
	}

	entry, ok := engine.Table().Lookup("10.0.0.9")
	if !ok {
		t.Fatal("entry missing after processing")
	}
	if entry.MAC != "aa:aa:aa:aa:aa:aa" {
		t.Errorf("table holds %s, want the most recent mapping", entry.MAC)
	}
	if engine.Table().Len() != 1 {
		t.Errorf("table has %d entries for one IP", engine.Table().Len())
	}
}

func TestCooldownSuppressesRepeatFindings(t *testing.T) {
	engine, sink := newTestEngine(t, Config{
		ProtectedAddresses: []string{"192.168.1.1"},
		Cooldown:           60 * time.Second,
	}, staticGate(false))

	base := time.Now()
	engine.ProcessFrame(frameAt(base, "aa:aa:aa:aa:aa:aa", "192.168.1.1"))

	// The attacker flip-flops the mapping; repeats within the cooldown for
	// the same (type, source) pair stay suppressed.
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(2*i+1) * time.Second)
		engine.ProcessFrame(frameAt(ts, "bb:bb:bb:bb:bb:bb", "192.168.1.1"))
		engine.ProcessFrame(frameAt(ts.Add(time.Second), "aa:aa:aa:aa:aa:aa", "192.168.1.1"))
	}

	perSource := make(map[string]int)
	for _, a := range sink.byType(model.AlertSpoofing) {
		perSource[a.Source]++
	}
	for source, count := range perSource {
		if count > 1 {
			t.Errorf("source %s produced %d alerts within one cooldown window", source, count)
		}
	}

	// After the cooldown expires the same finding fires again.
	engine.ProcessFrame(frameAt(base.Add(2*time.Minute), "bb:bb:bb:bb:bb:bb", "192.168.1.1"))
	if got := perSourceCount(sink, "bb:bb:bb:bb:bb:bb"); got != 2 {
		t.Errorf("post-cooldown finding produced %d alerts total, want 2", got)
	}
}

func perSourceCount(sink *recordingSink, source string) int {
	count := 0
	for _, a := range sink.byType(model.AlertSpoofing) {
		if a.Source == source {
			count++
		}
	}
	return count
}

func TestEthernetMismatchRaisesTampering(t *testing.T) {
	engine, sink := newTestEngine(t, Config{}, staticGate(false))

	f := frameAt(time.Now(), "aa:aa:aa:aa:aa:aa", "10.0.0.1")
	f.SenderMAC = "bb:bb:bb:bb:bb:bb"
	engine.ProcessFrame(f)

	tampering := sink.byType(model.AlertFrameTampering)
	if len(tampering) != 1 {
		t.Fatalf("got %d tampering alerts, want 1", len(tampering))
	}
	if tampering[0].Priority != model.PriorityHigh {
		t.Errorf("priority = %s, want HIGH", tampering[0].Priority)
	}
}

func TestRateAnomalyOverThreshold(t *testing.T) {
	engine, sink := newTestEngine(t, Config{
		BaselineRate: 1,
		RateFactor:   2,
		RateWindow:   time.Second,
	}, staticGate(false))

	base := time.Now()
	for i := 0; i < 5; i++ {
		engine.ProcessFrame(frameAt(base.Add(time.Duration(i)*time.Millisecond), "aa:aa:aa:aa:aa:aa", "10.0.0.1"))
	}

	anomalies := sink.byType(model.AlertRateAnomaly)
	if len(anomalies) != 1 {
		t.Fatalf("got %d rate anomalies, want exactly 1 within the cooldown", len(anomalies))
	}
	details := anomalies[0].Details
	if details["baseline_rate"] != 1.0 {
		t.Errorf("baseline_rate = %v", details["baseline_rate"])
	}
	if details["threshold"] != 2.0 {
		t.Errorf("threshold = %v", details["threshold"])
	}
	if rate, _ := details["current_rate"].(float64); rate <= 2.0 {
		t.Errorf("current_rate = %v, want > threshold", details["current_rate"])
	}
}

func TestPatternMatchRespectsFeatureGate(t *testing.T) {
	sig := model.Signature{
		ID:        "bcast-reply",
		Op:        "reply",
		TargetMAC: "ff:ff:ff:ff:ff:ff",
	}

	run := func(gate staticGate) []model.Alert {
		engine, sink := newTestEngine(t, Config{Signatures: []model.Signature{sig}}, gate)
		f := frameAt(time.Now(), "aa:aa:aa:aa:aa:aa", "10.0.0.1")
		f.TargetMAC = "ff:ff:ff:ff:ff:ff"
		engine.ProcessFrame(f)
		return sink.byType(model.AlertPatternMatch)
	}

	if matches := run(staticGate(true)); len(matches) != 1 {
		t.Fatalf("gated on: got %d pattern alerts, want 1", len(matches))
	} else if matches[0].Details["signature_id"] != "bcast-reply" {
		t.Errorf("signature_id = %v", matches[0].Details["signature_id"])
	}

	if matches := run(staticGate(false)); len(matches) != 0 {
		t.Fatalf("gated off: got %d pattern alerts, want 0", len(matches))
	}
}

func TestMalformedFramesAreSkippedAndCounted(t *testing.T) {
	engine, sink := newTestEngine(t, Config{}, staticGate(false))

	frames := []model.Frame{
		{Op: model.OpReply, EthSrc: "not-a-mac", SenderMAC: "aa:aa:aa:aa:aa:aa", SenderIP: "10.0.0.1"},
		{Op: model.OpReply, EthSrc: "aa:aa:aa:aa:aa:aa", SenderMAC: "aa:aa:aa:aa:aa:aa", SenderIP: "bogus"},
		{Op: model.OpUnknown, EthSrc: "aa:aa:aa:aa:aa:aa", SenderMAC: "aa:aa:aa:aa:aa:aa", SenderIP: "10.0.0.1"},
	}
	for _, f := range frames {
		engine.ProcessFrame(f)
	}

	if got := engine.Rejected(); got != 3 {
		t.Errorf("Rejected() = %d, want 3", got)
	}
	if got := engine.Processed(); got != 0 {
		t.Errorf("Processed() = %d, want 0", got)
	}
	if len(sink.alerts) != 0 {
		t.Errorf("malformed frames produced %d alerts", len(sink.alerts))
	}
}

func TestRunStopsWithinBoundedLatency(t *testing.T) {
	engine, _ := newTestEngine(t, Config{PollTimeout: 50 * time.Millisecond}, staticGate(false))

	go engine.Run()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	engine.Stop(3 * time.Second)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Stop took %v, want well under the bound", elapsed)
	}
}
