package detector

import (
	"fmt"
	"sync/atomic"
	"time"

	"arpguard/internal/capture"
	"arpguard/internal/metrics"
	"arpguard/internal/model"

	"github.com/sirupsen/logrus"
)

// FeaturePatternMatching gates the optional signature-based detection.
const FeaturePatternMatching = "pattern_matching"

// AlertSink is where findings that survive the cooldown become alerts. The
// alert manager satisfies this.
type AlertSink interface {
	CreateAlert(typ model.AlertType, priority model.Priority, message, source string, details map[string]interface{}) model.Alert
}

// FeatureGate answers whether an optional detection is licensed/enabled. It
// never alters the correctness of the checks that remain on.
type FeatureGate interface {
	HasFeature(name string) bool
}

// Config tunes the detection engine. Zero values fall back to defaults.
type Config struct {
	ProtectedAddresses []string
	BaselineRate       float64       // expected frames/sec per source MAC
	RateFactor         float64       // anomaly threshold multiplier
	RateWindow         time.Duration // sliding window for rate counting
	Cooldown           time.Duration // per-(type,source) alert suppression
	PollTimeout        time.Duration // queue poll so stop is observed promptly
	Signatures         []model.Signature
}

func (c *Config) applyDefaults() {
	if c.BaselineRate <= 0 {
		c.BaselineRate = 10
	}
	if c.RateFactor <= 0 {
		c.RateFactor = 5
	}
	if c.RateWindow <= 0 {
		c.RateWindow = 60 * time.Second
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 250 * time.Millisecond
	}
}

// Engine consumes frames from the queue and applies the anomaly checks in
// order, promoting findings to alerts through the sink. All mutable
// detection state (ARP table, rate windows, cooldowns) is owned by the
// instance, so independent engines coexist cleanly.
type Engine struct {
	cfg       Config
	queue     *capture.FrameQueue
	table     *ARPTable
	protected map[string]struct{}
	rates     *rateTracker
	cooldowns map[string]time.Time
	sink      AlertSink
	gate      FeatureGate

	processed atomic.Uint64
	rejected  atomic.Uint64

	logger *logrus.Logger
	m      *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

// NewEngine wires a detection engine onto a frame queue.
func NewEngine(cfg Config, queue *capture.FrameQueue, sink AlertSink, gate FeatureGate, logger *logrus.Logger, m *metrics.Metrics) *Engine {
	cfg.applyDefaults()

	protected := make(map[string]struct{}, len(cfg.ProtectedAddresses))
	for _, ip := range cfg.ProtectedAddresses {
		protected[ip] = struct{}{}
	}

	return &Engine{
		cfg:       cfg,
		queue:     queue,
		table:     NewARPTable(),
		protected: protected,
		rates:     newRateTracker(cfg.RateWindow),
		cooldowns: make(map[string]time.Time),
		sink:      sink,
		gate:      gate,
		logger:    logger,
		m:         m,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Table exposes the engine's ARP table for export and instrumentation.
func (e *Engine) Table() *ARPTable {
	return e.table
}

// Processed returns the number of frames run through the checks.
func (e *Engine) Processed() uint64 {
	return e.processed.Load()
}

// Rejected returns the number of malformed frames skipped.
func (e *Engine) Rejected() uint64 {
	return e.rejected.Load()
}

// Run is the single-consumer detection loop. It polls the queue with a short
// timeout so the stop signal is observed within bounded latency.
func (e *Engine) Run() {
	defer close(e.done)
	e.logger.Info("Detection engine started")

	lastPrune := time.Now()
	for {
		select {
		case <-e.stop:
			e.logger.Info("Detection engine stopped")
			return
		default:
		}

		frame, ok := e.queue.Dequeue(e.cfg.PollTimeout)
		if ok {
			e.ProcessFrame(frame)
		}

		if now := time.Now(); now.Sub(lastPrune) > e.cfg.RateWindow {
			e.rates.prune(now)
			e.pruneCooldowns(now)
			lastPrune = now
		}
	}
}

// Stop signals the loop and joins it with a bounded timeout, logging rather
// than failing when the join times out.
func (e *Engine) Stop(timeout time.Duration) {
	close(e.stop)
	select {
	case <-e.done:
	case <-time.After(timeout):
		e.logger.Warnf("Detection engine did not stop within %v", timeout)
	}
}

// ProcessFrame runs one frame through the ordered checks. Exported so tests
// and replay tooling can drive the engine synchronously.
func (e *Engine) ProcessFrame(frame model.Frame) {
	frame.Normalize()
	if err := frame.Validate(); err != nil {
		e.rejected.Add(1)
		e.m.FramesRejected.Inc()
		e.logger.Debugf("Rejected malformed frame: %v", err)
		return
	}

	e.processed.Add(1)
	e.m.FramesProcessed.Inc()
	ts := frame.Timestamp

	// 1. Consistency: ethernet source must match the ARP sender.
	if frame.EthSrc != frame.SenderMAC {
		e.emit(ts, model.AlertFrameTampering, model.PriorityHigh,
			fmt.Sprintf("Ethernet source %s does not match ARP sender %s", frame.EthSrc, frame.SenderMAC),
			frame.EthSrc,
			map[string]interface{}{
				"eth_src":        frame.EthSrc,
				"arp_sender_mac": frame.SenderMAC,
			})
	}

	// 2+3. Protected-address lookup and spoofing check. The table keeps the
	// newest mapping even when the change raised an alert.
	_, isProtected := e.protected[frame.SenderIP]
	prev, changed := e.table.Observe(frame.SenderIP, frame.SenderMAC, ts)
	if changed {
		e.m.TableUpdates.Inc()
		priority := model.PriorityMedium
		if isProtected {
			priority = model.PriorityCritical
		}
		e.emit(ts, model.AlertSpoofing, priority,
			fmt.Sprintf("IP %s changed from %s to %s", frame.SenderIP, prev.MAC, frame.SenderMAC),
			frame.SenderMAC,
			map[string]interface{}{
				"original_mac": prev.MAC,
				"new_mac":      frame.SenderMAC,
				"is_gateway":   isProtected,
				"sender_ip":    frame.SenderIP,
			})
	}

	// 4. Rate anomaly over the sliding window.
	rate := e.rates.Observe(frame.EthSrc, ts)
	threshold := e.cfg.BaselineRate * e.cfg.RateFactor
	if rate > threshold {
		e.emit(ts, model.AlertRateAnomaly, model.PriorityHigh,
			fmt.Sprintf("Source %s sending %.1f frames/sec (threshold %.1f)", frame.EthSrc, rate, threshold),
			frame.EthSrc,
			map[string]interface{}{
				"current_rate":  rate,
				"baseline_rate": e.cfg.BaselineRate,
				"threshold":     threshold,
			})
	}

	// 5. Signature patterns, behind the feature gate.
	if len(e.cfg.Signatures) > 0 && e.gate.HasFeature(FeaturePatternMatching) {
		for i := range e.cfg.Signatures {
			sig := &e.cfg.Signatures[i]
			if sig.Match(&frame) {
				e.emit(ts, model.AlertPatternMatch, model.PriorityMedium,
					fmt.Sprintf("Frame matched signature %s: %s", sig.ID, sig.Description),
					frame.SenderMAC,
					map[string]interface{}{
						"signature_id": sig.ID,
						"description":  sig.Description,
					})
			}
		}
	}
}

// emit promotes a finding to an alert unless the same (type, source) pair
// fired within the cooldown window.
func (e *Engine) emit(now time.Time, typ model.AlertType, priority model.Priority, message, source string, details map[string]interface{}) {
	key := string(typ) + "|" + source
	if last, ok := e.cooldowns[key]; ok && now.Sub(last) < e.cfg.Cooldown {
		e.m.FindingsSuppressed.WithLabelValues(string(typ)).Inc()
		return
	}
	e.cooldowns[key] = now
	e.sink.CreateAlert(typ, priority, message, source, details)
}

func (e *Engine) pruneCooldowns(now time.Time) {
	for key, last := range e.cooldowns {
		if now.Sub(last) >= e.cfg.Cooldown {
			delete(e.cooldowns, key)
		}
	}
}
