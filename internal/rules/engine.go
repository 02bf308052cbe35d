package rules

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"arpguard/internal/alerts"
	"arpguard/internal/metrics"
	"arpguard/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config tunes the rule engine loop.
type Config struct {
	Interval  time.Duration // evaluation loop period
	QueueSize int           // buffered alert events between manager and loop
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Engine evaluates registered rules against alert events on its own periodic
// loop, fully decoupled from detection timing. Per-alert and per-action
// failures are logged and counted; the loop never dies because of them.
type Engine struct {
	cfg Config

	mu    sync.RWMutex
	rules []*model.Rule
	byID  map[string]*model.Rule

	// cooldowns is touched only by the run loop.
	cooldowns map[string]time.Time

	events     chan alerts.Event
	remediator Remediator
	runner     CommandRunner
	sink       LogSink

	logger *logrus.Logger
	m      *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

// NewEngine creates a rule engine with the injected action capabilities.
func NewEngine(cfg Config, remediator Remediator, runner CommandRunner, sink LogSink, logger *logrus.Logger, m *metrics.Metrics) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:        cfg,
		byID:       make(map[string]*model.Rule),
		cooldowns:  make(map[string]time.Time),
		events:     make(chan alerts.Event, cfg.QueueSize),
		remediator: remediator,
		runner:     runner,
		sink:       sink,
		logger:     logger,
		m:          m,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Register adds a rule. Rules are immutable once registered except for the
// enabled flag.
func (e *Engine) Register(rule model.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Cooldown <= 0 {
		rule.Cooldown = 60 * time.Second
	}
	if len(rule.Actions) == 0 {
		return fmt.Errorf("rule %s has no actions", rule.ID)
	}
	for _, action := range rule.Actions {
		switch action.Type {
		case model.ActionLog, model.ActionBlockSource:
		case model.ActionExecuteCommand:
			if action.Command == "" {
				return fmt.Errorf("rule %s: EXECUTE_COMMAND action without a command", rule.ID)
			}
		default:
			return fmt.Errorf("rule %s: unknown action type %q", rule.ID, action.Type)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.byID[rule.ID]; exists {
		return fmt.Errorf("rule %s already registered", rule.ID)
	}
	r := rule
	e.rules = append(e.rules, &r)
	e.byID[r.ID] = &r
	e.logger.Infof("Registered rule %s: %s", r.ID, r.Description)
	return nil
}

// SetEnabled toggles a rule at runtime.
func (e *Engine) SetEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("rule %s not found", id)
	}
	rule.Enabled = enabled
	e.logger.Infof("Rule %s enabled=%v", id, enabled)
	return nil
}

// Rules returns a snapshot of the registered rules.
func (e *Engine) Rules() []model.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// Observer returns the alert manager observer that feeds the engine's event
// queue. The feed never blocks alert creation: on a full queue the event is
// dropped and counted.
func (e *Engine) Observer() alerts.Observer {
	return func(ev alerts.Event) {
		select {
		case e.events <- ev:
		default:
			e.m.RuleEventsDropped.Inc()
			e.logger.Warnf("Rule engine queue full, dropping event for alert %d", ev.Alert.ID)
		}
	}
}

// Start launches the periodic evaluation loop.
func (e *Engine) Start() {
	go e.run()
}

// Stop signals the loop and joins it with a bounded timeout.
func (e *Engine) Stop(timeout time.Duration) {
	close(e.stop)
	select {
	case <-e.done:
	case <-time.After(timeout):
		e.logger.Warnf("Rule engine did not stop within %v", timeout)
	}
}

func (e *Engine) run() {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.logger.Infof("Rule engine started (interval %v)", e.cfg.Interval)
	lastPrune := time.Now()
	for {
		select {
		case <-e.stop:
			e.drain()
			e.logger.Info("Rule engine stopped")
			return
		case <-ticker.C:
			e.drain()
			if now := time.Now(); now.Sub(lastPrune) > time.Minute {
				e.pruneCooldowns(now)
				lastPrune = now
			}
		}
	}
}

// pruneCooldowns drops expired rule+source entries so churning sources do not
// grow the map for the process lifetime. Entries for unregistered rule ids go
// too.
func (e *Engine) pruneCooldowns(now time.Time) {
	e.mu.RLock()
	cooldownByID := make(map[string]time.Duration, len(e.byID))
	for id, rule := range e.byID {
		cooldownByID[id] = rule.Cooldown
	}
	e.mu.RUnlock()

	for key, last := range e.cooldowns {
		id, _, _ := strings.Cut(key, "|")
		cooldown, ok := cooldownByID[id]
		if !ok || now.Sub(last) >= cooldown {
			delete(e.cooldowns, key)
		}
	}
}

// drain evaluates every queued event. A panic while handling one alert is
// recovered so the remaining events still run.
func (e *Engine) drain() {
	for {
		select {
		case ev := <-e.events:
			e.safeEvaluate(ev.Alert)
		default:
			return
		}
	}
}

func (e *Engine) safeEvaluate(alert model.Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("Rule engine recovered while handling alert %d: %v", alert.ID, r)
		}
	}()
	e.Evaluate(alert)
}

// Evaluate runs every enabled rule against one alert. Exported so tests can
// drive the engine synchronously. The snapshot copies rule values, not
// pointers: the enabled flag is written through SetEnabled at runtime and
// must not be read after the lock is released.
func (e *Engine) Evaluate(alert model.Alert) {
	e.mu.RLock()
	snapshot := make([]model.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		snapshot = append(snapshot, *r)
	}
	e.mu.RUnlock()

	now := time.Now()
	for i := range snapshot {
		rule := &snapshot[i]
		if !rule.Enabled || !e.matches(rule, alert) {
			continue
		}

		key := rule.ID + "|" + alert.Source
		if last, ok := e.cooldowns[key]; ok && now.Sub(last) < rule.Cooldown {
			continue
		}

		succeeded := false
		for _, action := range rule.Actions {
			if err := e.execute(rule, action, alert); err != nil {
				e.m.RuleActions.WithLabelValues(rule.ID, string(action.Type), "failure").Inc()
				e.logger.Errorf("Rule %s action %s failed for alert %d: %v", rule.ID, action.Type, alert.ID, err)
				continue
			}
			e.m.RuleActions.WithLabelValues(rule.ID, string(action.Type), "success").Inc()
			succeeded = true
		}

		if succeeded {
			e.cooldowns[key] = now
		}
	}
}

func (e *Engine) matches(rule *model.Rule, alert model.Alert) bool {
	if !rule.AppliesToType(alert.Type) {
		return false
	}
	if alert.Priority < rule.MinPriority {
		return false
	}
	for _, cond := range rule.Conditions {
		if !evalCondition(alert.Details, cond) {
			return false
		}
	}
	return true
}

func (e *Engine) execute(rule *model.Rule, action model.Action, alert model.Alert) error {
	switch action.Type {
	case model.ActionLog:
		return e.sink.Append(map[string]interface{}{
			"rule_id":        rule.ID,
			"alert_id":       alert.ID,
			"alert_type":     string(alert.Type),
			"alert_priority": alert.Priority.String(),
			"source":         alert.Source,
			"message":        alert.Message,
		})
	case model.ActionBlockSource:
		mac := alert.Source
		ip, _ := alert.Details["sender_ip"].(string)
		if !e.remediator.Block(mac, ip) {
			return fmt.Errorf("remediator refused to block %s (%s)", mac, ip)
		}
		return nil
	case model.ActionExecuteCommand:
		return e.runner.Run(action.Command, alert)
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// evalCondition resolves a dotted field path into the details map and applies
// the operator. A missing field makes the condition false, never an error.
func evalCondition(details map[string]interface{}, cond model.Condition) bool {
	value, ok := lookupPath(details, cond.Field)
	if !ok {
		return false
	}

	switch strings.ToLower(cond.Operator) {
	case "", "eq", "==":
		return equals(value, cond.Value)
	case "ne", "!=":
		return !equals(value, cond.Value)
	case "gt", ">":
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a > b
	case "gte", ">=":
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a >= b
	case "lt", "<":
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a < b
	case "lte", "<=":
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a <= b
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", value), fmt.Sprintf("%v", cond.Value))
	default:
		return false
	}
}

func lookupPath(details map[string]interface{}, path string) (interface{}, bool) {
	if details == nil || path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current interface{} = details
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func equals(a, b interface{}) bool {
	if fa, fb, ok := bothNumeric(a, b); ok {
		return fa == fb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func bothNumeric(a, b interface{}) (float64, float64, bool) {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	return fa, fb, okA && okB
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
