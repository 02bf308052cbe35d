package alerts

import (
	"fmt"
	"sync"
	"time"

	"arpguard/internal/metrics"
	"arpguard/internal/model"

	"github.com/sirupsen/logrus"
)

// AlertStateError reports an invalid lifecycle transition. It surfaces a
// caller bug and is never swallowed.
type AlertStateError struct {
	ID   int64
	From model.AlertStatus
	To   model.AlertStatus
}

func (e *AlertStateError) Error() string {
	return fmt.Sprintf("alert %d: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// ErrAlertNotFound is returned when a transition targets an unknown id.
type ErrAlertNotFound struct {
	ID int64
}

func (e *ErrAlertNotFound) Error() string {
	return fmt.Sprintf("alert %d not found", e.ID)
}

// EventKind distinguishes creations from lifecycle updates in observer
// callbacks.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
)

// Event is what observers receive. The alert is a copy; observers can keep
// or mutate it freely.
type Event struct {
	Kind  EventKind
	Alert model.Alert
}

// Observer receives alert events synchronously, in registration order. A
// panicking observer is recovered and logged; it never prevents the other
// observers from running.
type Observer func(Event)

// Manager owns the alert map and its lifecycle state machine. All getters
// return copies so callers never race internal state, and observers run
// after the store lock is released.
type Manager struct {
	mu        sync.Mutex
	alerts    map[int64]*model.Alert
	nextID    int64
	observers []Observer

	logger *logrus.Logger
	m      *metrics.Metrics
}

// NewManager creates an empty alert store.
func NewManager(logger *logrus.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		alerts: make(map[int64]*model.Alert),
		logger: logger,
		m:      m,
	}
}

// RegisterObserver appends an observer. Observers registered here see every
// subsequent creation and update.
func (mgr *Manager) RegisterObserver(obs Observer) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.observers = append(mgr.observers, obs)
}

// CreateAlert stores a new ACTIVE alert with a monotonic id and notifies
// observers. The returned alert is a copy.
func (mgr *Manager) CreateAlert(typ model.AlertType, priority model.Priority, message, source string, details map[string]interface{}) model.Alert {
	now := time.Now()

	mgr.mu.Lock()
	mgr.nextID++
	alert := &model.Alert{
		ID:        mgr.nextID,
		Type:      typ,
		Priority:  priority,
		Message:   message,
		Source:    source,
		Details:   details,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	mgr.alerts[alert.ID] = alert
	snapshot := alert.Clone()
	observers := make([]Observer, len(mgr.observers))
	copy(observers, mgr.observers)
	mgr.mu.Unlock()

	mgr.m.AlertsTotal.WithLabelValues(string(typ), priority.String()).Inc()
	mgr.logger.WithFields(logrus.Fields{
		"id":       snapshot.ID,
		"type":     snapshot.Type,
		"priority": snapshot.Priority.String(),
		"source":   snapshot.Source,
	}).Warnf("Alert created: %s", snapshot.Message)

	mgr.notify(observers, Event{Kind: EventCreated, Alert: snapshot})
	return snapshot
}

// Acknowledge transitions ACTIVE -> ACKNOWLEDGED.
func (mgr *Manager) Acknowledge(id int64) error {
	return mgr.transition(id, model.StatusAcknowledged)
}

// Resolve transitions ACTIVE or ACKNOWLEDGED -> RESOLVED.
func (mgr *Manager) Resolve(id int64) error {
	return mgr.transition(id, model.StatusResolved)
}

func (mgr *Manager) transition(id int64, to model.AlertStatus) error {
	mgr.mu.Lock()
	alert, ok := mgr.alerts[id]
	if !ok {
		mgr.mu.Unlock()
		return &ErrAlertNotFound{ID: id}
	}

	if !validTransition(alert.Status, to) {
		err := &AlertStateError{ID: id, From: alert.Status, To: to}
		mgr.mu.Unlock()
		return err
	}

	alert.Status = to
	alert.UpdatedAt = time.Now()
	snapshot := alert.Clone()
	observers := make([]Observer, len(mgr.observers))
	copy(observers, mgr.observers)
	mgr.mu.Unlock()

	mgr.logger.Infof("Alert %d transitioned to %s", id, to)
	mgr.notify(observers, Event{Kind: EventUpdated, Alert: snapshot})
	return nil
}

func validTransition(from, to model.AlertStatus) bool {
	switch to {
	case model.StatusAcknowledged:
		return from == model.StatusActive
	case model.StatusResolved:
		return from == model.StatusActive || from == model.StatusAcknowledged
	default:
		return false
	}
}

func (mgr *Manager) notify(observers []Observer, event Event) {
	for i, obs := range observers {
		mgr.invoke(i, obs, event)
	}
}

func (mgr *Manager) invoke(idx int, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Errorf("Alert observer %d panicked on alert %d: %v", idx, event.Alert.ID, r)
		}
	}()
	obs(event)
}

// GetAlert returns a copy of the alert with the given id.
func (mgr *Manager) GetAlert(id int64) (model.Alert, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	alert, ok := mgr.alerts[id]
	if !ok {
		return model.Alert{}, false
	}
	return alert.Clone(), true
}

// ActiveAlerts returns copies of every alert still in the ACTIVE state.
func (mgr *Manager) ActiveAlerts() []model.Alert {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	active := make([]model.Alert, 0)
	for _, alert := range mgr.alerts {
		if alert.Status == model.StatusActive {
			active = append(active, alert.Clone())
		}
	}
	return active
}

// Export snapshots the whole alert map for the API layer.
func (mgr *Manager) Export() map[int64]model.Alert {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	out := make(map[int64]model.Alert, len(mgr.alerts))
	for id, alert := range mgr.alerts {
		out[id] = alert.Clone()
	}
	return out
}
