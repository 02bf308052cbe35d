package notify

import (
	"fmt"
	"sync"
	"time"

	"arpguard/internal/alerts"
	"arpguard/internal/metrics"
	"arpguard/internal/model"

	"github.com/sirupsen/logrus"
)

// DispatcherConfig tunes the fan-out worker pool.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 512
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
}

type task struct {
	notifier Notifier
	alert    model.Alert
}

// Dispatcher fans alerts out to every registered channel through a small
// worker pool, so one slow channel cannot delay the others and no channel
// send ever runs under a core lock.
type Dispatcher struct {
	cfg DispatcherConfig

	mu        sync.RWMutex
	notifiers []Notifier

	tasks  chan task
	wg     sync.WaitGroup
	logger *logrus.Logger
	m      *metrics.Metrics

	closeOnce sync.Once
}

// NewDispatcher creates a stopped dispatcher; call Start before dispatching.
func NewDispatcher(cfg DispatcherConfig, logger *logrus.Logger, m *metrics.Metrics) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		cfg:    cfg,
		tasks:  make(chan task, cfg.QueueSize),
		logger: logger,
		m:      m,
	}
}

// Register adds a channel to the fan-out set.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers = append(d.notifiers, n)
	d.logger.Infof("Registered notification channel: %s", n.Name())
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop drains queued work and joins the workers with a bounded timeout.
func (d *Dispatcher) Stop(timeout time.Duration) {
	d.closeOnce.Do(func() { close(d.tasks) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		d.logger.Warnf("Notification dispatcher did not stop within %v", timeout)
	}
}

// Dispatch offers the alert to every registered channel. It never blocks:
// when the task queue is full the delivery is counted as a failure for that
// channel and skipped.
func (d *Dispatcher) Dispatch(alert model.Alert) {
	d.mu.RLock()
	notifiers := make([]Notifier, len(d.notifiers))
	copy(notifiers, d.notifiers)
	d.mu.RUnlock()

	for _, n := range notifiers {
		select {
		case d.tasks <- task{notifier: n, alert: alert}:
		default:
			d.m.NotificationFailures.WithLabelValues(n.Name()).Inc()
			d.logger.Warnf("Notification queue full, dropping alert %d for channel %s", alert.ID, n.Name())
		}
	}
}

// Observer feeds created and updated alerts into the fan-out.
func (d *Dispatcher) Observer() alerts.Observer {
	return func(ev alerts.Event) {
		d.Dispatch(ev.Alert)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.tasks {
		if err := d.send(t.notifier, t.alert); err != nil {
			d.m.NotificationFailures.WithLabelValues(t.notifier.Name()).Inc()
			d.logger.Errorf("Channel %s failed for alert %d: %v", t.notifier.Name(), t.alert.ID, err)
			continue
		}
		d.m.NotificationsSent.WithLabelValues(t.notifier.Name()).Inc()
	}
}

// send bounds one channel delivery with the configured timeout. A send that
// overruns keeps running in its goroutine but releases the worker.
func (d *Dispatcher) send(n Notifier, alert model.Alert) error {
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- fmt.Errorf("channel panicked: %v", r)
			}
		}()
		result <- n.SendAlert(alert)
	}()

	select {
	case err := <-result:
		return err
	case <-time.After(d.cfg.SendTimeout):
		return fmt.Errorf("send timed out after %v", d.cfg.SendTimeout)
	}
}
