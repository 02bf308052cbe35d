// Package journal persists created alerts as append-only JSON lines. Writes
// go through the adaptive batch processor so disk latency tunes the batch
// size instead of stalling alert creation.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"arpguard/internal/alerts"
	"arpguard/internal/batch"
	"arpguard/internal/metrics"
	"arpguard/internal/model"

	"github.com/sirupsen/logrus"
)

// Config tunes the journal file and its write batching.
type Config struct {
	Path          string
	FlushInterval time.Duration
	Batch         batch.Config
}

// Journal is an alert persistence sink backed by one file.
type Journal struct {
	file *os.File
	proc *batch.Processor[model.Alert]

	logger *logrus.Logger
	m      *metrics.Metrics

	stop chan struct{}
	done chan struct{}
}

// New opens (or creates) the journal file and starts the flush ticker.
func New(cfg Config, logger *logrus.Logger, m *metrics.Metrics) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", cfg.Path, err)
	}

	j := &Journal{
		file:   file,
		logger: logger,
		m:      m,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	proc, err := batch.New(cfg.Batch, j.writeBatch, logger)
	if err != nil {
		file.Close()
		return nil, err
	}
	j.proc = proc

	go j.flushLoop(cfg.FlushInterval)
	return j, nil
}

// Record buffers one alert for persistence.
func (j *Journal) Record(alert model.Alert) {
	if err := j.proc.Add(alert); err != nil {
		j.m.JournalErrors.Inc()
		j.logger.Errorf("Journal write failed: %v", err)
	}
}

// Observer persists every created alert; lifecycle updates are not
// journaled, the API exposes live state.
func (j *Journal) Observer() alerts.Observer {
	return func(ev alerts.Event) {
		if ev.Kind == alerts.EventCreated {
			j.Record(ev.Alert)
		}
	}
}

// Stats exposes the underlying batch tuning state.
func (j *Journal) Stats() batch.Stats {
	return j.proc.Stats()
}

// Close flushes the partial buffer and closes the file.
func (j *Journal) Close() error {
	close(j.stop)
	<-j.done

	if err := j.proc.Flush(); err != nil {
		j.m.JournalErrors.Inc()
		j.logger.Errorf("Journal final flush failed: %v", err)
	}
	return j.file.Close()
}

func (j *Journal) flushLoop(interval time.Duration) {
	defer close(j.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			if err := j.proc.Flush(); err != nil {
				j.m.JournalErrors.Inc()
				j.logger.Errorf("Journal flush failed: %v", err)
			}
		}
	}
}

func (j *Journal) writeBatch(batchAlerts []model.Alert) error {
	for _, alert := range batchAlerts {
		line, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to encode alert %d: %w", alert.ID, err)
		}
		if _, err := j.file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("failed to append alert %d: %w", alert.ID, err)
		}
		j.m.JournalRecords.Inc()
	}
	return nil
}
