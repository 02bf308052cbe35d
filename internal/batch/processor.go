// Package batch provides a self-tuning batch processor for bursty write
// paths. Batch size is driven purely by observed flush latency against a
// target, so the processor can wrap any write-heavy sink without domain
// knowledge.
package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config bounds the processor's self-tuning.
type Config struct {
	InitialSize   int
	MinSize       int
	MaxSize       int
	TargetLatency time.Duration
	// WindowSize is how many recent flushes feed the rolling latency average.
	WindowSize int
}

func (c *Config) applyDefaults() error {
	if c.MinSize <= 0 {
		c.MinSize = 1
	}
	if c.MaxSize <= 0 {
		c.MaxSize = 1000
	}
	if c.MinSize > c.MaxSize {
		return fmt.Errorf("batch min size %d exceeds max size %d", c.MinSize, c.MaxSize)
	}
	if c.InitialSize <= 0 {
		c.InitialSize = c.MinSize
	}
	if c.InitialSize < c.MinSize {
		c.InitialSize = c.MinSize
	}
	if c.InitialSize > c.MaxSize {
		c.InitialSize = c.MaxSize
	}
	if c.TargetLatency <= 0 {
		c.TargetLatency = 50 * time.Millisecond
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 10
	}
	return nil
}

// Stats is a snapshot of the processor's current tuning state.
type Stats struct {
	CurrentSize    int
	RollingLatency time.Duration
	Pending        int
}

// Processor buffers items and flushes them through the supplied function
// once the buffer reaches the current batch size. After each flush the size
// is rescaled by target/average so the rolling-average flush time converges
// on the target, clamped to [MinSize, MaxSize].
type Processor[T any] struct {
	mu        sync.Mutex
	cfg       Config
	buf       []T
	size      int
	latencies []time.Duration

	process func([]T) error
	logger  *logrus.Logger
}

// New creates a processor. The process function is invoked with the flushed
// batch; its error is returned from Add/Flush but the buffer is always
// cleared so a failing sink cannot wedge the pipeline.
func New[T any](cfg Config, process func([]T) error, logger *logrus.Logger) (*Processor[T], error) {
	if process == nil {
		return nil, fmt.Errorf("batch processor requires a process function")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &Processor[T]{
		cfg:     cfg,
		buf:     make([]T, 0, cfg.MaxSize),
		size:    cfg.InitialSize,
		process: process,
		logger:  logger,
	}, nil
}

// Add buffers one item, flushing when the buffer reaches the current batch
// size.
func (p *Processor[T]) Add(item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, item)
	if len(p.buf) >= p.size {
		return p.flushLocked()
	}
	return nil
}

// Flush forces processing of a partial buffer; used on shutdown and by
// interval tickers.
func (p *Processor[T]) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		return nil
	}
	return p.flushLocked()
}

// Stats returns the current size, rolling average latency and pending count.
func (p *Processor[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		CurrentSize:    p.size,
		RollingLatency: p.rollingAverage(),
		Pending:        len(p.buf),
	}
}

func (p *Processor[T]) flushLocked() error {
	items := p.buf
	p.buf = make([]T, 0, p.cfg.MaxSize)

	start := time.Now()
	err := p.process(items)
	elapsed := time.Since(start)

	p.record(elapsed)
	p.resize()

	if err != nil {
		return fmt.Errorf("batch flush of %d items failed: %w", len(items), err)
	}
	return nil
}

func (p *Processor[T]) record(elapsed time.Duration) {
	p.latencies = append(p.latencies, elapsed)
	if len(p.latencies) > p.cfg.WindowSize {
		p.latencies = p.latencies[len(p.latencies)-p.cfg.WindowSize:]
	}
}

func (p *Processor[T]) rollingAverage() time.Duration {
	if len(p.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range p.latencies {
		total += l
	}
	return total / time.Duration(len(p.latencies))
}

// resize rescales the batch size by target/average. Averages above target
// shrink the batch, below target grow it, always inside [MinSize, MaxSize].
func (p *Processor[T]) resize() {
	avg := p.rollingAverage()
	if avg <= 0 {
		// Flushes too fast to measure; take the largest allowed step up.
		p.size = min(p.cfg.MaxSize, p.size*2)
		return
	}

	ratio := float64(p.cfg.TargetLatency) / float64(avg)
	next := int(float64(p.size) * ratio)

	if next < p.cfg.MinSize {
		next = p.cfg.MinSize
	}
	if next > p.cfg.MaxSize {
		next = p.cfg.MaxSize
	}
	if next != p.size && p.logger != nil {
		p.logger.Debugf("Batch size %d -> %d (avg %v, target %v)", p.size, next, avg, p.cfg.TargetLatency)
	}
	p.size = next
}
