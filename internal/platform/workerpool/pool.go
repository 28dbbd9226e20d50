// Package workerpool provides the bounded goroutine pool that runs remote
// lookups and their combination steps, plus the Future handles tasks resolve to.
//
// The pool follows the core/max/keep-alive model: up to CoreSize workers are
// started on demand and stay alive; when the queue is full, extra workers up to
// MaxSize are started and retire after KeepAlive without work. When the queue is
// full and MaxSize is reached, submitting blocks.
package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrPoolClosed is the failure of every task submitted after Shutdown.
var ErrPoolClosed = errors.New("workerpool: pool is shut down")

// Config sizes a Pool.
type Config struct {
	CoreSize  int
	MaxSize   int
	KeepAlive time.Duration
	// QueueSize bounds the number of tasks waiting for a worker.
	QueueSize int
}

// DefaultConfig returns the sizing used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		CoreSize:  4,
		MaxSize:   16,
		KeepAlive: 10 * time.Second,
		QueueSize: 1024,
	}
}

// Validate checks the sizing is usable.
func (c Config) Validate() error {
	if c.CoreSize < 1 {
		return fmt.Errorf("core size must be at least 1, got %d", c.CoreSize)
	}
	if c.MaxSize < c.CoreSize {
		return fmt.Errorf("max size %d is smaller than core size %d", c.MaxSize, c.CoreSize)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be at least 1, got %d", c.QueueSize)
	}
	if c.KeepAlive <= 0 {
		return fmt.Errorf("keep-alive must be positive, got %s", c.KeepAlive)
	}
	return nil
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers int
	Queued  int
}

// Pool executes submitted tasks on a bounded set of goroutines.
type Pool struct {
	cfg    Config
	logger zerolog.Logger
	queue  chan func()

	mu      sync.Mutex
	workers int
	closed  bool

	submitting sync.WaitGroup
	running    sync.WaitGroup
}

// New creates a pool. No goroutines are started until work arrives.
func New(cfg Config, logger zerolog.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("workerpool: %w", err)
	}
	return &Pool{
		cfg:    cfg,
		logger: logger.With().Str("component", "workerpool").Logger(),
		queue:  make(chan func(), cfg.QueueSize),
	}, nil
}

// Config returns the sizing the pool was created with.
func (p *Pool) Config() Config { return p.cfg }

// Stats reports the current worker count and queue depth.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Workers: p.workers, Queued: len(p.queue)}
}

// Shutdown stops accepting tasks, lets queued tasks finish and waits for all
// workers to exit. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.submitting.Wait()
	close(p.queue)
	p.running.Wait()
	p.logger.Debug().Msg("pool shut down")
}

// execute hands task to a worker, starting one when the sizing allows it.
func (p *Pool) execute(task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.workers < p.cfg.CoreSize {
		p.startWorkerLocked(task)
		p.mu.Unlock()
		return nil
	}
	p.submitting.Add(1)
	p.mu.Unlock()
	defer p.submitting.Done()

	select {
	case p.queue <- task:
		return nil
	default:
	}

	p.mu.Lock()
	if p.workers < p.cfg.MaxSize {
		p.startWorkerLocked(task)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	// Queue full and no room for another worker.
	p.queue <- task
	return nil
}

func (p *Pool) startWorkerLocked(first func()) {
	p.workers++
	p.running.Add(1)
	p.logger.Debug().Int("workers", p.workers).Msg("starting worker")
	go p.work(first)
}

func (p *Pool) work(task func()) {
	defer p.running.Done()

	idle := time.NewTimer(p.cfg.KeepAlive)
	defer idle.Stop()

	for {
		if task != nil {
			task()
			task = nil
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(p.cfg.KeepAlive)

		select {
		case next, ok := <-p.queue:
			if !ok {
				p.mu.Lock()
				p.workers--
				p.mu.Unlock()
				return
			}
			task = next
		case <-idle.C:
			p.mu.Lock()
			if p.workers > p.cfg.CoreSize {
				p.workers--
				p.mu.Unlock()
				p.logger.Debug().Msg("retiring idle worker")
				return
			}
			p.mu.Unlock()
		}
	}
}
