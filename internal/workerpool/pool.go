// Package workerpool runs background tasks on a bounded set of goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

var (
	ErrSaturated = errors.New("worker pool saturated")
	ErrClosed    = errors.New("worker pool closed")
)

const pumpInterval = 100 * time.Millisecond

type Config struct {
	CoreSize      int
	MaxSize       int
	QueueCapacity int
	IdleExpiry    time.Duration
}

// Pool admits a task onto a free core worker, otherwise into a bounded FIFO
// queue, otherwise onto an extra worker up to MaxSize. Anything beyond that is
// rejected with ErrSaturated.
type Pool struct {
	core     int
	max      int
	queueCap int

	workers *ants.Pool

	mu     sync.Mutex
	queue  []func()
	closed bool

	inflight sync.WaitGroup
	stop     chan struct{}
	stopped  chan struct{}
}

func New(cfg Config) (*Pool, error) {
	if cfg.CoreSize <= 0 {
		return nil, fmt.Errorf("core size must be positive, got %d", cfg.CoreSize)
	}
	if cfg.MaxSize < cfg.CoreSize {
		return nil, fmt.Errorf("max size %d below core size %d", cfg.MaxSize, cfg.CoreSize)
	}
	if cfg.QueueCapacity < 0 {
		return nil, fmt.Errorf("queue capacity must not be negative, got %d", cfg.QueueCapacity)
	}
	opts := []ants.Option{ants.WithNonblocking(true)}
	if cfg.IdleExpiry > 0 {
		opts = append(opts, ants.WithExpiryDuration(cfg.IdleExpiry))
	}
	workers, err := ants.NewPool(cfg.CoreSize, opts...)
	if err != nil {
		return nil, fmt.Errorf("create ants pool: %w", err)
	}
	p := &Pool{
		core:     cfg.CoreSize,
		max:      cfg.MaxSize,
		queueCap: cfg.QueueCapacity,
		workers:  workers,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go p.pumpLoop()
	return p, nil
}

// Submit never blocks. It returns ErrSaturated when every worker is busy and
// the queue is full, and ErrClosed after Close.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.inflight.Add(1)
	if len(p.queue) == 0 && p.workers.Submit(p.worker(task)) == nil {
		return nil
	}
	if len(p.queue) < p.queueCap {
		p.queue = append(p.queue, task)
		return nil
	}
	if p.workers.Cap() < p.max {
		p.workers.Tune(p.workers.Cap() + 1)
		if p.workers.Submit(p.worker(task)) == nil {
			return nil
		}
	}
	p.inflight.Done()
	return ErrSaturated
}

type Stats struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
	Cap     int `json:"cap"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Running: p.workers.Running(), Queued: len(p.queue), Cap: p.workers.Cap()}
}

// Close stops admitting tasks and waits for queued and running ones until ctx ends.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	close(p.stop)
	<-p.stopped
	p.workers.Release()
	return err
}

// worker runs task and then keeps draining the queue so queued work does not
// wait for a fresh goroutine.
func (p *Pool) worker(task func()) func() {
	return func() {
		p.run(task)
		for {
			next := p.dequeue()
			if next == nil {
				return
			}
			p.run(next)
		}
	}
}

func (p *Pool) run(task func()) {
	defer p.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			logutil.GetLogger(context.Background()).Error("worker task panicked", zap.Any("panic", r))
		}
	}()
	task()
}

func (p *Pool) dequeue() func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		if p.workers.Cap() > p.core {
			p.workers.Tune(p.core)
		}
		return nil
	}
	next := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return next
}

// pumpLoop picks up queued tasks left behind when the last busy worker exited
// between its final dequeue and a concurrent Submit.
func (p *Pool) pumpLoop() {
	defer close(p.stopped)
	ticker := time.NewTicker(pumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.pump()
		}
	}
}

func (p *Pool) pump() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) > 0 {
		next := p.queue[0]
		if p.workers.Submit(p.worker(next)) != nil {
			return
		}
		p.queue[0] = nil
		p.queue = p.queue[1:]
	}
}
