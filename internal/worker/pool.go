package worker

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"
)

// Task is one unit of work executed on a pool worker. The context is
// cancelled when the pool shuts down hard.
type Task func(ctx context.Context)

// Pool runs submitted tasks on a fixed number of workers. The backlog is
// unbounded so Submit never blocks; a submitted task may itself submit more
// tasks without deadlocking.
type Pool struct {
	logger     arbor.ILogger
	numWorkers int

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []Task
	stopped bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(logger arbor.ILogger, numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:     logger,
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start starts the worker goroutines.
func (p *Pool) Start() {
	p.logger.Info().
		Int("num_workers", p.numWorkers).
		Msg("Starting worker pool")

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a task. Returns false when the pool has stopped and the
// task was dropped.
func (p *Pool) Submit(task Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		p.logger.Warn().Msg("Task submitted after pool stop, dropping")
		return false
	}
	p.backlog = append(p.backlog, task)
	p.cond.Signal()
	return true
}

// Stop stops accepting tasks, drains the backlog and waits for in-flight
// tasks to finish.
func (p *Pool) Stop() {
	p.logger.Info().Msg("Stopping worker pool...")

	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	p.logger.Info().Msg("Worker pool stopped")
}

// worker is the main worker loop
func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	for {
		p.mu.Lock()
		for len(p.backlog) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.backlog) == 0 && p.stopped {
			p.mu.Unlock()
			p.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopping")
			return
		}
		task := p.backlog[0]
		p.backlog = p.backlog[1:]
		p.mu.Unlock()

		p.run(workerID, task)
	}
}

// run executes one task, containing panics so a misbehaving handler cannot
// take the worker down.
func (p *Pool) run(workerID int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker_id", workerID).
				Str("panic", toString(r)).
				Msg("Task panicked")
		}
	}()
	task(p.ctx)
}

func toString(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}
