// Package executor runs the engine's work: a bounded background pool, a main
// lane standing in for the UI thread, and named serial lanes that run their
// tasks one at a time in posting order.
package executor

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Config sizes the background pool.
type Config struct {
	Workers   int
	QueueSize int
}

// Executor owns the pool and the lanes. Tasks may post further tasks to any
// lane or to the pool.
type Executor struct {
	jobs    chan func()
	workers sync.WaitGroup
	pending sync.WaitGroup

	mu     sync.RWMutex
	closed bool
	lanes  map[string]*Lane
	main   *Lane

	logger *zap.Logger
}

// MainLane is the name of the lane display work is posted to.
const MainLane = "main"

// New starts an executor.
func New(cfg Config, logger *zap.Logger) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	e := &Executor{
		jobs:   make(chan func(), cfg.QueueSize),
		lanes:  make(map[string]*Lane),
		logger: logger,
	}
	e.main = e.Lane(MainLane)

	for i := 0; i < cfg.Workers; i++ {
		e.workers.Add(1)
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.workers.Done()
	for job := range e.jobs {
		e.run("pool", job)
	}
}

// run executes task and recovers a panic so one bad task never takes the
// host down.
func (e *Executor) run(lane string, task func()) {
	defer e.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked",
				zap.String("lane", lane),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	task()
}

// Go runs task on the background pool. It reports false once the executor
// is stopped.
func (e *Executor) Go(task func()) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("executor stopped, rejecting background task")
		return false
	}

	e.pending.Add(1)
	select {
	case e.jobs <- task:
	default:
		// pool saturated; tasks posted by pool tasks must not block on it
		go e.run("pool", task)
	}
	return true
}

// Lane returns the serial lane called name, creating it on first use.
func (e *Executor) Lane(name string) *Lane {
	e.mu.Lock()
	defer e.mu.Unlock()

	if l, ok := e.lanes[name]; ok {
		return l
	}
	l := &Lane{name: name, exec: e}
	e.lanes[name] = l
	return l
}

// Main returns the lane with UI affinity.
func (e *Executor) Main() *Lane {
	return e.main
}

// Wait blocks until every posted task, including tasks posted while
// waiting, has finished.
func (e *Executor) Wait() {
	e.pending.Wait()
}

// Stop rejects new work, drains what was posted and stops the pool.
func (e *Executor) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.pending.Wait()
	close(e.jobs)
	e.workers.Wait()
	e.logger.Info("executor stopped")
}

// Lane runs its tasks one after another in posting order. It holds no
// goroutine while idle.
type Lane struct {
	name string
	exec *Executor

	mu      sync.Mutex
	tasks   []func()
	running bool
}

// Name returns the lane name.
func (l *Lane) Name() string { return l.name }

// Post queues task on the lane. It reports false once the executor is
// stopped.
func (l *Lane) Post(task func()) bool {
	l.exec.mu.RLock()
	defer l.exec.mu.RUnlock()
	if l.exec.closed {
		l.exec.logger.Warn("executor stopped, rejecting lane task", zap.String("lane", l.name))
		return false
	}

	l.exec.pending.Add(1)

	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	if l.running {
		l.mu.Unlock()
		return true
	}
	l.running = true
	l.mu.Unlock()

	go l.drain()
	return true
}

func (l *Lane) drain() {
	for {
		l.mu.Lock()
		if len(l.tasks) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		task := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.exec.run(l.name, task)
	}
}
