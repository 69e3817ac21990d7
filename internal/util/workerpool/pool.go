package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task represents a unit of work to be executed
type Task struct {
	ID      string
	Fn      func(context.Context) error
	Context context.Context
}

// WorkerPool manages a bounded pool of goroutines. The health monitor
// dispatches its per-cycle probe fan-out through it so a large fleet
// cannot spawn unbounded goroutines.
type WorkerPool struct {
	name           string
	maxWorkers     int
	taskQueue      chan Task
	logger         *zap.Logger
	wg             sync.WaitGroup
	stopOnce       sync.Once
	stopChan       chan struct{}
	completedTasks uint64
	failedTasks    uint64
}

// Config holds worker pool configuration
type Config struct {
	Name       string
	MaxWorkers int
	QueueSize  int
	Logger     *zap.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(cfg *Config) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	pool := &WorkerPool{
		name:       cfg.Name,
		maxWorkers: cfg.MaxWorkers,
		taskQueue:  make(chan Task, cfg.QueueSize),
		logger:     cfg.Logger,
		stopChan:   make(chan struct{}),
	}

	for i := 0; i < pool.maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	pool.logger.Info("Worker pool started",
		zap.String("name", pool.name),
		zap.Int("max_workers", pool.maxWorkers),
		zap.Int("queue_size", cfg.QueueSize))

	return pool
}

// worker is the main worker goroutine
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopChan:
			return
		case task := <-p.taskQueue:
			if err := p.safeExecute(task); err != nil {
				atomic.AddUint64(&p.failedTasks, 1)
				p.logger.Debug("Task failed",
					zap.String("pool", p.name),
					zap.Int("worker_id", id),
					zap.String("task_id", task.ID),
					zap.Error(err))
			} else {
				atomic.AddUint64(&p.completedTasks, 1)
			}
		}
	}
}

// safeExecute executes a task with panic recovery. A panicking probe must
// not take down a whole check cycle.
func (p *WorkerPool) safeExecute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			p.logger.Error("Task panic recovered",
				zap.String("pool", p.name),
				zap.String("task_id", task.ID),
				zap.Any("panic", r))
		}
	}()

	if task.Context == nil {
		task.Context = context.Background()
	}

	return task.Fn(task.Context)
}

// Submit submits a task, blocking until accepted, the pool stops, or the
// task context is canceled
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-p.stopChan:
		return fmt.Errorf("worker pool '%s' is stopped", p.name)
	case <-ctx.Done():
		return ctx.Err()
	case p.taskQueue <- task:
		return nil
	}
}

// Stop stops the pool and waits for in-flight tasks to finish
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
		p.logger.Info("Worker pool stopped", zap.String("name", p.name))
	})
}

// Completed returns the number of successfully executed tasks
func (p *WorkerPool) Completed() uint64 {
	return atomic.LoadUint64(&p.completedTasks)
}

// Failed returns the number of failed tasks
func (p *WorkerPool) Failed() uint64 {
	return atomic.LoadUint64(&p.failedTasks)
}
