// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"sync"
	"sync/atomic"

	"github.com/takhin-data/partitiond/pkg/logger"
)

// Task is one unit of work run serially on the migration executor.
type Task func()

// executor is the single-worker cooperative queue the migration manager
// (C2) runs all control-task and finalization logic on. Generalized from
// pkg/coordinator/coordinator.go's Start() background-ticker goroutine:
// instead of waking up once a second to do one fixed thing, this worker
// drains an arbitrary task channel serially, which is what removes the
// need for fine-grained locks on the migration plan — only one task ever
// runs at a time.
type executor struct {
	tasks    chan Task
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
	queued   atomic.Int64
	logger   *logger.Logger
}

func newExecutor(queueSize int) *executor {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &executor{
		tasks:  make(chan Task, queueSize),
		stopCh: make(chan struct{}),
		logger: logger.Default().WithComponent("migration-executor"),
	}
}

// start launches the worker goroutine. Safe to call at most once.
func (e *executor) start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}
	e.wg.Add(1)
	go e.run()
}

func (e *executor) run() {
	defer e.wg.Done()
	for {
		select {
		case task := <-e.tasks:
			e.queued.Add(-1)
			e.safeRun(task)
		case <-e.stopCh:
			return
		}
	}
}

func (e *executor) safeRun(task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("migration executor task panicked", "panic", r)
		}
	}()
	task()
}

// schedule enqueues a task. Returns false if the executor is stopped or
// the queue is full (caller should log and drop; the next coalescing
// trigger will retry the underlying work).
func (e *executor) schedule(t Task) bool {
	select {
	case <-e.stopCh:
		return false
	default:
	}

	select {
	case e.tasks <- t:
		e.queued.Add(1)
		return true
	default:
		e.logger.Warn("migration executor queue full, dropping task")
		return false
	}
}

func (e *executor) queueSize() int {
	return int(e.queued.Load())
}

// stop drains no further tasks after the current one and waits for the
// worker to exit.
func (e *executor) stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	e.wg.Wait()
}
