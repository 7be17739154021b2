package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

const idlePollInterval = 50 * time.Millisecond

var ErrPoolShutdown = errors.New("worker pool has been shut down")

type TaskId uint64

type TaskFunc func(ctx context.Context)

type task struct {
	id        TaskId
	priority  apitype.Priority
	fn        TaskFunc
	submitted time.Time
}

// Metrics receives pool events. A nil Metrics is replaced with a no-op.
type Metrics interface {
	Submitted(priority apitype.Priority)
	Cancelled(priority apitype.Priority, count int)
	Completed(priority apitype.Priority, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Submitted(apitype.Priority)                {}
func (noopMetrics) Cancelled(apitype.Priority, int)           {}
func (noopMetrics) Completed(apitype.Priority, time.Duration) {}

// PriorityWorkerPool runs tasks on a fixed number of goroutines. Each worker
// takes the oldest high priority task first, then medium, then low. Order is
// only guaranteed within a single priority.
type PriorityWorkerPool struct {
	size    int
	metrics Metrics

	mux    sync.Mutex
	queues map[apitype.Priority][]*task

	wake     chan struct{}
	stop     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	started  atomic.Bool
	shutdown atomic.Bool
	nextId   atomic.Uint64
	running  atomic.Int32
	workers  sync.WaitGroup
}

func NewPriorityWorkerPool(size int, metrics Metrics) *PriorityWorkerPool {
	if size < 1 {
		size = 1
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	queues := map[apitype.Priority][]*task{}
	for _, priority := range apitype.Priorities {
		queues[priority] = nil
	}
	return &PriorityWorkerPool{
		size:    size,
		metrics: metrics,
		queues:  queues,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *PriorityWorkerPool) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	logger.Debug.Printf("Starting priority worker pool with %d workers", s.size)
	for i := 0; i < s.size; i++ {
		s.workers.Add(1)
		go s.worker(i)
	}
}

// Submit queues the task without blocking
func (s *PriorityWorkerPool) Submit(priority apitype.Priority, fn TaskFunc) (TaskId, error) {
	if s.shutdown.Load() {
		logger.Debug.Printf("Task submitted with priority %s after shutdown, ignoring", priority)
		return 0, ErrPoolShutdown
	}
	if !priority.IsValid() {
		priority = apitype.PriorityLow
	}

	newTask := &task{
		id:        TaskId(s.nextId.Add(1)),
		priority:  priority,
		fn:        fn,
		submitted: time.Now(),
	}

	s.mux.Lock()
	s.queues[priority] = append(s.queues[priority], newTask)
	s.mux.Unlock()

	s.metrics.Submitted(priority)
	s.signal()
	return newTask.id, nil
}

// Cancel removes the given fraction of queued tasks with the priority.
// The most recently submitted tasks are removed first.
func (s *PriorityWorkerPool) Cancel(priority apitype.Priority, fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	s.mux.Lock()
	queue := s.queues[priority]
	count := int(float64(len(queue)) * fraction)
	if fraction >= 1 {
		count = len(queue)
	}
	s.queues[priority] = queue[:len(queue)-count]
	s.mux.Unlock()

	if count > 0 {
		logger.Debug.Printf("Cancelled %d queued %s priority tasks", count, priority)
		s.metrics.Cancelled(priority, count)
	}
	return count
}

func (s *PriorityWorkerPool) CancelAll() int {
	cancelled := 0
	for _, priority := range apitype.Priorities {
		cancelled += s.Cancel(priority, 1)
	}
	return cancelled
}

func (s *PriorityWorkerPool) QueueLength(priority apitype.Priority) int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.queues[priority])
}

func (s *PriorityWorkerPool) QueueLengths() map[apitype.Priority]int {
	s.mux.Lock()
	defer s.mux.Unlock()
	lengths := map[apitype.Priority]int{}
	for priority, queue := range s.queues {
		lengths[priority] = len(queue)
	}
	return lengths
}

// Running returns the number of tasks being executed right now
func (s *PriorityWorkerPool) Running() int {
	return int(s.running.Load())
}

func (s *PriorityWorkerPool) Size() int {
	return s.size
}

func (s *PriorityWorkerPool) IsShutdown() bool {
	return s.shutdown.Load()
}

// Shutdown stops accepting new tasks and drops the queued ones. Running
// tasks are allowed to finish unless cancelInFlight is set in which case
// their context is cancelled. Waits at most timeout for the workers.
func (s *PriorityWorkerPool) Shutdown(cancelInFlight bool, timeout time.Duration) bool {
	if !s.shutdown.CompareAndSwap(false, true) {
		return true
	}
	dropped := s.CancelAll()
	logger.Debug.Printf("Shutting down priority worker pool, dropped %d queued tasks", dropped)
	close(s.stop)
	if cancelInFlight {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return true
	case <-time.After(timeout):
		logger.Warn.Printf("Priority worker pool did not stop in %s, %d tasks still running", timeout, s.Running())
		s.cancel()
		return false
	}
}

func (s *PriorityWorkerPool) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *PriorityWorkerPool) next() *task {
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, priority := range apitype.Priorities {
		if queue := s.queues[priority]; len(queue) > 0 {
			nextTask := queue[0]
			queue[0] = nil
			s.queues[priority] = queue[1:]
			return nextTask
		}
	}
	return nil
}

func (s *PriorityWorkerPool) worker(index int) {
	defer s.workers.Done()
	timer := time.NewTimer(idlePollInterval)
	defer timer.Stop()

	for {
		if s.shutdown.Load() {
			logger.Trace.Printf("Worker %d stopped", index)
			return
		}

		if nextTask := s.next(); nextTask != nil {
			s.run(nextTask)
			// Another worker may be sleeping while tasks are still queued
			s.signal()
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(idlePollInterval)
		select {
		case <-s.stop:
		case <-s.wake:
		case <-timer.C:
		}
	}
}

func (s *PriorityWorkerPool) run(t *task) {
	s.running.Add(1)
	defer s.running.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("Task %d (%s) panicked: %v", t.id, t.priority, r)
		}
	}()

	startTime := time.Now()
	logger.Trace.Printf("Task %d (%s) waited %s in queue", t.id, t.priority, startTime.Sub(t.submitted))
	t.fn(s.ctx)
	s.metrics.Completed(t.priority, time.Since(startTime))
}
