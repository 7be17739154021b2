package decodepool

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/common/logger"
)

const (
	// BackPressurePercent is the memory usage above which workers defer decoding
	BackPressurePercent = 95.0

	DefaultBackPressureDelay = 200 * time.Millisecond
	DefaultQueueSize         = 256
)

var (
	ErrPoolShutdown = errors.New("decode pool has been shut down")
	ErrCancelled    = errors.New("decode cancelled")
)

type TaskId uint64

// Result of a single RAW decode. Failures are reported with Success false
// and Err set; they never panic across the worker boundary.
type Result struct {
	TaskId  TaskId
	Path    string
	Success bool
	Image   image.Image
	Width   int
	Height  int
	Err     error
}

type Callback func(result *Result)

type pending struct {
	path     string
	callback Callback
}

type request struct {
	taskId TaskId
	path   string
	stop   bool
}

type Options struct {
	QueueSize         int
	BackPressureDelay time.Duration
	DecodeOptions     api.RawDecodeOptions
}

type Metrics interface {
	Decoded(success bool, duration time.Duration)
	Deferred()
}

type noopMetrics struct{}

func (noopMetrics) Decoded(bool, time.Duration) {}
func (noopMetrics) Deferred()                   {}

// DecodeWorkerPool decodes RAW files on a fixed number of workers. Requests
// and results travel through channels and are matched by task id.
type DecodeWorkerPool struct {
	workers int
	codec   api.RawCodec
	memory  api.MemoryProbe
	options Options
	metrics Metrics

	requests chan request
	results  chan *Result

	callbackMux sync.Mutex
	callbacks   map[TaskId]pending

	nextTaskId atomic.Uint64
	started    atomic.Bool
	shutdown   atomic.Bool
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	workerDone []chan struct{}
}

func NewDecodeWorkerPool(workers int, codec api.RawCodec, memory api.MemoryProbe, options Options, metrics Metrics) *DecodeWorkerPool {
	if workers < 1 {
		workers = 1
	}
	if options.QueueSize < 1 {
		options.QueueSize = DefaultQueueSize
	}
	if options.BackPressureDelay <= 0 {
		options.BackPressureDelay = DefaultBackPressureDelay
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DecodeWorkerPool{
		workers:   workers,
		codec:     codec,
		memory:    memory,
		options:   options,
		metrics:   metrics,
		requests:  make(chan request, options.QueueSize),
		results:   make(chan *Result, options.QueueSize),
		callbacks: map[TaskId]pending{},
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *DecodeWorkerPool) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	logger.Debug.Printf("Starting decode pool with %d workers", s.workers)
	s.workerDone = make([]chan struct{}, s.workers)
	for i := 0; i < s.workers; i++ {
		s.workerDone[i] = make(chan struct{})
		go s.worker(i, s.workerDone[i])
	}
}

// Decode queues the RAW file for decoding. The callback is invoked exactly
// once: from PollResults with the decode result, or from CancelAll or
// Shutdown with a failed result.
func (s *DecodeWorkerPool) Decode(path string, callback Callback) (TaskId, error) {
	if s.shutdown.Load() {
		logger.Debug.Printf("Decode of '%s' requested after shutdown, ignoring", path)
		return 0, ErrPoolShutdown
	}
	taskId := TaskId(s.nextTaskId.Add(1))

	s.callbackMux.Lock()
	s.callbacks[taskId] = pending{path: path, callback: callback}
	s.callbackMux.Unlock()

	select {
	case s.requests <- request{taskId: taskId, path: path}:
		logger.Trace.Printf("Queued decode task %d for '%s'", taskId, path)
		return taskId, nil
	case <-s.done:
		if s.removeCallback(taskId) == nil {
			// Shutdown already completed the callback
			return taskId, nil
		}
		return 0, ErrPoolShutdown
	}
}

// PollResults delivers at most max finished results to their callbacks
// and returns how many results were handled.
func (s *DecodeWorkerPool) PollResults(max int) int {
	handled := 0
	for handled < max {
		select {
		case result := <-s.results:
			handled++
			if callback := s.removeCallback(result.TaskId); callback != nil {
				callback(result)
			} else {
				logger.Debug.Printf("Dropping result of unknown decode task %d ('%s')", result.TaskId, result.Path)
			}
		default:
			return handled
		}
	}
	return handled
}

// CancelAll drops queued requests and completes every pending callback
// once with a failed result. A decode that is already running is not
// interrupted, its result is dropped.
func (s *DecodeWorkerPool) CancelAll() int {
	cancelled := s.failPending(ErrCancelled)
	s.drainRequests()
	if cancelled > 0 {
		logger.Debug.Printf("Cancelled %d pending decodes", cancelled)
	}
	return cancelled
}

// Pending returns the number of decodes whose callback has not been invoked yet
func (s *DecodeWorkerPool) Pending() int {
	s.callbackMux.Lock()
	defer s.callbackMux.Unlock()
	return len(s.callbacks)
}

func (s *DecodeWorkerPool) Workers() int {
	return s.workers
}

func (s *DecodeWorkerPool) IsShutdown() bool {
	return s.shutdown.Load()
}

// Shutdown sends a stop request to every worker and waits for each at most
// timeout. Workers still running after that are terminated by cancelling
// their context, which also kills an external decoder process.
func (s *DecodeWorkerPool) Shutdown(timeout time.Duration) {
	if !s.shutdown.CompareAndSwap(false, true) {
		return
	}
	logger.Debug.Printf("Shutting down decode pool")
	s.drainRequests()

	if s.started.Load() {
		for i := 0; i < s.workers; i++ {
			select {
			case s.requests <- request{stop: true}:
			default:
			}
		}
		deadline := time.NewTimer(timeout)
		defer deadline.Stop()
		expired := false
		for i, workerDone := range s.workerDone {
			if expired {
				select {
				case <-workerDone:
				default:
					logger.Warn.Printf("Decode worker %d did not stop in %s, terminating", i, timeout)
				}
				continue
			}
			select {
			case <-workerDone:
			case <-deadline.C:
				expired = true
				logger.Warn.Printf("Decode worker %d did not stop in %s, terminating", i, timeout)
			}
		}
	}
	close(s.done)
	s.cancel()

	s.failPending(ErrPoolShutdown)
}

func (s *DecodeWorkerPool) removeCallback(taskId TaskId) Callback {
	s.callbackMux.Lock()
	defer s.callbackMux.Unlock()
	p, ok := s.callbacks[taskId]
	if !ok {
		return nil
	}
	delete(s.callbacks, taskId)
	return p.callback
}

// failPending forgets all pending callbacks and calls each of them once,
// outside the lock, with a failed result carrying err
func (s *DecodeWorkerPool) failPending(err error) int {
	s.callbackMux.Lock()
	dropped := s.callbacks
	s.callbacks = map[TaskId]pending{}
	s.callbackMux.Unlock()

	for taskId, p := range dropped {
		if p.callback != nil {
			p.callback(&Result{TaskId: taskId, Path: p.path, Err: err})
		}
	}
	return len(dropped)
}

func (s *DecodeWorkerPool) drainRequests() {
	for {
		select {
		case <-s.requests:
		default:
			return
		}
	}
}

func (s *DecodeWorkerPool) worker(index int, workerDone chan struct{}) {
	defer close(workerDone)
	var held *request

	for {
		var req request
		if held != nil {
			req = *held
			held = nil
		} else {
			select {
			case req = <-s.requests:
			case <-s.done:
				return
			}
		}
		if req.stop {
			logger.Trace.Printf("Decode worker %d stopped", index)
			return
		}

		if s.isMemoryExhausted() {
			s.metrics.Deferred()
			logger.Debug.Printf("Memory usage over %.0f%%, deferring decode of '%s'", BackPressurePercent, req.path)
			select {
			case s.requests <- req:
			default:
				held = &req
			}
			select {
			case <-time.After(s.options.BackPressureDelay):
				continue
			case <-s.done:
				return
			}
		}

		result := s.decode(req)
		select {
		case s.results <- result:
		case <-s.done:
			return
		}
	}
}

func (s *DecodeWorkerPool) isMemoryExhausted() bool {
	if s.memory == nil {
		return false
	}
	usedPercent, err := s.memory.UsedPercent()
	if err != nil {
		logger.Trace.Printf("Could not read memory usage: %s", err)
		return false
	}
	return usedPercent > BackPressurePercent
}

func (s *DecodeWorkerPool) decode(req request) (result *Result) {
	startTime := time.Now()
	result = &Result{TaskId: req.taskId, Path: req.path}
	defer func() {
		if r := recover(); r != nil {
			logger.Error.Printf("RAW decoder crashed on '%s': %v", req.path, r)
			result = &Result{
				TaskId: req.taskId,
				Path:   req.path,
				Err:    fmt.Errorf("decoder crashed on '%s': %v", req.path, r),
			}
		}
		s.metrics.Decoded(result.Success, time.Since(startTime))
	}()

	handle, err := s.codec.Open(req.path)
	if err != nil {
		result.Err = err
		return result
	}
	defer handle.Close()

	img, err := handle.DecodeFull(s.ctx, s.options.DecodeOptions)
	if err != nil {
		result.Err = err
		return result
	}
	if img == nil {
		result.Err = fmt.Errorf("decoder returned no image for '%s'", req.path)
		return result
	}

	bounds := img.Bounds()
	result.Success = true
	result.Image = img
	result.Width = bounds.Dx()
	result.Height = bounds.Dy()
	logger.Debug.Printf("Decoded '%s' (%dx%d) in %s", req.path, result.Width, result.Height, time.Since(startTime))
	return result
}
