package resource

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/backend/internal/decodepool"
	"vincit.fi/image-viewer/backend/internal/workerpool"
	"vincit.fi/image-viewer/common/logger"
)

const (
	ElevatedMemoryPercent = 75.0
	HighMemoryPercent     = 85.0
	CriticalMemoryPercent = 95.0

	HighShrinkFraction     = 0.25
	CriticalShrinkFraction = 0.5
	CriticalMediumCancel   = 0.5

	DefaultMonitorInterval  = 5 * time.Second
	DefaultDispatchInterval = 20 * time.Millisecond
	DefaultShutdownTimeout  = 500 * time.Millisecond
)

type MemoryPressure int

const (
	PressureNone MemoryPressure = iota
	PressureElevated
	PressureHigh
	PressureCritical
	PressureUnknown
)

func (s MemoryPressure) String() string {
	switch s {
	case PressureNone:
		return "none"
	case PressureElevated:
		return "elevated"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

func PressureOf(usedPercent float64) MemoryPressure {
	switch {
	case usedPercent > CriticalMemoryPercent:
		return PressureCritical
	case usedPercent >= HighMemoryPercent:
		return PressureHigh
	case usedPercent >= ElevatedMemoryPercent:
		return PressureElevated
	default:
		return PressureNone
	}
}

// Shrinker is something that can release memory on request, e.g. a cache
type Shrinker interface {
	Shrink(fraction float64) int
}

type Options struct {
	MonitorInterval  time.Duration
	DispatchInterval time.Duration
	ShutdownTimeout  time.Duration
}

// Coordinator owns the worker pools and keeps the memory usage in check
type Coordinator struct {
	profile    *Profile
	memory     api.MemoryProbe
	threadPool *workerpool.PriorityWorkerPool
	decodePool *decodepool.DecodeWorkerPool
	options    Options

	shrinkerMux sync.Mutex
	shrinkers   []Shrinker

	started  atomic.Bool
	shutdown atomic.Bool
	stop     chan struct{}
	loops    sync.WaitGroup
}

func NewCoordinator(profile *Profile, memory api.MemoryProbe,
	threadPool *workerpool.PriorityWorkerPool, decodePool *decodepool.DecodeWorkerPool,
	options Options) *Coordinator {
	if options.MonitorInterval <= 0 {
		options.MonitorInterval = DefaultMonitorInterval
	}
	if options.DispatchInterval <= 0 {
		options.DispatchInterval = DefaultDispatchInterval
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Coordinator{
		profile:    profile,
		memory:     memory,
		threadPool: threadPool,
		decodePool: decodePool,
		options:    options,
		stop:       make(chan struct{}),
	}
}

// Start starts both pools, the result dispatcher and the memory monitor
func (s *Coordinator) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.threadPool.Start()
	s.decodePool.Start()

	s.loops.Add(2)
	go s.dispatchResults()
	go s.monitorMemory()
}

func (s *Coordinator) GetProfile() *Profile {
	return s.profile
}

func (s *Coordinator) RegisterShrinker(shrinker Shrinker) {
	s.shrinkerMux.Lock()
	defer s.shrinkerMux.Unlock()
	s.shrinkers = append(s.shrinkers, shrinker)
}

func (s *Coordinator) Submit(priority apitype.Priority, fn workerpool.TaskFunc) (workerpool.TaskId, error) {
	return s.threadPool.Submit(priority, fn)
}

func (s *Coordinator) Decode(path string, callback decodepool.Callback) (decodepool.TaskId, error) {
	return s.decodePool.Decode(path, callback)
}

// CancelAll drops everything that has not started yet. Pending decode
// callbacks are completed with decodepool.ErrCancelled.
func (s *Coordinator) CancelAll() int {
	return s.threadPool.CancelAll() + s.decodePool.CancelAll()
}

func (s *Coordinator) QueueLengths() map[apitype.Priority]int {
	return s.threadPool.QueueLengths()
}

func (s *Coordinator) PendingDecodes() int {
	return s.decodePool.Pending()
}

// CheckMemory reads the memory usage once and reacts to it
func (s *Coordinator) CheckMemory() MemoryPressure {
	usedPercent, err := s.memory.UsedPercent()
	if err != nil {
		logger.Debug.Printf("Could not read memory usage: %s", err)
		return PressureUnknown
	}

	pressure := PressureOf(usedPercent)
	switch pressure {
	case PressureElevated:
		logger.Debug.Printf("Memory usage at %.1f%%", usedPercent)
	case PressureHigh:
		shrunk := s.shrink(HighShrinkFraction)
		logger.Info.Printf("Memory usage at %.1f%%, released %d cached images", usedPercent, shrunk)
	case PressureCritical:
		cancelledLow := s.threadPool.Cancel(apitype.PriorityLow, 1)
		cancelledMedium := s.threadPool.Cancel(apitype.PriorityMedium, CriticalMediumCancel)
		shrunk := s.shrink(CriticalShrinkFraction)
		runtime.GC()
		debug.FreeOSMemory()
		logger.Warn.Printf("Memory usage critical at %.1f%%: cancelled %d low and %d medium priority tasks, released %d cached images",
			usedPercent, cancelledLow, cancelledMedium, shrunk)
	}
	return pressure
}

// Shutdown stops the background loops and both pools. Queued work is
// dropped and running work gets a bounded time to finish.
func (s *Coordinator) Shutdown() {
	if !s.shutdown.CompareAndSwap(false, true) {
		return
	}
	logger.Debug.Printf("Shutting down resource coordinator")
	close(s.stop)
	s.loops.Wait()

	s.CancelAll()
	if !s.threadPool.Shutdown(true, s.options.ShutdownTimeout) {
		logger.Warn.Printf("Worker pool did not stop cleanly")
	}
	s.decodePool.Shutdown(s.options.ShutdownTimeout)
}

func (s *Coordinator) shrink(fraction float64) int {
	s.shrinkerMux.Lock()
	shrinkers := append([]Shrinker{}, s.shrinkers...)
	s.shrinkerMux.Unlock()

	released := 0
	for _, shrinker := range shrinkers {
		released += shrinker.Shrink(fraction)
	}
	return released
}

func (s *Coordinator) dispatchResults() {
	defer s.loops.Done()
	ticker := time.NewTicker(s.options.DispatchInterval)
	defer ticker.Stop()
	maxResults := s.decodePool.Workers() * 4

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.decodePool.PollResults(maxResults)
		}
	}
}

func (s *Coordinator) monitorMemory() {
	defer s.loops.Done()
	ticker := time.NewTicker(s.options.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.CheckMemory()
		}
	}
}
