package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vincit.fi/image-viewer/api/apitype"
)

type recorder struct {
	mux   sync.Mutex
	order []string
}

func (s *recorder) task(name string, done *sync.WaitGroup) TaskFunc {
	done.Add(1)
	return func(ctx context.Context) {
		defer done.Done()
		s.mux.Lock()
		defer s.mux.Unlock()
		s.order = append(s.order, name)
	}
}

func (s *recorder) get() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]string{}, s.order...)
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not finish in time")
	}
}

// blockPool occupies the single worker until the returned function is called
func blockPool(t *testing.T, pool *PriorityWorkerPool) func() {
	started := make(chan struct{})
	release := make(chan struct{})
	_, err := pool.Submit(apitype.PriorityHigh, func(ctx context.Context) {
		close(started)
		<-release
	})
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking task did not start")
	}
	return func() { close(release) }
}

func TestPriorityWorkerPool_PriorityOrder(t *testing.T) {
	a := assert.New(t)

	pool := NewPriorityWorkerPool(1, nil)
	pool.Start()
	defer pool.Shutdown(true, time.Second)

	release := blockPool(t, pool)

	rec := &recorder{}
	var done sync.WaitGroup
	_, _ = pool.Submit(apitype.PriorityLow, rec.task("l1", &done))
	_, _ = pool.Submit(apitype.PriorityMedium, rec.task("m1", &done))
	_, _ = pool.Submit(apitype.PriorityHigh, rec.task("h1", &done))
	_, _ = pool.Submit(apitype.PriorityHigh, rec.task("h2", &done))

	release()
	waitOrFail(t, &done)

	a.Equal([]string{"h1", "h2", "m1", "l1"}, rec.get())
}

func TestPriorityWorkerPool_FifoWithinTier(t *testing.T) {
	a := assert.New(t)

	pool := NewPriorityWorkerPool(1, nil)
	pool.Start()
	defer pool.Shutdown(true, time.Second)

	release := blockPool(t, pool)

	rec := &recorder{}
	var done sync.WaitGroup
	_, _ = pool.Submit(apitype.PriorityMedium, rec.task("m1", &done))
	_, _ = pool.Submit(apitype.PriorityLow, rec.task("l1", &done))
	_, _ = pool.Submit(apitype.PriorityMedium, rec.task("m2", &done))
	_, _ = pool.Submit(apitype.PriorityLow, rec.task("l2", &done))
	_, _ = pool.Submit(apitype.PriorityMedium, rec.task("m3", &done))

	release()
	waitOrFail(t, &done)

	a.Equal([]string{"m1", "m2", "m3", "l1", "l2"}, rec.get())
}

func TestPriorityWorkerPool_RunsOnAllWorkers(t *testing.T) {
	a := assert.New(t)

	pool := NewPriorityWorkerPool(3, nil)
	pool.Start()
	defer pool.Shutdown(true, time.Second)

	var done sync.WaitGroup
	rec := &recorder{}
	for i := 0; i < 30; i++ {
		_, err := pool.Submit(apitype.Priorities[i%3], rec.task("t", &done))
		a.Nil(err)
	}
	waitOrFail(t, &done)

	a.Len(rec.get(), 30)
	a.Equal(3, pool.Size())
}

func TestPriorityWorkerPool_Cancel(t *testing.T) {
	a := assert.New(t)

	pool := NewPriorityWorkerPool(1, nil)
	pool.Start()
	defer pool.Shutdown(true, time.Second)

	release := blockPool(t, pool)

	rec := &recorder{}
	var unused sync.WaitGroup
	for i := 0; i < 4; i++ {
		_, _ = pool.Submit(apitype.PriorityLow, rec.task("low", &unused))
	}
	for i := 0; i < 5; i++ {
		_, _ = pool.Submit(apitype.PriorityMedium, rec.task("medium", &unused))
	}

	a.Equal(4, pool.QueueLength(apitype.PriorityLow))
	a.Equal(5, pool.QueueLength(apitype.PriorityMedium))

	a.Equal(4, pool.Cancel(apitype.PriorityLow, 1))
	a.Equal(2, pool.Cancel(apitype.PriorityMedium, 0.5))
	a.Equal(0, pool.Cancel(apitype.PriorityHigh, 1))

	lengths := pool.QueueLengths()
	a.Equal(0, lengths[apitype.PriorityLow])
	a.Equal(3, lengths[apitype.PriorityMedium])
	a.Equal(0, lengths[apitype.PriorityHigh])

	a.Equal(3, pool.CancelAll())
	release()
}

func TestPriorityWorkerPool_Shutdown(t *testing.T) {
	a := assert.New(t)

	t.Run("Submit after shutdown", func(t *testing.T) {
		pool := NewPriorityWorkerPool(2, nil)
		pool.Start()
		a.True(pool.Shutdown(false, time.Second))

		_, err := pool.Submit(apitype.PriorityHigh, func(ctx context.Context) {})

		a.ErrorIs(err, ErrPoolShutdown)
		a.True(pool.IsShutdown())
	})
	t.Run("In-flight task finishes", func(t *testing.T) {
		pool := NewPriorityWorkerPool(1, nil)
		pool.Start()

		finished := make(chan bool, 1)
		started := make(chan struct{})
		_, _ = pool.Submit(apitype.PriorityHigh, func(ctx context.Context) {
			close(started)
			time.Sleep(50 * time.Millisecond)
			finished <- ctx.Err() == nil
		})
		<-started

		a.True(pool.Shutdown(false, 2*time.Second))
		a.True(<-finished)
	})
	t.Run("In-flight task is cancelled", func(t *testing.T) {
		pool := NewPriorityWorkerPool(1, nil)
		pool.Start()

		cancelled := make(chan bool, 1)
		started := make(chan struct{})
		_, _ = pool.Submit(apitype.PriorityHigh, func(ctx context.Context) {
			close(started)
			select {
			case <-ctx.Done():
				cancelled <- true
			case <-time.After(5 * time.Second):
				cancelled <- false
			}
		})
		<-started

		a.True(pool.Shutdown(true, 2*time.Second))
		a.True(<-cancelled)
	})
	t.Run("Bounded wait", func(t *testing.T) {
		pool := NewPriorityWorkerPool(1, nil)
		pool.Start()

		release := make(chan struct{})
		defer close(release)
		started := make(chan struct{})
		_, _ = pool.Submit(apitype.PriorityHigh, func(ctx context.Context) {
			close(started)
			<-release
		})
		<-started

		startTime := time.Now()
		a.False(pool.Shutdown(false, 100*time.Millisecond))
		a.Less(time.Since(startTime), time.Second)
	})
}

func TestPriorityWorkerPool_PanicDoesNotKillWorker(t *testing.T) {
	a := assert.New(t)

	pool := NewPriorityWorkerPool(1, nil)
	pool.Start()
	defer pool.Shutdown(true, time.Second)

	_, _ = pool.Submit(apitype.PriorityHigh, func(ctx context.Context) {
		panic("broken task")
	})
	rec := &recorder{}
	var done sync.WaitGroup
	_, _ = pool.Submit(apitype.PriorityLow, rec.task("after", &done))

	waitOrFail(t, &done)
	a.Equal([]string{"after"}, rec.get())
}
