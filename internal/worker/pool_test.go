package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := NewPool(arbor.NewLogger(), 3)
	pool.Start()

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		ok := pool.Submit(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		})
		assert.True(t, ok)
	}
	wg.Wait()
	pool.Stop()

	assert.Equal(t, int64(20), atomic.LoadInt64(&count))
}

func TestPoolTasksCanSubmitMoreTasks(t *testing.T) {
	pool := NewPool(arbor.NewLogger(), 1)
	pool.Start()

	done := make(chan struct{})
	pool.Submit(func(ctx context.Context) {
		// Re-submission must not block even with a single busy worker.
		pool.Submit(func(ctx context.Context) {
			close(done)
		})
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("chained task did not run")
	}
	pool.Stop()
}

func TestPoolStopDrainsBacklog(t *testing.T) {
	pool := NewPool(arbor.NewLogger(), 2)
	pool.Start()

	var count int64
	for i := 0; i < 10; i++ {
		pool.Submit(func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&count, 1)
		})
	}
	pool.Stop()

	assert.Equal(t, int64(10), atomic.LoadInt64(&count))
	assert.False(t, pool.Submit(func(ctx context.Context) {}))
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	pool := NewPool(arbor.NewLogger(), 1)
	pool.Start()

	done := make(chan struct{})
	pool.Submit(func(ctx context.Context) {
		panic("handler bug")
	})
	pool.Submit(func(ctx context.Context) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	pool.Stop()
}
