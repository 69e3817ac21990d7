package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(workers, queue int) *WorkerPool {
	return NewWorkerPool(&Config{
		Name:       "test",
		MaxWorkers: workers,
		QueueSize:  queue,
	})
}

func TestPool_ExecutesTasks(t *testing.T) {
	pool := newTestPool(4, 16)
	defer pool.Stop()

	var mu sync.Mutex
	executed := map[string]bool{}
	var wg sync.WaitGroup

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		id := id
		wg.Add(1)
		err := pool.Submit(context.Background(), Task{
			ID: id,
			Fn: func(ctx context.Context) error {
				defer wg.Done()
				mu.Lock()
				executed[id] = true
				mu.Unlock()
				return nil
			},
		})
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Len(t, executed, 5)
	assert.Eventually(t, func() bool { return pool.Completed() == 5 },
		time.Second, 5*time.Millisecond)
}

func TestPool_CountsFailures(t *testing.T) {
	pool := newTestPool(2, 4)
	defer pool.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	err := pool.Submit(context.Background(), Task{
		ID: "failing",
		Fn: func(ctx context.Context) error {
			defer wg.Done()
			return errors.New("task error")
		},
	})
	require.NoError(t, err)
	wg.Wait()

	assert.Eventually(t, func() bool { return pool.Failed() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestPool_RecoversFromPanic(t *testing.T) {
	pool := newTestPool(2, 4)
	defer pool.Stop()

	var wg sync.WaitGroup
	wg.Add(1)
	err := pool.Submit(context.Background(), Task{
		ID: "panicking",
		Fn: func(ctx context.Context) error {
			defer wg.Done()
			panic("boom")
		},
	})
	require.NoError(t, err)
	wg.Wait()

	// The panic is converted to a failure; workers stay alive
	assert.Eventually(t, func() bool { return pool.Failed() == 1 },
		time.Second, 5*time.Millisecond)

	wg.Add(1)
	err = pool.Submit(context.Background(), Task{
		ID: "after",
		Fn: func(ctx context.Context) error {
			defer wg.Done()
			return nil
		},
	})
	require.NoError(t, err)
	wg.Wait()
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := newTestPool(1, 1)
	pool.Stop()

	err := pool.Submit(context.Background(), Task{ID: "late", Fn: func(ctx context.Context) error { return nil }})
	assert.Error(t, err)
}

func TestPool_SubmitHonorsContext(t *testing.T) {
	pool := newTestPool(1, 1)
	defer pool.Stop()

	block := make(chan struct{})
	defer close(block)

	// Occupy the single worker and fill the queue
	submit := func(id string) error {
		return pool.Submit(context.Background(), Task{
			ID: id,
			Fn: func(ctx context.Context) error {
				<-block
				return nil
			},
		})
	}
	require.NoError(t, submit("running"))
	require.NoError(t, submit("queued"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Submit(ctx, Task{ID: "blocked", Fn: func(ctx context.Context) error { return nil }})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPool_StopIsIdempotent(t *testing.T) {
	pool := newTestPool(2, 4)
	pool.Stop()
	pool.Stop()
}
