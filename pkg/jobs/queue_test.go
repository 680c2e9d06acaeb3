package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesAndDrainsOnStop(t *testing.T) {
	var processed int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, QueueConfig{Workers: 2, BufferSize: 16})

	require.Error(t, q.Enqueue(Job{ID: "early"}))

	q.Start(context.Background())
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "noop"}))
	}
	q.Stop()

	assert.Equal(t, int32(10), atomic.LoadInt32(&processed))
	assert.Error(t, q.Enqueue(Job{ID: "late"}))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var results []error
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond, OnResult: func(job Job, err error) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, err)
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.NoError(t, results[0])
	mu.Unlock()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	done := make(chan error, 1)
	q := NewQueue("fail", func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}, QueueConfig{Workers: 1, MaxRetries: 1, RetryDelay: time.Millisecond, OnResult: func(job Job, err error) {
		done <- err
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "1"}))
	select {
	case err := <-done:
		assert.EqualError(t, err, "permanent")
	case <-time.After(time.Second):
		t.Fatal("job result not reported")
	}
}
