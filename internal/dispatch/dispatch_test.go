package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pulse-server/internal/common/logger"
	"pulse-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	pool := NewPool(3, 10, 50*time.Millisecond, func(_ context.Context, task Task) {
		mu.Lock()
		seen[task.Job.ID] = true
		mu.Unlock()
	}, logger.NewTestLogger(t))
	pool.Start()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, pool.Submit(context.Background(), Task{Job: models.NotificationJob{ID: id}}))
	}
	require.NoError(t, pool.Shutdown(context.Background()))

	assert.Len(t, seen, 4)
	assert.ErrorIs(t, pool.Submit(context.Background(), Task{}), ErrPoolClosed)
}

func TestPool_SubmitTimesOutWhenFull(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 1, 20*time.Millisecond, func(context.Context, Task) { <-release }, logger.NewTestLogger(t))
	pool.Start()

	require.NoError(t, pool.Submit(context.Background(), Task{Job: models.NotificationJob{ID: "running"}}))
	// Wait for the worker to take the first task so the buffer slot is free.
	require.Eventually(t, func() bool { return len(pool.tasks) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Submit(context.Background(), Task{Job: models.NotificationJob{ID: "queued"}}))

	err := pool.Submit(context.Background(), Task{Job: models.NotificationJob{ID: "overflow"}})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_RecoversFromPanics(t *testing.T) {
	var ran atomic.Int32
	pool := NewPool(1, 4, time.Second, func(_ context.Context, task Task) {
		ran.Add(1)
		if task.Job.ID == "boom" {
			panic("provider exploded")
		}
	}, logger.NewTestLogger(t))
	pool.Start()

	require.NoError(t, pool.Submit(context.Background(), Task{Job: models.NotificationJob{ID: "boom"}}))
	require.NoError(t, pool.Submit(context.Background(), Task{Job: models.NotificationJob{ID: "fine"}}))
	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, int32(2), ran.Load())
}

func TestPool_ShutdownDeadlineCancelsWork(t *testing.T) {
	pool := NewPool(1, 1, time.Second, func(ctx context.Context, _ Task) { <-ctx.Done() }, logger.NewTestLogger(t))
	pool.Start()
	require.NoError(t, pool.Submit(context.Background(), Task{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
}

type fakeClaimer struct {
	now, staleBefore time.Time
	limit            int
	jobs             []models.NotificationJob
	err              error
}

func (f *fakeClaimer) ClaimDue(_ context.Context, now, staleBefore time.Time, limit int) ([]models.NotificationJob, error) {
	f.now, f.staleBefore, f.limit = now, staleBefore, limit
	return f.jobs, f.err
}

type fakeSubmitter struct {
	tasks []Task
	fail  map[string]bool
}

func (f *fakeSubmitter) Submit(_ context.Context, task Task) error {
	if f.fail[task.Job.ID] {
		return ErrQueueFull
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func TestSweeper_SubmitsClaimedJobsWithoutVariant(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	claimer := &fakeClaimer{jobs: []models.NotificationJob{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	sub := &fakeSubmitter{fail: map[string]bool{"b": true}}
	s := NewSweeper(claimer, sub, 15*time.Second, time.Minute, 50, logger.NewTestLogger(t))
	s.now = func() time.Time { return fixed }

	n := s.Sweep(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, fixed, claimer.now)
	assert.Equal(t, fixed.Add(-time.Minute), claimer.staleBefore)
	assert.Equal(t, 50, claimer.limit)
	require.Len(t, sub.tasks, 2)
	assert.Nil(t, sub.tasks[0].Variant)
}

func TestSweeper_ClaimErrorIsLogged(t *testing.T) {
	s := NewSweeper(&fakeClaimer{err: errors.New("db down")}, &fakeSubmitter{}, time.Second, time.Minute, 10, logger.NewTestLogger(t))
	assert.Zero(t, s.Sweep(context.Background()))
}
