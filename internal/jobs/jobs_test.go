package jobs

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/internal/store/drivers/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "jobs_test.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testPoolConfig(queue string) PoolConfig {
	return PoolConfig{
		Queue:        queue,
		Concurrency:  2,
		PollInterval: 10 * time.Millisecond,
		LeaseTTL:     time.Second,
		BackoffBase:  time.Millisecond,
		BackoffCap:   5 * time.Millisecond,
	}
}

func TestEnqueueDefaults(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	broker := NewBroker(st)
	ctx := context.Background()

	emailID, err := broker.Enqueue(ctx, domain.QueueEmail, EmailPayload{To: "a@b.c"})
	require.NoError(t, err)
	cleanupID, err := broker.Enqueue(ctx, domain.QueueFileCleanup, CleanupPayload{TemplateID: "t1"})
	require.NoError(t, err)

	email, err := st.Jobs().GetJob(ctx, emailID)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusPending, email.Status)
	require.Equal(t, EmailMaxAttempts, email.MaxAttempts)

	cleanup, err := st.Jobs().GetJob(ctx, cleanupID)
	require.NoError(t, err)
	require.Equal(t, CleanupMaxAttempts, cleanup.MaxAttempts)
	require.False(t, cleanup.NextAttemptAt.After(time.Now()))
}

func TestEnqueueWithDelayIsNotLeasedEarly(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	broker := NewBroker(st)
	ctx := context.Background()

	_, err := broker.Enqueue(ctx, domain.QueueEmail, EmailPayload{To: "a@b.c"}, WithDelay(time.Hour))
	require.NoError(t, err)

	leased, err := st.Jobs().LeaseJobs(ctx, domain.QueueEmail, "test", 10, time.Now(), time.Second)
	require.NoError(t, err)
	require.Empty(t, leased)
}

func TestPoolProcessesJob(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	broker := NewBroker(st)
	ctx := context.Background()

	var handled atomic.Int32
	pool := NewPool(testPoolConfig(domain.QueueEmail), st, HandlerFunc(func(ctx context.Context, job domain.Job) error {
		handled.Add(1)
		return nil
	}), slog.Default())
	pool.Start()
	defer pool.Stop()

	id, err := broker.Enqueue(ctx, domain.QueueEmail, EmailPayload{To: "a@b.c"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := st.Jobs().GetJob(ctx, id)
		return err == nil && job.Status == domain.JobStatusSucceeded
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), handled.Load())
}

func TestPoolRetriesUntilDead(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	broker := NewBroker(st)
	ctx := context.Background()

	var attempts atomic.Int32
	pool := NewPool(testPoolConfig(domain.QueueFileCleanup), st, HandlerFunc(func(ctx context.Context, job domain.Job) error {
		attempts.Add(1)
		return errors.New("boom")
	}), slog.Default())
	pool.Start()
	defer pool.Stop()

	id, err := broker.Enqueue(ctx, domain.QueueFileCleanup, CleanupPayload{TemplateID: "t1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := st.Jobs().GetJob(ctx, id)
		return err == nil && job.Status == domain.JobStatusDead
	}, 5*time.Second, 10*time.Millisecond)

	job, err := st.Jobs().GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, CleanupMaxAttempts, job.AttemptCount)
	require.Equal(t, int32(CleanupMaxAttempts), attempts.Load())
	require.Contains(t, job.LastError, "boom")
}

func TestEmailFailureIsSingleShot(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	broker := NewBroker(st)
	ctx := context.Background()

	var attempts atomic.Int32
	pool := NewPool(testPoolConfig(domain.QueueEmail), st, HandlerFunc(func(ctx context.Context, job domain.Job) error {
		attempts.Add(1)
		return errors.New("relay down")
	}), slog.Default())
	pool.Start()
	defer pool.Stop()

	id, err := broker.Enqueue(ctx, domain.QueueEmail, EmailPayload{To: "a@b.c"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := st.Jobs().GetJob(ctx, id)
		return err == nil && job.Status == domain.JobStatusDead
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), attempts.Load())
}

func TestPanickingHandlerFailsJob(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	broker := NewBroker(st)
	ctx := context.Background()

	pool := NewPool(testPoolConfig(domain.QueueEmail), st, HandlerFunc(func(ctx context.Context, job domain.Job) error {
		panic("bad payload")
	}), slog.Default())
	pool.Start()
	defer pool.Stop()

	id, err := broker.Enqueue(ctx, domain.QueueEmail, EmailPayload{To: "a@b.c"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := st.Jobs().GetJob(ctx, id)
		return err == nil && job.Status == domain.JobStatusDead
	}, 5*time.Second, 10*time.Millisecond)

	job, err := st.Jobs().GetJob(ctx, id)
	require.NoError(t, err)
	require.Contains(t, job.LastError, "handler panic")
}

func TestLapsedLeaseIsReclaimed(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	broker := NewBroker(st)
	ctx := context.Background()

	id, err := broker.Enqueue(ctx, domain.QueueFileCleanup, CleanupPayload{TemplateID: "t1"})
	require.NoError(t, err)

	// First consumer claims the job with a lease that lapses immediately.
	leased, err := st.Jobs().LeaseJobs(ctx, domain.QueueFileCleanup, "crashed-worker", 1, time.Now(), time.Millisecond)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	time.Sleep(5 * time.Millisecond)

	reclaimed, err := st.Jobs().LeaseJobs(ctx, domain.QueueFileCleanup, "survivor", 1, time.Now(), time.Second)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
	require.Equal(t, id, reclaimed[0].ID)
	require.Equal(t, 2, reclaimed[0].AttemptCount)
}
