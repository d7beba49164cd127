// Package jobs is the async execution layer: a durable broker over the
// store's job table plus per-queue worker pools. Queues survive restarts;
// anything enqueued before a crash is picked up again afterwards.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/pkg/idx"
)

// Per-queue retry policy. Email is deliberately single-shot so a flaky
// relay cannot spam recipients with duplicates; cleanup retries because
// deleting twice is harmless.
const (
	EmailMaxAttempts   = 1
	CleanupMaxAttempts = 3
)

// Broker enqueues durable jobs. Enqueueing only writes a row; execution
// happens in whichever pool serves the queue.
type Broker struct {
	store store.Store
}

func NewBroker(st store.Store) *Broker {
	return &Broker{store: st}
}

// EnqueueOption adjusts a single enqueue.
type EnqueueOption func(*domain.Job)

// WithDelay defers the first attempt by d.
func WithDelay(d time.Duration) EnqueueOption {
	return func(j *domain.Job) {
		j.NextAttemptAt = j.NextAttemptAt.Add(d)
	}
}

// WithMaxAttempts overrides the queue's default attempt budget.
func WithMaxAttempts(n int) EnqueueOption {
	return func(j *domain.Job) {
		j.MaxAttempts = n
	}
}

// Enqueue persists a job on queue with the JSON encoding of payload.
func (b *Broker) Enqueue(ctx context.Context, queue string, payload any, opts ...EnqueueOption) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", queue, err)
	}

	now := time.Now()
	job := domain.Job{
		ID:            idx.New().String(),
		Queue:         queue,
		Payload:       raw,
		Status:        domain.JobStatusPending,
		MaxAttempts:   defaultMaxAttempts(queue),
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, opt := range opts {
		opt(&job)
	}

	if err := b.store.Jobs().EnqueueJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", queue, err)
	}
	return job.ID, nil
}

func defaultMaxAttempts(queue string) int {
	switch queue {
	case domain.QueueEmail:
		return EmailMaxAttempts
	case domain.QueueFileCleanup:
		return CleanupMaxAttempts
	default:
		return 1
	}
}
