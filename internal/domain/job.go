package domain

import "time"

// JobStatus is the broker-side lifecycle of one durable job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusLeased    JobStatus = "leased"
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusDead marks a job that exhausted its attempts. Kept for
	// inspection instead of being deleted.
	JobStatusDead JobStatus = "dead"
)

// Queue names served by the job subsystem.
const (
	QueueEmail       = "email"
	QueueFileCleanup = "file_cleanup"
)

type Job struct {
	ID             string
	Queue          string
	Payload        []byte // JSON
	Status         JobStatus
	AttemptCount   int
	MaxAttempts    int
	NextAttemptAt  time.Time
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
