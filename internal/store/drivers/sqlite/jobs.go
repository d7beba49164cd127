package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
)

type jobsRepo struct {
	db dbtx
}

const jobColumns = `id, queue, payload, status, attempt_count, max_attempts, next_attempt_at, lease_owner, lease_expires_at, last_error, created_at, updated_at`

func (r *jobsRepo) EnqueueJob(ctx context.Context, j domain.Job) error {
	now := time.Now()
	next := j.NextAttemptAt
	if next.IsZero() {
		next = now
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO jobs (id, queue, payload, status, attempt_count, max_attempts, next_attempt_at, lease_owner, lease_expires_at, last_error, created_at, updated_at)
VALUES (?, ?, ?, ?, 0, ?, ?, NULL, NULL, '', ?, ?)
`,
		j.ID,
		j.Queue,
		string(j.Payload),
		string(domain.JobStatusPending),
		j.MaxAttempts,
		toMillis(next),
		toMillis(now),
		toMillis(now),
	)
	return mapConstraint(err)
}

func (r *jobsRepo) GetJob(ctx context.Context, id string) (domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row.Scan)
}

// LeaseJobs claims due jobs with a guarded per-row UPDATE, so two consumers
// polling the same queue can never claim the same job. A lapsed lease makes
// the job claimable again, which is what gives the queue its at-least-once
// delivery contract.
func (r *jobsRepo) LeaseJobs(ctx context.Context, queue, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]domain.Job, error) {
	if now.IsZero() {
		now = time.Now()
	}
	nowMs := toMillis(now)
	leaseMs := toMillis(now.Add(leaseTTL))

	rows, err := r.db.QueryContext(ctx, `
SELECT id
FROM jobs
WHERE queue = ?
AND (
	(status = ? AND next_attempt_at <= ?)
	OR
	(status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)
ORDER BY next_attempt_at ASC, created_at ASC, id ASC
LIMIT ?
`,
		queue,
		string(domain.JobStatusPending),
		nowMs,
		string(domain.JobStatusLeased),
		nowMs,
		limit,
	)
	if err != nil {
		return nil, err
	}

	candidateIDs := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		candidateIDs = append(candidateIDs, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	leased := make([]domain.Job, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = ?, attempt_count = attempt_count + 1, lease_owner = ?, lease_expires_at = ?, updated_at = ?
WHERE id = ?
AND (
	(status = ? AND next_attempt_at <= ?)
	OR
	(status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?)
)
`,
			string(domain.JobStatusLeased),
			consumer,
			leaseMs,
			nowMs,
			id,
			string(domain.JobStatusPending),
			nowMs,
			string(domain.JobStatusLeased),
			nowMs,
		)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Another consumer won the race for this job.
			continue
		}

		job, err := r.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		leased = append(leased, job)
	}

	return leased, nil
}

func (r *jobsRepo) MarkJobSucceeded(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = ?, lease_owner = NULL, lease_expires_at = NULL, updated_at = ?
WHERE id = ? AND status = ?
`,
		string(domain.JobStatusSucceeded),
		toMillis(now),
		id,
		string(domain.JobStatusLeased),
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *jobsRepo) MarkJobFailed(ctx context.Context, id string, lastError string, retryAt *time.Time, now time.Time) error {
	status := domain.JobStatusDead
	var next sql.NullInt64
	if retryAt != nil {
		status = domain.JobStatusPending
		next = sql.NullInt64{Int64: toMillis(*retryAt), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = ?, next_attempt_at = COALESCE(?, next_attempt_at), lease_owner = NULL, lease_expires_at = NULL, last_error = ?, updated_at = ?
WHERE id = ? AND status = ?
`,
		string(status),
		next,
		lastError,
		toMillis(now),
		id,
		string(domain.JobStatusLeased),
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *jobsRepo) CountJobs(ctx context.Context, queue string, status domain.JobStatus) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE queue = ? AND status = ?`, queue, string(status))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanJob(scan func(dest ...any) error) (domain.Job, error) {
	var (
		j                  domain.Job
		payload            string
		status             string
		leaseOwner         sql.NullString
		leaseExpires       sql.NullInt64
		next, created, upd int64
	)
	err := scan(&j.ID, &j.Queue, &payload, &status, &j.AttemptCount, &j.MaxAttempts, &next, &leaseOwner, &leaseExpires, &j.LastError, &created, &upd)
	if err != nil {
		return domain.Job{}, mapNotFound(err)
	}
	j.Payload = []byte(payload)
	j.Status = domain.JobStatus(status)
	j.LeaseOwner = mapNullString(leaseOwner)
	j.LeaseExpiresAt = fromNullMillis(leaseExpires)
	j.NextAttemptAt = fromMillis(next)
	j.CreatedAt = fromMillis(created)
	j.UpdatedAt = fromMillis(upd)
	return j, nil
}
