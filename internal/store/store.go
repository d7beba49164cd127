package store

import (
	"context"
	"errors"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and keeps transaction scoping explicit so callers cannot
// accidentally nest transactions.
type Store interface {
	Users() Users
	Organizations() Organizations
	Memberships() Memberships
	Invites() Invites
	Templates() Templates
	Documents() Documents
	Jobs() Jobs

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// recommended way to run multi-step atomic operations (e.g. invite
	// acceptance inserting a membership and flipping the invite status).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It exposes the same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)

	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByVerifyTokenHash looks up the user holding an outstanding
	// verification token fingerprint.
	GetUserByVerifyTokenHash(ctx context.Context, hash string) (domain.User, error)

	// MarkEmailVerified sets verified_at and clears the verification token,
	// making the token single-use.
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error
}

type Organizations interface {
	// CreateOrganization inserts a new organization. Returns
	// ErrAlreadyExists when the join PIN collides with an existing one.
	CreateOrganization(ctx context.Context, o domain.Organization) error

	GetOrganizationByID(ctx context.Context, id string) (domain.Organization, error)

	// GetOrganizationByPIN resolves a join PIN. PINs are unique by
	// constraint, so at most one organization matches.
	GetOrganizationByPIN(ctx context.Context, pin string) (domain.Organization, error)
}

type Memberships interface {
	// CreateMembership inserts a membership row. Returns ErrAlreadyExists
	// when the (org, user) pair already holds one; this is the backstop for
	// concurrent duplicate joins.
	CreateMembership(ctx context.Context, m domain.Membership) error

	GetMembership(ctx context.Context, orgID, userID string) (domain.Membership, error)

	ListMembershipsByOrg(ctx context.Context, orgID string) ([]domain.Membership, error)

	UpdateMembershipRole(ctx context.Context, orgID, userID string, role domain.Role) error

	DeleteMembership(ctx context.Context, orgID, userID string) error

	// EmailIsMember reports whether the email belongs to a current member of
	// the organization (used to reject redundant invites).
	EmailIsMember(ctx context.Context, orgID, email string) (bool, error)
}

type Invites interface {
	// CreateInvite writes a new invite (token_hash is the SHA-256
	// fingerprint of the opaque invite token). Returns ErrAlreadyExists
	// when a PENDING invite for the same (org, email) pair exists.
	CreateInvite(ctx context.Context, inv domain.Invite) error

	// GetInviteByTokenHash returns the invite regardless of status; status
	// and expiry interpretation belong to the service layer.
	GetInviteByTokenHash(ctx context.Context, hash string) (domain.Invite, error)

	// UpdateInviteStatus transitions an invite only when its current status
	// matches from, returning ErrNotFound otherwise. This makes concurrent
	// accept/decline races resolve to exactly one winner.
	UpdateInviteStatus(ctx context.Context, inviteID string, from, to domain.InviteStatus) error

	// HasPendingInvite reports whether a PENDING invite exists for the
	// (org, email) pair.
	HasPendingInvite(ctx context.Context, orgID, email string) (bool, error)
}

type Templates interface {
	CreateTemplate(ctx context.Context, t domain.Template) error

	GetTemplateByID(ctx context.Context, id string) (domain.Template, error)

	DeleteTemplate(ctx context.Context, id string) error

	// ListSweepCandidates returns templates matching the temporary
	// heuristic (temporary flag or temp name prefix) created before cutoff.
	ListSweepCandidates(ctx context.Context, cutoff time.Time) ([]domain.Template, error)
}

type Documents interface {
	CreateDocument(ctx context.Context, d domain.GeneratedDocument) error

	GetDocumentByID(ctx context.Context, id string) (domain.GeneratedDocument, error)

	ListDocumentsByOrg(ctx context.Context, orgID string) ([]domain.GeneratedDocument, error)
}

type Jobs interface {
	// EnqueueJob persists a new pending job.
	EnqueueJob(ctx context.Context, j domain.Job) error

	GetJob(ctx context.Context, id string) (domain.Job, error)

	// LeaseJobs claims up to limit due jobs from queue for consumer,
	// marking them leased until now+leaseTTL. Jobs whose lease has lapsed
	// are reclaimable, which is what makes delivery at-least-once.
	LeaseJobs(ctx context.Context, queue, consumer string, limit int, now time.Time, leaseTTL time.Duration) ([]domain.Job, error)

	// MarkJobSucceeded finalizes a leased job.
	MarkJobSucceeded(ctx context.Context, id string, now time.Time) error

	// MarkJobFailed records a failed attempt. When retryAt is non-nil the
	// job returns to pending with that due time; otherwise it is dead.
	MarkJobFailed(ctx context.Context, id string, lastError string, retryAt *time.Time, now time.Time) error

	// CountJobs reports queue depth by status, for metrics and tests.
	CountJobs(ctx context.Context, queue string, status domain.JobStatus) (int, error)
}
