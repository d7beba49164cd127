package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
)

type invitesRepo struct {
	db dbtx
}

const inviteColumns = `id, org_id, email, invited_by, role, token_hash, status, expires_at, created_at, updated_at`

func (r *invitesRepo) CreateInvite(ctx context.Context, inv domain.Invite) error {
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx, `
INSERT INTO invites (id, org_id, email, invited_by, role, token_hash, status, expires_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		inv.ID,
		inv.OrgID,
		inv.Email,
		inv.InvitedBy,
		string(inv.Role),
		inv.TokenHash,
		string(inv.Status),
		toMillis(inv.ExpiresAt),
		now,
		now,
	)
	return mapConstraint(err)
}

func (r *invitesRepo) GetInviteByTokenHash(ctx context.Context, hash string) (domain.Invite, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE token_hash = ?`, hash)
	return scanInvite(row)
}

func (r *invitesRepo) UpdateInviteStatus(ctx context.Context, inviteID string, from, to domain.InviteStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE invites SET status = ?, updated_at = ? WHERE id = ? AND status = ?
`,
		string(to),
		toMillis(time.Now()),
		inviteID,
		string(from),
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *invitesRepo) HasPendingInvite(ctx context.Context, orgID, email string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(1) FROM invites WHERE org_id = ? AND email = ? AND status = ?
`, orgID, email, string(domain.InviteStatusPending))

	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanInvite(row *sql.Row) (domain.Invite, error) {
	var (
		inv                   domain.Invite
		role, status          string
		expires, created, upd int64
	)
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.InvitedBy, &role, &inv.TokenHash, &status, &expires, &created, &upd)
	if err != nil {
		return domain.Invite{}, mapNotFound(err)
	}
	inv.Role = domain.Role(role)
	inv.Status = domain.InviteStatus(status)
	inv.ExpiresAt = fromMillis(expires)
	inv.CreatedAt = fromMillis(created)
	inv.UpdatedAt = fromMillis(upd)
	return inv, nil
}
