package sqlite

import (
	"context"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
)

type membershipsRepo struct {
	db dbtx
}

func (r *membershipsRepo) CreateMembership(ctx context.Context, m domain.Membership) error {
	joined := m.JoinedAt
	if joined.IsZero() {
		joined = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO memberships (org_id, user_id, role, joined_at)
VALUES (?, ?, ?, ?)
`,
		m.OrgID,
		m.UserID,
		string(m.Role),
		toMillis(joined),
	)
	return mapConstraint(err)
}

func (r *membershipsRepo) GetMembership(ctx context.Context, orgID, userID string) (domain.Membership, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT org_id, user_id, role, joined_at FROM memberships WHERE org_id = ? AND user_id = ?
`, orgID, userID)

	var (
		m      domain.Membership
		role   string
		joined int64
	)
	if err := row.Scan(&m.OrgID, &m.UserID, &role, &joined); err != nil {
		return domain.Membership{}, mapNotFound(err)
	}
	m.Role = domain.Role(role)
	m.JoinedAt = fromMillis(joined)
	return m, nil
}

func (r *membershipsRepo) ListMembershipsByOrg(ctx context.Context, orgID string) ([]domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT org_id, user_id, role, joined_at FROM memberships WHERE org_id = ? ORDER BY joined_at ASC, user_id ASC
`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		var (
			m      domain.Membership
			role   string
			joined int64
		)
		if err := rows.Scan(&m.OrgID, &m.UserID, &role, &joined); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		m.JoinedAt = fromMillis(joined)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *membershipsRepo) UpdateMembershipRole(ctx context.Context, orgID, userID string, role domain.Role) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE memberships SET role = ? WHERE org_id = ? AND user_id = ?
`, string(role), orgID, userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *membershipsRepo) DeleteMembership(ctx context.Context, orgID, userID string) error {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM memberships WHERE org_id = ? AND user_id = ?
`, orgID, userID)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *membershipsRepo) EmailIsMember(ctx context.Context, orgID, email string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM memberships m
JOIN users u ON u.id = m.user_id
WHERE m.org_id = ? AND u.email = ?
`, orgID, email)

	var n int
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
