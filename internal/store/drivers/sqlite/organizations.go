package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
)

type organizationsRepo struct {
	db dbtx
}

const orgColumns = `id, name, description, join_pin, head_user_id, created_at, updated_at`

func (r *organizationsRepo) CreateOrganization(ctx context.Context, o domain.Organization) error {
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx, `
INSERT INTO organizations (id, name, description, join_pin, head_user_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		o.ID,
		o.Name,
		o.Description,
		o.JoinPIN,
		o.HeadUserID,
		now,
		now,
	)
	return mapConstraint(err)
}

func (r *organizationsRepo) GetOrganizationByID(ctx context.Context, id string) (domain.Organization, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id)
	return scanOrganization(row)
}

func (r *organizationsRepo) GetOrganizationByPIN(ctx context.Context, pin string) (domain.Organization, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organizations WHERE join_pin = ?`, pin)
	return scanOrganization(row)
}

func scanOrganization(row *sql.Row) (domain.Organization, error) {
	var (
		o            domain.Organization
		created, upd int64
	)
	err := row.Scan(&o.ID, &o.Name, &o.Description, &o.JoinPIN, &o.HeadUserID, &created, &upd)
	if err != nil {
		return domain.Organization{}, mapNotFound(err)
	}
	o.CreatedAt = fromMillis(created)
	o.UpdatedAt = fromMillis(upd)
	return o, nil
}
