package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
)

type templatesRepo struct {
	db dbtx
}

const templateColumns = `id, org_id, name, storage_key, temporary, created_at, updated_at`

func (r *templatesRepo) CreateTemplate(ctx context.Context, t domain.Template) error {
	now := time.Now()
	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO templates (id, org_id, name, storage_key, temporary, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		t.ID,
		t.OrgID,
		t.Name,
		mapStringNull(t.StorageKey),
		t.Temporary,
		toMillis(created),
		toMillis(now),
	)
	return mapConstraint(err)
}

func (r *templatesRepo) GetTemplateByID(ctx context.Context, id string) (domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	return scanTemplate(row.Scan)
}

func (r *templatesRepo) DeleteTemplate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *templatesRepo) ListSweepCandidates(ctx context.Context, cutoff time.Time) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+templateColumns+`
FROM templates
WHERE (temporary = 1 OR name LIKE ? || '%') AND created_at <= ?
ORDER BY created_at ASC
`, domain.TempNamePrefix, toMillis(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		t, err := scanTemplate(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTemplate(scan func(dest ...any) error) (domain.Template, error) {
	var (
		t            domain.Template
		storageKey   sql.NullString
		created, upd int64
	)
	err := scan(&t.ID, &t.OrgID, &t.Name, &storageKey, &t.Temporary, &created, &upd)
	if err != nil {
		return domain.Template{}, mapNotFound(err)
	}
	t.StorageKey = mapNullString(storageKey)
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(upd)
	return t, nil
}
