package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
)

type documentsRepo struct {
	db dbtx
}

const documentColumns = `id, org_id, template_id, name, storage_key, created_at`

func (r *documentsRepo) CreateDocument(ctx context.Context, d domain.GeneratedDocument) error {
	created := d.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO generated_documents (id, org_id, template_id, name, storage_key, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		d.ID,
		d.OrgID,
		mapStringNull(d.TemplateID),
		d.Name,
		d.StorageKey,
		toMillis(created),
	)
	return mapConstraint(err)
}

func (r *documentsRepo) GetDocumentByID(ctx context.Context, id string) (domain.GeneratedDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM generated_documents WHERE id = ?`, id)
	return scanDocument(row.Scan)
}

func (r *documentsRepo) ListDocumentsByOrg(ctx context.Context, orgID string) ([]domain.GeneratedDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+` FROM generated_documents WHERE org_id = ? ORDER BY created_at DESC, id DESC
`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GeneratedDocument
	for rows.Next() {
		d, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDocument(scan func(dest ...any) error) (domain.GeneratedDocument, error) {
	var (
		d          domain.GeneratedDocument
		templateID sql.NullString
		created    int64
	)
	err := scan(&d.ID, &d.OrgID, &templateID, &d.Name, &d.StorageKey, &created)
	if err != nil {
		return domain.GeneratedDocument{}, mapNotFound(err)
	}
	d.TemplateID = mapNullString(templateID)
	d.CreatedAt = fromMillis(created)
	return d, nil
}
