package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/inkwellhq/inkwell/internal/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, name, email, password_hash, verify_token_hash, verify_sent_at, verified_at, created_at, updated_at`

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id, name, email, password_hash, verify_token_hash, verify_sent_at, verified_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		u.ID,
		u.Name,
		u.Email,
		u.PasswordHash,
		mapStringNull(u.VerifyTokenHash),
		toNullMillis(u.VerifySentAt),
		toNullMillis(u.VerifiedAt),
		now,
		now,
	)
	return mapConstraint(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *usersRepo) GetUserByVerifyTokenHash(ctx context.Context, hash string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE verify_token_hash = ?`, hash)
	return scanUser(row)
}

func (r *usersRepo) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE users
SET verified_at = ?, verify_token_hash = NULL, updated_at = ?
WHERE id = ? AND verified_at IS NULL
`,
		toMillis(at),
		toMillis(time.Now()),
		userID,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u            domain.User
		tokenHash    sql.NullString
		sentAt       sql.NullInt64
		verifiedAt   sql.NullInt64
		created, upd int64
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &tokenHash, &sentAt, &verifiedAt, &created, &upd)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.VerifyTokenHash = mapNullString(tokenHash)
	u.VerifySentAt = fromNullMillis(sentAt)
	u.VerifiedAt = fromNullMillis(verifiedAt)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(upd)
	return u, nil
}
