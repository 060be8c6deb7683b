package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jwillz7667/verbio-auth/token/refresh"
)

var _ refresh.Repo = (*RefreshTokenRepo)(nil)

// RefreshTokenRepo is the durable refresh.Repo. ConsumeAndReplace and the
// revocation queries guard on revoked_at IS NULL, so the row transition is
// an atomic conditional update and two concurrent rotations of one token
// can never both succeed.
type RefreshTokenRepo struct {
	db *sqlx.DB
}

func NewRefreshTokenRepo(db *sqlx.DB) *RefreshTokenRepo {
	return &RefreshTokenRepo{db: db}
}

func (r *RefreshTokenRepo) Create(ctx context.Context, t *refresh.Token) error {
	query := `INSERT INTO refresh_tokens (id, token_hash, family_id, user_id, expires_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.TokenHash, t.FamilyID, t.UserID, t.ExpiresAt, t.CreatedAt); err != nil {
		return errors.Wrap(err, "RefreshTokenRepo.Create")
	}
	return nil
}

func (r *RefreshTokenRepo) GetByHash(ctx context.Context, hash string) (*refresh.Token, error) {
	var t refresh.Token
	query := `SELECT id, token_hash, family_id, user_id, expires_at, created_at, revoked_at
	          FROM refresh_tokens WHERE token_hash = $1`
	if err := r.db.GetContext(ctx, &t, query, hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refresh.ErrNotFound
		}
		return nil, errors.Wrap(err, "RefreshTokenRepo.GetByHash")
	}
	return &t, nil
}

// ConsumeAndReplace runs the consume update and the successor insert in one
// transaction. Either the presented row is revoked and its successor exists,
// or neither write happened.
func (r *RefreshTokenRepo) ConsumeAndReplace(ctx context.Context, id string, at time.Time, successor *refresh.Token) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "RefreshTokenRepo.ConsumeAndReplace begin")
	}
	defer func() { _ = tx.Rollback() }()

	consume := `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`
	result, err := tx.ExecContext(ctx, consume, id, at)
	if err != nil {
		return false, errors.Wrap(err, "RefreshTokenRepo.ConsumeAndReplace consume")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "RefreshTokenRepo.ConsumeAndReplace rows affected")
	}
	if n == 0 {
		return false, nil
	}

	insert := `INSERT INTO refresh_tokens (id, token_hash, family_id, user_id, expires_at, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.ExecContext(ctx, insert,
		successor.ID, successor.TokenHash, successor.FamilyID, successor.UserID,
		successor.ExpiresAt, successor.CreatedAt); err != nil {
		return false, errors.Wrap(err, "RefreshTokenRepo.ConsumeAndReplace insert successor")
	}

	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "RefreshTokenRepo.ConsumeAndReplace commit")
	}
	return true, nil
}

func (r *RefreshTokenRepo) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE family_id = $1 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, familyID, at)
	if err != nil {
		return 0, errors.Wrap(err, "RefreshTokenRepo.RevokeFamily")
	}
	return rowsAffected(result)
}

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	query := `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, userID, at)
	if err != nil {
		return 0, errors.Wrap(err, "RefreshTokenRepo.RevokeAllForUser")
	}
	return rowsAffected(result)
}

func (r *RefreshTokenRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "RefreshTokenRepo.DeleteExpiredBefore")
	}
	return rowsAffected(result)
}

func rowsAffected(result sql.Result) (int64, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}
