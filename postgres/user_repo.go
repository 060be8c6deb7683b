package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/jwillz7667/verbio-auth/users"
)

var _ users.Repo = (*UserRepo)(nil)

// UserRepo is the durable users.Repo.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getBy(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

func (r *UserRepo) GetByAppleSubject(ctx context.Context, subject string) (*users.User, error) {
	return r.getBy(ctx, `SELECT * FROM users WHERE apple_subject = $1`, subject)
}

func (r *UserRepo) getBy(ctx context.Context, query, arg string) (*users.User, error) {
	var u users.User
	if err := r.db.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, errors.Wrap(err, "UserRepo get")
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, user *users.User) error {
	query := `INSERT INTO users (id, apple_subject, email, display_name, tier, minutes_used, translations_n, created_at, updated_at)
	          VALUES (:id, :apple_subject, :email, :display_name, :tier, :minutes_used, :translations_n, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return errors.Wrap(err, "UserRepo.Create")
	}
	return nil
}

func (r *UserRepo) Update(ctx context.Context, user *users.User) error {
	query := `UPDATE users SET email = :email, display_name = :display_name, tier = :tier,
	          minutes_used = :minutes_used, translations_n = :translations_n, updated_at = :updated_at
	          WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return errors.Wrap(err, "UserRepo.Update")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "UserRepo.Update rows affected")
	}
	if n == 0 {
		return users.ErrNotFound
	}
	return nil
}
