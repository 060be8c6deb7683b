// Package postgres implements the durable repositories on PostgreSQL.
// Rotation correctness relies on the database's atomic conditional updates,
// so revocation state survives process restarts and is shared across
// server instances.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Connect opens and pings a PostgreSQL connection pool.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres connect")
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id             UUID PRIMARY KEY,
	apple_subject  TEXT NOT NULL UNIQUE,
	email          TEXT NOT NULL DEFAULT '',
	display_name   TEXT NOT NULL DEFAULT '',
	tier           TEXT NOT NULL DEFAULT 'free',
	minutes_used   BIGINT NOT NULL DEFAULT 0,
	translations_n BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	id         UUID PRIMARY KEY,
	token_hash TEXT NOT NULL UNIQUE,
	family_id  UUID NOT NULL,
	user_id    UUID NOT NULL REFERENCES users (id),
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	revoked_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS refresh_tokens_family_idx ON refresh_tokens (family_id);
CREATE INDEX IF NOT EXISTS refresh_tokens_user_idx ON refresh_tokens (user_id);
`

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "postgres ensure schema")
	}
	return nil
}
