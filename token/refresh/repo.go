package refresh

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by GetByHash when no row matches the digest.
var ErrNotFound = errors.New("refresh token not found")

// Repo manages server-side storage of refresh token rows, keyed by the
// digest of the opaque value. Rows are never deleted by the protocol;
// revocation only sets RevokedAt. ConsumeAndReplace must be atomic with
// respect to concurrent rotations of the same row: of N simultaneous
// callers exactly one may observe true.
type Repo interface {
	Create(ctx context.Context, t *Token) error
	GetByHash(ctx context.Context, hash string) (*Token, error)

	// ConsumeAndReplace sets RevokedAt on the row iff it is not already
	// set and, when this caller wins, persists successor in the same
	// transaction. Reports whether this caller won. The compare-and-set is
	// the single-use guarantee for rotation; the single transaction
	// guarantees a storage failure never leaves the presented token
	// consumed without its successor.
	ConsumeAndReplace(ctx context.Context, id string, at time.Time, successor *Token) (bool, error)

	// RevokeFamily marks every unrevoked member of the family. Idempotent;
	// returns how many rows changed.
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)

	// RevokeAllForUser marks every unrevoked token of the user, across all
	// families. Idempotent; returns how many rows changed.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// DeleteExpiredBefore purges rows whose expiry predates the cutoff.
	// The audit trail is append-only otherwise; this is the only deletion.
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
