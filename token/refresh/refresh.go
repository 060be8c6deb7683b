package refresh

import (
	"time"
)

// Token is one row of the append-only refresh credential audit trail. Only
// the SHA-256 digest of the opaque value is kept; the plaintext is never
// stored. FamilyID is shared by every token descended from one login, so a
// family can be revoked as a unit. RevokedAt is the only mutable field.
type Token struct {
	ID        string     `db:"id"`
	TokenHash string     `db:"token_hash"`
	FamilyID  string     `db:"family_id"`
	UserID    string     `db:"user_id"`
	ExpiresAt time.Time  `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
	RevokedAt *time.Time `db:"revoked_at"`
}

// Revoked reports whether the token was consumed by a rotation or killed by
// a family revocation. Both are terminal for this row.
func (t *Token) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token's lifetime has passed.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
