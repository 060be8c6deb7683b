package refresh

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jwillz7667/verbio-auth/token"
)

// Outcome is the tagged result of one rotation attempt. Rotation is an
// explicit state transition function rather than error control flow so that
// callers can tell the security-relevant reuse case from ordinary expiry
// without inspecting error types.
type Outcome int

const (
	// OutcomeRotated: the presented token was consumed and a successor was
	// issued under the same family.
	OutcomeRotated Outcome = iota

	// OutcomeNotFound: the digest matched no row, or another rotation won
	// the race for the same row. No state change.
	OutcomeNotFound

	// OutcomeExpired: the row exists, was never consumed, but its lifetime
	// has passed. Benign; the family stays intact.
	OutcomeExpired

	// OutcomeReuse: an already-consumed token was presented again. The
	// whole family has been revoked by the time this outcome is returned.
	OutcomeReuse
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRotated:
		return "rotated"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeReuse:
		return "reuse"
	default:
		return "unknown"
	}
}

// RotationResult carries the outcome plus, where applicable, the presented
// row and the freshly issued successor. Token is nil only when the digest
// matched no row; a losing racer gets OutcomeNotFound with the row set.
// NewPlaintext is the only place the new opaque value ever appears.
type RotationResult struct {
	Outcome      Outcome
	Token        *Token
	NewToken     *Token
	NewPlaintext string
}

// Manager drives refresh token issuance and the rotation protocol. All
// durable state lives in the Repo; the manager itself is stateless and safe
// for concurrent use.
type Manager struct {
	repo    Repo
	ttl     time.Duration
	nowFunc func() time.Time
}

type ManagerOption func(*Manager)

// WithTTL overrides the default 30 day refresh token lifetime.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func NewManager(repo Repo, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:    repo,
		ttl:     30 * 24 * time.Hour,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Issue starts a new token family for a fresh login and returns the opaque
// plaintext exactly once, alongside the stored row.
func (m *Manager) Issue(ctx context.Context, userID string) (string, *Token, error) {
	plaintext, t, err := m.newInFamily(userID, uuid.New().String())
	if err != nil {
		return "", nil, err
	}
	if err := m.repo.Create(ctx, t); err != nil {
		return "", nil, errors.Wrap(err, "Manager.Issue Create")
	}
	return plaintext, t, nil
}

// Rotate runs the rotation state machine on a presented opaque value.
// The returned error is reserved for storage or crypto failure; every
// protocol-level outcome is reported through RotationResult. On a storage
// error the presented token has not been consumed.
func (m *Manager) Rotate(ctx context.Context, plaintext string) (*RotationResult, error) {
	now := m.nowFunc()

	current, err := m.repo.GetByHash(ctx, token.HashOpaque(plaintext))
	if errors.Is(err, ErrNotFound) {
		return &RotationResult{Outcome: OutcomeNotFound}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Rotate GetByHash")
	}

	// Reuse of a consumed token: the rotation chain is considered stolen,
	// revoke every descendant and ancestor sharing the family.
	if current.Revoked() {
		if _, err := m.repo.RevokeFamily(ctx, current.FamilyID, now); err != nil {
			return nil, errors.Wrap(err, "Manager.Rotate RevokeFamily")
		}
		return &RotationResult{Outcome: OutcomeReuse, Token: current}, nil
	}

	if current.Expired(now) {
		return &RotationResult{Outcome: OutcomeExpired, Token: current}, nil
	}

	plainNext, next, err := m.newInFamily(current.UserID, current.FamilyID)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Rotate successor")
	}

	// Single-use enforcement. Consuming the presented row and writing its
	// successor is one atomic repo operation, so a storage failure leaves
	// the presented token active and retryable, never half-rotated. A
	// concurrent rotation of the same value loses the compare-and-set and
	// is reported as not found, never as a second success.
	won, err := m.repo.ConsumeAndReplace(ctx, current.ID, now, next)
	if err != nil {
		return nil, errors.Wrap(err, "Manager.Rotate ConsumeAndReplace")
	}
	if !won {
		return &RotationResult{Outcome: OutcomeNotFound, Token: current}, nil
	}

	return &RotationResult{
		Outcome:      OutcomeRotated,
		Token:        current,
		NewToken:     next,
		NewPlaintext: plainNext,
	}, nil
}

// RevokeFamily marks every token in the family. Idempotent.
func (m *Manager) RevokeFamily(ctx context.Context, familyID string) error {
	if _, err := m.repo.RevokeFamily(ctx, familyID, m.nowFunc()); err != nil {
		return errors.Wrap(err, "Manager.RevokeFamily")
	}
	return nil
}

// RevokeAllForUser marks every token of the user across all families.
// Idempotent.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	if _, err := m.repo.RevokeAllForUser(ctx, userID, m.nowFunc()); err != nil {
		return errors.Wrap(err, "Manager.RevokeAllForUser")
	}
	return nil
}

// Lookup resolves a presented opaque value to its stored row without any
// state change. Used by logout to find the family to revoke.
func (m *Manager) Lookup(ctx context.Context, plaintext string) (*Token, error) {
	return m.repo.GetByHash(ctx, token.HashOpaque(plaintext))
}

// PurgeExpired deletes rows that expired more than retain ago. Revocation
// history inside the retention window is kept for audit.
func (m *Manager) PurgeExpired(ctx context.Context, retain time.Duration) (int64, error) {
	return m.repo.DeleteExpiredBefore(ctx, m.nowFunc().Add(-retain))
}

func (m *Manager) newInFamily(userID, familyID string) (string, *Token, error) {
	plaintext, hash, err := token.NewOpaque()
	if err != nil {
		return "", nil, errors.Wrap(err, "Manager.newInFamily NewOpaque")
	}

	now := m.nowFunc()
	t := &Token{
		ID:        uuid.New().String(),
		TokenHash: hash,
		FamilyID:  familyID,
		UserID:    userID,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	return plaintext, t, nil
}
