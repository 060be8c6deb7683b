package repofake

import (
	"context"
	"sync"
	"time"

	"github.com/jwillz7667/verbio-auth/internal/utils"
	"github.com/jwillz7667/verbio-auth/token/refresh"
)

var _ refresh.Repo = (*FakeRefreshTokenRepo)(nil)

// FakeRefreshTokenRepo is an in-memory refresh.Repo with the same atomicity
// guarantees as the Postgres implementation: ConsumeAndReplace is a
// compare-and-set plus successor insert under one hold of the repo lock.
type FakeRefreshTokenRepo struct {
	byHash map[string]*refresh.Token
	byID   map[string]*refresh.Token
	lock   sync.Mutex
}

func NewFakeRefreshTokenRepo() *FakeRefreshTokenRepo {
	return &FakeRefreshTokenRepo{
		byHash: make(map[string]*refresh.Token),
		byID:   make(map[string]*refresh.Token),
	}
}

func (r *FakeRefreshTokenRepo) Create(_ context.Context, t *refresh.Token) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	cp := *t
	r.byHash[cp.TokenHash] = &cp
	r.byID[cp.ID] = &cp
	return nil
}

func (r *FakeRefreshTokenRepo) GetByHash(_ context.Context, hash string) (*refresh.Token, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.byHash[hash]
	if !ok {
		return nil, refresh.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *FakeRefreshTokenRepo) ConsumeAndReplace(_ context.Context, id string, at time.Time, successor *refresh.Token) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.byID[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = utils.Ptr(at)

	cp := *successor
	r.byHash[cp.TokenHash] = &cp
	r.byID[cp.ID] = &cp
	return true, nil
}

func (r *FakeRefreshTokenRepo) RevokeFamily(_ context.Context, familyID string, at time.Time) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var n int64
	for _, t := range r.byID {
		if t.FamilyID == familyID && t.RevokedAt == nil {
			t.RevokedAt = utils.Ptr(at)
			n++
		}
	}
	return n, nil
}

func (r *FakeRefreshTokenRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var n int64
	for _, t := range r.byID {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = utils.Ptr(at)
			n++
		}
	}
	return n, nil
}

func (r *FakeRefreshTokenRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	var n int64
	for id, t := range r.byID {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.byID, id)
			delete(r.byHash, t.TokenHash)
			n++
		}
	}
	return n, nil
}
