package repofake

import (
	"context"
	"sync"

	"github.com/jwillz7667/verbio-auth/users"
)

var _ users.Repo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory users.Repo for tests and the dev profile.
type FakeUserRepo struct {
	byID      map[string]*users.User
	bySubject map[string]string // apple subject -> user ID
	lock      sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		byID:      make(map[string]*users.User),
		bySubject: make(map[string]string),
	}
}

func (r *FakeUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *FakeUserRepo) GetByAppleSubject(_ context.Context, subject string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	id, ok := r.bySubject[subject]
	if !ok {
		return nil, users.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	cp := *user
	r.byID[cp.ID] = &cp
	r.bySubject[cp.AppleSubject] = cp.ID
	return nil
}

func (r *FakeUserRepo) Update(_ context.Context, user *users.User) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.byID[user.ID]; !ok {
		return users.ErrNotFound
	}
	cp := *user
	r.byID[cp.ID] = &cp
	r.bySubject[cp.AppleSubject] = cp.ID
	return nil
}
