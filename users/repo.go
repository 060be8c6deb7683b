package users

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repo lookups when no user matches.
var ErrNotFound = errors.New("user not found")

// Repo manages persistence of user identity records.
type Repo interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByAppleSubject(ctx context.Context, subject string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
}
