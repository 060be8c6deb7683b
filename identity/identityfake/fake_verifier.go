package identityfake

import (
	"context"
	"sync"

	"github.com/jwillz7667/verbio-auth/identity"
)

var _ identity.Verifier = (*FakeVerifier)(nil)

// FakeVerifier maps raw assertion strings to canned identities. Anything
// not registered is rejected with ErrInvalidCredential, matching the real
// verifier's single failure mode.
type FakeVerifier struct {
	identities map[string]identity.Identity
	lock       sync.RWMutex
}

func NewFakeVerifier() *FakeVerifier {
	return &FakeVerifier{
		identities: make(map[string]identity.Identity),
	}
}

// Register makes rawToken verify successfully as id.
func (f *FakeVerifier) Register(rawToken string, id identity.Identity) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.identities[rawToken] = id
}

func (f *FakeVerifier) Verify(_ context.Context, rawIDToken string) (*identity.Identity, error) {
	f.lock.RLock()
	defer f.lock.RUnlock()
	id, ok := f.identities[rawIDToken]
	if !ok {
		return nil, identity.ErrInvalidCredential
	}
	cp := id
	return &cp, nil
}
