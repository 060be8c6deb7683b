// Package identity verifies external identity assertions (Sign in with
// Apple ID tokens) and reduces them to a stable subject identifier.
package identity

import (
	"context"
	"errors"
)

// ErrInvalidCredential covers every verification failure: bad signature,
// wrong issuer or audience, expiry, malformed token. The distinction is
// logged server-side only; callers surface a generic unauthorized failure
// so the endpoint cannot be used as an oracle.
var ErrInvalidCredential = errors.New("invalid credential")

// Identity is the verified result of an external assertion. Subject is the
// provider's stable user identifier and the only field guaranteed present;
// Apple omits the email claims on every login after the first.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
}

// Verifier validates a raw signed assertion against the provider's
// published keys.
type Verifier interface {
	Verify(ctx context.Context, rawIDToken string) (*Identity, error)
}
