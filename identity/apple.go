package identity

import (
	"context"
	"encoding/json"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AppleIssuer is the issuer URL of Sign in with Apple ID tokens. Apple
// publishes its OIDC discovery document and JWKS under this origin.
const AppleIssuer = "https://appleid.apple.com"

// AppleVerifier validates Apple ID tokens: signature against Apple's JWKS,
// issuer, audience (the app's bundle identifier), and expiry.
type AppleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

var _ Verifier = (*AppleVerifier)(nil)

// NewAppleVerifier discovers Apple's OIDC configuration and prepares a
// verifier bound to the given client ID (bundle identifier).
func NewAppleVerifier(ctx context.Context, clientID string) (*AppleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("[NewAppleVerifier] clientID is required")
	}

	provider, err := oidc.NewProvider(ctx, AppleIssuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewAppleVerifier] OIDC discovery")
	}

	return &AppleVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify checks the raw ID token and extracts the stable subject plus the
// optional email claims. Any failure collapses to ErrInvalidCredential.
func (v *AppleVerifier) Verify(ctx context.Context, rawIDToken string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		log.Debug().Err(err).Msg("apple id token rejected")
		return nil, ErrInvalidCredential
	}

	var claims struct {
		Email         string    `json:"email"`
		EmailVerified appleBool `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		log.Debug().Err(err).Msg("apple id token claims unreadable")
		return nil, ErrInvalidCredential
	}

	return &Identity{
		Subject:       idToken.Subject,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
	}, nil
}

// appleBool accepts Apple's email_verified claim, which arrives as the JSON
// bool true or the JSON string "true" depending on token vintage.
type appleBool bool

func (b *appleBool) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		*b = appleBool(asBool)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err != nil {
		return err
	}
	*b = appleBool(asString == "true")
	return nil
}
