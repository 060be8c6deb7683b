package identity

import (
	"context"
	"crypto/ecdsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const appleTokenURL = "https://appleid.apple.com/auth/token"

// Apple caps client secret validity at six months; we mint short ones per
// exchange instead of caching.
const appleClientSecretTTL = 5 * time.Minute

// AppleCodeExchanger redeems a Sign in with Apple authorization code at
// Apple's token endpoint and verifies the ID token it returns. Apple
// requires the client secret to be an ES256 JWT signed with the developer
// key rather than a static string.
type AppleCodeExchanger struct {
	teamID     string
	clientID   string
	keyID      string
	signingKey *ecdsa.PrivateKey
	verifier   Verifier
	tokenURL   string
	nowFunc    func() time.Time
}

func NewAppleCodeExchanger(teamID, clientID, keyID string, signingKey *ecdsa.PrivateKey, verifier Verifier) *AppleCodeExchanger {
	return &AppleCodeExchanger{
		teamID:     teamID,
		clientID:   clientID,
		keyID:      keyID,
		signingKey: signingKey,
		verifier:   verifier,
		tokenURL:   appleTokenURL,
		nowFunc:    time.Now,
	}
}

// Exchange redeems the authorization code and returns the verified identity
// from the accompanying ID token. Failures collapse to ErrInvalidCredential.
func (e *AppleCodeExchanger) Exchange(ctx context.Context, code string) (*Identity, error) {
	secret, err := e.clientSecret()
	if err != nil {
		return nil, errors.Wrap(err, "AppleCodeExchanger.Exchange client secret")
	}

	conf := &oauth2.Config{
		ClientID:     e.clientID,
		ClientSecret: secret,
		// Apple only accepts the client secret in the request body.
		Endpoint: oauth2.Endpoint{TokenURL: e.tokenURL, AuthStyle: oauth2.AuthStyleInParams},
	}

	oauth2Token, err := conf.Exchange(ctx, code)
	if err != nil {
		log.Debug().Err(err).Msg("apple code exchange failed")
		return nil, ErrInvalidCredential
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		log.Debug().Msg("apple token response missing id_token")
		return nil, ErrInvalidCredential
	}

	return e.verifier.Verify(ctx, rawIDToken)
}

// clientSecret mints the ES256 developer-key JWT Apple expects in place of
// a static client secret.
func (e *AppleCodeExchanger) clientSecret() (string, error) {
	now := e.nowFunc()
	claims := jwt.MapClaims{
		"iss": e.teamID,
		"sub": e.clientID,
		"aud": AppleIssuer,
		"iat": now.Unix(),
		"exp": now.Add(appleClientSecretTTL).Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = e.keyID

	signed, err := tok.SignedString(e.signingKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign apple client secret")
	}
	return signed, nil
}
