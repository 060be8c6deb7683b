package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/jwillz7667/verbio-auth/users"
)

// ErrInvalidAccessToken covers every verification failure: bad signature,
// wrong issuer or audience, expiry, malformed input. Callers must not leak
// which one occurred.
var ErrInvalidAccessToken = errors.New("invalid access token")

// AccessClaims are the verified claims of an access token.
type AccessClaims struct {
	Subject   string
	Email     string
	Tier      users.Tier
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer mints and verifies the short-lived signed access tokens consumed by
// request-authentication middleware. Access tokens are stateless: validity is
// purely cryptographic plus the expiry check, nothing is persisted.
type Issuer struct {
	signer   Signer
	issuer   string
	audience string
	ttl      time.Duration
	nowFunc  func() time.Time
}

type IssuerOption func(*Issuer)

// WithAccessTokenTTL overrides the default one hour token lifetime.
func WithAccessTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.ttl = ttl
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

func NewIssuer(signer Signer, issuer, audience string, options ...IssuerOption) *Issuer {
	i := &Issuer{
		signer:   signer,
		issuer:   issuer,
		audience: audience,
		ttl:      time.Hour,
		nowFunc:  time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i
}

// Issue creates a signed access token for the user. Claims are deterministic
// for a fixed clock: subject, email, tier, iat = now, exp = now + TTL.
func (i *Issuer) Issue(user *users.User) (string, error) {
	now := i.nowFunc()
	claims := jwt.MapClaims{
		"iss":   i.issuer,
		"aud":   i.audience,
		"sub":   user.ID,
		"email": user.Email,
		"tier":  string(user.Tier),
		"iat":   now.Unix(),
		"exp":   now.Add(i.ttl).Unix(),
		"jti":   uuid.New().String(),
	}
	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "Issuer.Issue sign")
	}
	return signed, nil
}

// Verify parses and validates a raw access token. Every failure collapses to
// ErrInvalidAccessToken so the HTTP layer can only answer with a generic
// unauthorized response.
func (i *Issuer) Verify(raw string) (*AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithTimeFunc(i.nowFunc),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
	)

	parsed, err := parser.Parse(raw, i.signer.GetVerificationKey)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidAccessToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidAccessToken
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidAccessToken
	}
	email, _ := claims["email"].(string)
	tier, _ := claims["tier"].(string)
	jti, _ := claims["jti"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	return &AccessClaims{
		Subject:   sub,
		Email:     email,
		Tier:      users.Tier(tier),
		JTI:       jti,
		IssuedAt:  time.Unix(int64(iat), 0),
		ExpiresAt: time.Unix(int64(exp), 0),
	}, nil
}

// TTL returns the configured access token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}
